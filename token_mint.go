package magiclink

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/goliatone/go-errors"
)

// tokenEntropyBytes is the raw entropy behind each minted token. 32 bytes
// keeps the value unguessable while staying short enough for a URL.
const tokenEntropyBytes = 32

// MintToken returns a new cryptographically unguessable, URL-safe token
// string. The clear value is only ever handed to the delivery channel;
// stores see its digest.
func MintToken() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "unable to mint sign-in token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TokenDigest derives the storage key for a clear token value. A stable
// digest keeps lookups cheap without ever persisting the token itself.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
