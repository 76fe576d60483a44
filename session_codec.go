package magiclink

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// SessionClaims is the signed wire form of a client-held session.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email    string        `json:"email"`
	UserRole UserRole      `json:"role,omitempty"`
	DeviceID string        `json:"device_id,omitempty"`
	Verified bool          `json:"verified"`
	Source   SessionSource `json:"source,omitempty"`
}

// SessionCodec signs and decodes client-held session payloads. The payload
// is self-describing: readers re-derive authentication state from it without
// a server round-trip, which is why Decode deliberately skips expiry
// validation and leaves the expiry policy to the SessionManager.
type SessionCodec struct {
	signingKey []byte
	issuer     string
	logger     Logger
}

// NewSessionCodec creates a codec for the given HMAC signing key.
func NewSessionCodec(signingKey []byte, issuer string, logger Logger) *SessionCodec {
	if logger == nil {
		logger = defLogger{}
	}
	return &SessionCodec{
		signingKey: signingKey,
		issuer:     issuer,
		logger:     logger,
	}
}

// Encode signs a session into its storable payload.
func (c *SessionCodec) Encode(session *SessionObject) (string, error) {
	if session == nil {
		return "", errors.New("session must not be nil", errors.CategoryInternal)
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   session.Email,
			IssuedAt:  jwt.NewNumericDate(session.LoginTime),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		Email:    session.Email,
		UserRole: session.Role,
		DeviceID: session.DeviceID,
		Verified: session.Verified,
		Source:   session.Source,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session payload")
	}

	return signed, nil
}

// Decode parses and verifies a stored payload back into a session. Expired
// sessions decode fine; deciding what an expired session means is policy,
// not codec work.
func (c *SessionCodec) Decode(payload string) (*SessionObject, error) {
	token, err := jwt.ParseWithClaims(payload, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			c.logger.Error("session codec encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.signingKey, nil
	}, jwt.WithoutClaimsValidation())

	if err != nil {
		return nil, errors.Wrap(err, ErrUnableToDecodeSession.Category, ErrUnableToDecodeSession.Message).
			WithTextCode(ErrUnableToDecodeSession.TextCode)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		c.logger.Error("session codec could not map claims")
		return nil, ErrUnableToDecodeSession
	}

	session := &SessionObject{
		Email:    claims.Email,
		Role:     claims.UserRole,
		DeviceID: claims.DeviceID,
		Verified: claims.Verified,
		Source:   claims.Source,
	}
	if claims.IssuedAt != nil {
		session.LoginTime = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	if session.Source == "" {
		session.Source = SessionSourceVerified
	}

	return session, nil
}
