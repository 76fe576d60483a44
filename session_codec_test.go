package magiclink

import (
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec() *SessionCodec {
	return NewSessionCodec([]byte("test-signing-key"), "magiclink-test", nil)
}

func TestSessionCodecRoundTrip(t *testing.T) {
	codec := newTestCodec()
	now := time.Now().Truncate(time.Second)

	session := &SessionObject{
		Email:     "user@example.com",
		Role:      RoleAdmin,
		DeviceID:  "device-1",
		Verified:  true,
		Source:    SessionSourceVerified,
		LoginTime: now,
		ExpiresAt: now.Add(time.Hour),
	}

	payload, err := codec.Encode(session)
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	decoded, err := codec.Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, session.Email, decoded.Email)
	assert.Equal(t, session.Role, decoded.Role)
	assert.Equal(t, session.DeviceID, decoded.DeviceID)
	assert.True(t, decoded.Verified)
	assert.Equal(t, SessionSourceVerified, decoded.Source)
	assert.True(t, session.LoginTime.Equal(decoded.LoginTime))
	assert.True(t, session.ExpiresAt.Equal(decoded.ExpiresAt))
}

func TestSessionCodecDecodesExpiredSessions(t *testing.T) {
	codec := newTestCodec()
	now := time.Now().Truncate(time.Second)

	session := &SessionObject{
		Email:     "user@example.com",
		Role:      RoleStandard,
		Verified:  true,
		Source:    SessionSourceVerified,
		LoginTime: now.Add(-48 * time.Hour),
		ExpiresAt: now.Add(-24 * time.Hour),
	}

	payload, err := codec.Encode(session)
	require.NoError(t, err)

	// expiry is the manager's policy, the codec still decodes
	decoded, err := codec.Decode(payload)
	require.NoError(t, err)
	assert.False(t, decoded.Valid(now))
}

func TestSessionCodecRejectsTamperedPayload(t *testing.T) {
	codec := newTestCodec()

	payload, err := codec.Encode(&SessionObject{
		Email:     "user@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = codec.Decode(payload + "x")
	require.Error(t, err)

	var richErr *errors.Error
	require.True(t, errors.As(err, &richErr))
	assert.Equal(t, TextCodeSessionDecodeError, richErr.TextCode)
}

func TestSessionCodecRejectsForeignKey(t *testing.T) {
	payload, err := newTestCodec().Encode(&SessionObject{
		Email:     "user@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	other := NewSessionCodec([]byte("different-key"), "magiclink-test", nil)
	_, err = other.Decode(payload)
	assert.Error(t, err)
}

func TestSessionCodecRejectsGarbage(t *testing.T) {
	_, err := newTestCodec().Decode("not-a-jwt")
	assert.Error(t, err)
}

func TestSessionCodecDefaultsEmptySourceToVerified(t *testing.T) {
	codec := newTestCodec()

	payload, err := codec.Encode(&SessionObject{
		Email:     "user@example.com",
		Verified:  true,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	decoded, err := codec.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, SessionSourceVerified, decoded.Source)
}

func TestSessionCodecEncodeNilSession(t *testing.T) {
	_, err := newTestCodec().Encode(nil)
	assert.Error(t, err)
}
