package magiclink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time { return c.current }

func (c *testClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestSessionManager() (*SessionManager, *testClock) {
	clock := &testClock{current: time.Now().Truncate(time.Second)}
	manager := NewSessionManager(
		NewMemorySessionStore(),
		newTestCodec(),
		NewBroadcaster(),
		NewRoleResolver([]string{"ops@example.com"}),
	)
	manager.now = clock.Now
	return manager, clock
}

func TestSessionManagerEstablish(t *testing.T) {
	manager, clock := newTestSessionManager()

	var events []AuthEvent
	defer manager.Events().Subscribe(func(e AuthEvent) { events = append(events, e) })()

	session, err := manager.Establish(verifiedIdentity{email: "user@example.com", role: RoleStandard}, "device-1")
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, "user@example.com", session.Email)
	assert.True(t, session.Verified)
	assert.Equal(t, SessionSourceVerified, session.Source)
	assert.True(t, session.ExpiresAt.Equal(clock.Now().Add(DefaultSessionTTL)))

	require.Len(t, events, 1)
	assert.Equal(t, AuthEventLogin, events[0].Type)
	require.NotNil(t, events[0].Session)

	current, err := manager.Current()
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "user@example.com", current.Email)
	assert.True(t, current.Verified)
}

func TestSessionManagerCurrentWhenUnauthenticated(t *testing.T) {
	manager, _ := newTestSessionManager()

	session, err := manager.Current()
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSessionManagerCurrentSurvivesRestart(t *testing.T) {
	store := NewMemorySessionStore()
	codec := newTestCodec()
	roles := NewRoleResolver(nil)

	first := NewSessionManager(store, codec, NewBroadcaster(), roles)
	_, err := first.Establish(verifiedIdentity{email: "user@example.com", role: RoleStandard}, "device-1")
	require.NoError(t, err)

	// a new manager over the same store sees the session
	second := NewSessionManager(store, codec, NewBroadcaster(), roles)
	session, err := second.Current()
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "user@example.com", session.Email)
}

func TestSessionManagerEstablishDegraded(t *testing.T) {
	manager, _ := newTestSessionManager()
	sink := &recordingSink{}
	manager.WithActivitySink(sink)

	session, err := manager.EstablishDegraded("user@example.com", "device-1")
	require.NoError(t, err)

	assert.False(t, session.Verified)
	assert.Equal(t, SessionSourceDegraded, session.Source)
	assert.Equal(t, RoleStandard, session.Role)
	assert.True(t, session.Degraded())

	assert.Len(t, sink.byType(ActivityEventSessionDegraded), 1)
}

func TestSessionManagerDegradedHonorsAllowList(t *testing.T) {
	manager, _ := newTestSessionManager()

	session, err := manager.EstablishDegraded("ops@example.com", "device-1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, session.Role)

	other, err := manager.EstablishDegraded("anyone@example.com", "device-2")
	require.NoError(t, err)
	assert.Equal(t, RoleStandard, other.Role)
}

func TestSessionManagerDegradedRejectsInvalidEmail(t *testing.T) {
	manager, _ := newTestSessionManager()

	_, err := manager.EstablishDegraded("not-an-email", "device-1")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestSessionManagerVerifiedSupersedesDegraded(t *testing.T) {
	manager, _ := newTestSessionManager()

	_, err := manager.EstablishDegraded("user@example.com", "device-1")
	require.NoError(t, err)

	_, err = manager.Establish(verifiedIdentity{email: "user@example.com", role: RoleStandard}, "device-1")
	require.NoError(t, err)

	session, err := manager.Current()
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, SessionSourceVerified, session.Source)
	assert.True(t, session.Verified)

	_, ok, err := manager.store.Read(SessionKeyDegraded)
	require.NoError(t, err)
	assert.False(t, ok, "degraded leftovers are cleared on verified login")
}

func TestSessionManagerTouchExtendsExpiry(t *testing.T) {
	manager, clock := newTestSessionManager()
	manager.WithLifetime(time.Hour).WithRenewThrottle(time.Second)

	session, err := manager.Establish(verifiedIdentity{email: "user@example.com", role: RoleStandard}, "device-1")
	require.NoError(t, err)
	firstExpiry := session.ExpiresAt

	clock.Advance(10 * time.Minute)

	touched, err := manager.Touch()
	require.NoError(t, err)
	require.NotNil(t, touched)
	assert.True(t, touched.ExpiresAt.Equal(clock.Now().Add(time.Hour)))
	assert.True(t, touched.ExpiresAt.After(firstExpiry))
}

func TestSessionManagerTouchIsThrottled(t *testing.T) {
	manager, clock := newTestSessionManager()
	manager.WithLifetime(time.Hour).WithRenewThrottle(time.Minute)

	session, err := manager.Establish(verifiedIdentity{email: "user@example.com", role: RoleStandard}, "device-1")
	require.NoError(t, err)
	firstExpiry := session.ExpiresAt

	// inside the throttle interval nothing is written
	clock.Advance(10 * time.Second)
	touched, err := manager.Touch()
	require.NoError(t, err)
	require.NotNil(t, touched)
	assert.True(t, firstExpiry.Equal(touched.ExpiresAt))

	clock.Advance(time.Minute)
	touched, err = manager.Touch()
	require.NoError(t, err)
	assert.True(t, touched.ExpiresAt.After(firstExpiry))
}

func TestSessionManagerTouchNeverShortens(t *testing.T) {
	manager, clock := newTestSessionManager()
	manager.WithRenewThrottle(time.Second)

	session, err := manager.Establish(verifiedIdentity{email: "user@example.com", role: RoleStandard}, "device-1")
	require.NoError(t, err)

	// shrink the lifetime after establishment, the horizon must not move back
	manager.WithLifetime(time.Minute)
	clock.Advance(2 * time.Second)

	touched, err := manager.Touch()
	require.NoError(t, err)
	assert.True(t, touched.ExpiresAt.Equal(session.ExpiresAt))
}

func TestSessionManagerTouchWithoutSession(t *testing.T) {
	manager, _ := newTestSessionManager()

	session, err := manager.Touch()
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSessionManagerSignOut(t *testing.T) {
	manager, _ := newTestSessionManager()

	var events []AuthEvent
	defer manager.Events().Subscribe(func(e AuthEvent) { events = append(events, e) })()

	_, err := manager.Establish(verifiedIdentity{email: "user@example.com", role: RoleStandard}, "device-1")
	require.NoError(t, err)

	require.NoError(t, manager.SignOut())

	session, err := manager.Current()
	require.NoError(t, err)
	assert.Nil(t, session)

	require.Len(t, events, 2)
	assert.Equal(t, AuthEventLogout, events[1].Type)
	assert.Nil(t, events[1].Session)
}

func TestSessionManagerExpiredSessionIsAbsent(t *testing.T) {
	manager, clock := newTestSessionManager()
	manager.WithLifetime(time.Hour)

	_, err := manager.Establish(verifiedIdentity{email: "user@example.com", role: RoleStandard}, "device-1")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	session, err := manager.Current()
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSessionManagerCheckExpiry(t *testing.T) {
	manager, clock := newTestSessionManager()
	manager.WithLifetime(time.Hour)
	sink := &recordingSink{}
	manager.WithActivitySink(sink)

	var events []AuthEvent
	defer manager.Events().Subscribe(func(e AuthEvent) { events = append(events, e) })()

	_, err := manager.Establish(verifiedIdentity{email: "user@example.com", role: RoleStandard}, "device-1")
	require.NoError(t, err)

	// still live, nothing happens
	manager.CheckExpiry()
	require.Len(t, events, 1)

	clock.Advance(2 * time.Hour)
	manager.CheckExpiry()

	require.Len(t, events, 2)
	assert.Equal(t, AuthEventLogout, events[1].Type)
	assert.Len(t, sink.byType(ActivityEventSessionExpired), 1)

	_, ok, err := manager.store.Read(SessionKeyVerified)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionManagerDropsUndecodablePayload(t *testing.T) {
	manager, _ := newTestSessionManager()

	require.NoError(t, manager.store.Write(SessionKeyVerified, "garbage"))

	session, err := manager.Current()
	require.NoError(t, err)
	assert.Nil(t, session)

	_, ok, err := manager.store.Read(SessionKeyVerified)
	require.NoError(t, err)
	assert.False(t, ok, "unreadable payloads are dropped")
}

func TestSessionObjectValid(t *testing.T) {
	now := time.Now()

	live := &SessionObject{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, live.Valid(now))

	dead := &SessionObject{ExpiresAt: now.Add(-time.Minute)}
	assert.False(t, dead.Valid(now))

	var missing *SessionObject
	assert.False(t, missing.Valid(now))
	assert.False(t, missing.Degraded())
}
