package magiclink

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SessionSource tags how a session came to be. The two variants are stored
// under separate keys and carry different guarantees; audit trails and UI
// code can always tell them apart.
type SessionSource string

const (
	// SessionSourceVerified means the identity was proven through token
	// redemption against the backend.
	SessionSourceVerified SessionSource = "verified"
	// SessionSourceDegraded means the identity was simulated locally while
	// the backend was unreachable.
	SessionSourceDegraded SessionSource = "degraded"
)

const (
	// DefaultSessionTTL is the fixed session horizon.
	DefaultSessionTTL = 30 * 24 * time.Hour
	// DefaultRenewThrottle coalesces bursts of user activity into at most
	// one renewal write per interval.
	DefaultRenewThrottle = 30 * time.Second
	// DefaultSweepInterval is the cadence of the local expiry check.
	DefaultSweepInterval = 5 * time.Minute
)

// SessionObject is the client-held, self-describing proof of
// authentication. It is exclusively owned by the client process that
// created it; the server keeps no session record.
type SessionObject struct {
	Email     string        `json:"email"`
	Role      UserRole      `json:"role"`
	DeviceID  string        `json:"device_id,omitempty"`
	Verified  bool          `json:"verified"`
	Source    SessionSource `json:"source"`
	LoginTime time.Time     `json:"login_time"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Valid reports whether the session is live at the given instant.
func (s *SessionObject) Valid(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// Degraded reports whether the session came from the fallback path.
func (s *SessionObject) Degraded() bool {
	return s != nil && s.Source == SessionSourceDegraded
}

func (s *SessionObject) storageKey() string {
	if s.Degraded() {
		return SessionKeyDegraded
	}
	return SessionKeyVerified
}

func (s SessionObject) String() string {
	return fmt.Sprintf(
		"email=%s role=%s source=%s expires=%s",
		s.Email,
		s.Role,
		s.Source,
		s.ExpiresAt.Format(time.RFC1123),
	)
}

// SessionManager owns the client-side session lifecycle: construction from
// a verified identity, local persistence, renewal on activity, and expiry
// detection. State only ever moves forward (extend or invalidate), so
// last-write-wins on the local store needs no extra locking beyond the
// manager's own mutex.
type SessionManager struct {
	store    SessionStore
	codec    *SessionCodec
	events   *Broadcaster
	roles    *RoleResolver
	activity ActivitySink
	lifetime time.Duration
	throttle time.Duration
	sweep    time.Duration
	logger   Logger
	provider LoggerProvider
	now      func() time.Time

	mu        sync.Mutex
	lastRenew time.Time
}

// NewSessionManager wires the manager with its collaborators. The resolver
// is consulted again on the degraded path so a simulated identity can never
// self-assign administrator.
func NewSessionManager(store SessionStore, codec *SessionCodec, events *Broadcaster, roles *RoleResolver) *SessionManager {
	provider, logger := ResolveLogger("magiclink.session", nil, nil)
	if events == nil {
		events = NewBroadcaster()
	}
	return &SessionManager{
		store:    store,
		codec:    codec,
		events:   events,
		roles:    roles,
		activity: noopActivitySink{},
		lifetime: DefaultSessionTTL,
		throttle: DefaultRenewThrottle,
		sweep:    DefaultSweepInterval,
		logger:   logger,
		provider: provider,
		now:      time.Now,
	}
}

// WithLifetime overrides the session horizon. Non-positive values are ignored.
func (m *SessionManager) WithLifetime(lifetime time.Duration) *SessionManager {
	if lifetime > 0 {
		m.lifetime = lifetime
	}
	return m
}

// WithRenewThrottle overrides the renewal coalescing interval.
func (m *SessionManager) WithRenewThrottle(throttle time.Duration) *SessionManager {
	if throttle > 0 {
		m.throttle = throttle
	}
	return m
}

// WithSweepInterval overrides the expiry check cadence.
func (m *SessionManager) WithSweepInterval(interval time.Duration) *SessionManager {
	if interval > 0 {
		m.sweep = interval
	}
	return m
}

// WithActivitySink configures an ActivitySink for audit events.
func (m *SessionManager) WithActivitySink(sink ActivitySink) *SessionManager {
	m.activity = normalizeActivitySink(sink)
	return m
}

func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	m.provider, m.logger = ResolveLogger("magiclink.session", m.provider, logger)
	return m
}

// Events exposes the broadcaster so UI regions can subscribe.
func (m *SessionManager) Events() *Broadcaster {
	return m.events
}

// Establish materializes a session from a verified identity and persists it
// under the verified key. Any failure leaves the client unauthenticated;
// there is no half-constructed session.
func (m *SessionManager) Establish(identity Identity, deviceID string) (*SessionObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	session := &SessionObject{
		Email:     NormalizeEmail(identity.Email()),
		Role:      identity.Role(),
		DeviceID:  deviceID,
		Verified:  true,
		Source:    SessionSourceVerified,
		LoginTime: now,
		ExpiresAt: now.Add(m.lifetime),
	}

	if err := m.persist(session); err != nil {
		return nil, err
	}

	// a fresh verified login supersedes any degraded leftovers
	if err := m.store.Delete(SessionKeyDegraded); err != nil {
		m.logger.Warn("session manager could not clear degraded session", "error", err)
	}

	m.lastRenew = now
	m.events.Publish(AuthEvent{Type: AuthEventLogin, Session: session, OccurredAt: now})
	return session, nil
}

// EstablishDegraded materializes a locally simulated session while the
// backend is unreachable. It lives under its own key, is flagged in the
// audit trail, and goes through the same RoleResolver: administrator only
// when the email is allow-listed.
func (m *SessionManager) EstablishDegraded(email, deviceID string) (*SessionObject, error) {
	normalized := NormalizeEmail(email)
	if !ValidEmail(normalized) {
		return nil, ErrInvalidEmail
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	session := &SessionObject{
		Email:     normalized,
		Role:      m.roles.Resolve(normalized),
		DeviceID:  deviceID,
		Verified:  false,
		Source:    SessionSourceDegraded,
		LoginTime: now,
		ExpiresAt: now.Add(m.lifetime),
	}

	if err := m.persist(session); err != nil {
		return nil, err
	}

	m.emitSessionEvent(ActivityEventSessionDegraded, session)
	m.lastRenew = now
	m.events.Publish(AuthEvent{Type: AuthEventLogin, Session: session, OccurredAt: now})
	return session, nil
}

// Current resolves the stored session, verified key first. It returns
// (nil, nil) for an unauthenticated client. Expired sessions are reported
// as absent; the sweep is responsible for clearing them and announcing the
// logout.
func (m *SessionManager) Current() (*SessionObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current()
}

func (m *SessionManager) current() (*SessionObject, error) {
	now := m.now()
	for _, key := range []string{SessionKeyVerified, SessionKeyDegraded} {
		payload, ok, err := m.store.Read(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		session, err := m.codec.Decode(payload)
		if err != nil {
			// an unreadable payload is dead weight, drop it
			m.logger.Warn("session manager dropping undecodable session", "key", key, "error", err)
			if delErr := m.store.Delete(key); delErr != nil {
				m.logger.Warn("session manager could not delete session", "key", key, "error", delErr)
			}
			continue
		}

		if session.Valid(now) {
			return session, nil
		}
	}
	return nil, nil
}

// Touch renews the session on user activity, extending the expiry to
// now + lifetime. Renewal never shortens the horizon and is throttled so
// interaction bursts produce at most one write per interval.
func (m *SessionManager) Touch() (*SessionObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.current()
	if err != nil || session == nil {
		return session, err
	}

	now := m.now()
	if now.Sub(m.lastRenew) < m.throttle {
		return session, nil
	}

	extended := now.Add(m.lifetime)
	if extended.After(session.ExpiresAt) {
		session.ExpiresAt = extended
	}

	if err := m.persist(session); err != nil {
		return nil, err
	}

	m.lastRenew = now
	return session, nil
}

// SignOut clears both session keys and announces the logout.
func (m *SessionManager) SignOut() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range []string{SessionKeyVerified, SessionKeyDegraded} {
		if err := m.store.Delete(key); err != nil {
			return err
		}
	}

	m.events.Publish(AuthEvent{Type: AuthEventLogout, OccurredAt: m.now()})
	return nil
}

// StartSweep runs the periodic expiry check until ctx is done. The check is
// a pure function of wall clock versus stored expiry, so no server
// round-trip is involved.
func (m *SessionManager) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CheckExpiry()
			}
		}
	}()
}

// CheckExpiry re-derives authentication status from the stored session and
// clears it when the horizon passed, emitting a logout. Safe to call from a
// timer or opportunistically.
func (m *SessionManager) CheckExpiry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	expired := false
	for _, key := range []string{SessionKeyVerified, SessionKeyDegraded} {
		payload, ok, err := m.store.Read(key)
		if err != nil || !ok {
			continue
		}

		session, err := m.codec.Decode(payload)
		if err != nil {
			continue
		}

		if !session.Valid(now) {
			if delErr := m.store.Delete(key); delErr != nil {
				m.logger.Warn("session manager could not delete expired session", "key", key, "error", delErr)
				continue
			}
			m.emitSessionEvent(ActivityEventSessionExpired, session)
			expired = true
		}
	}

	if expired {
		m.events.Publish(AuthEvent{Type: AuthEventLogout, OccurredAt: now})
	}
}

func (m *SessionManager) persist(session *SessionObject) error {
	payload, err := m.codec.Encode(session)
	if err != nil {
		return err
	}
	return m.store.Write(session.storageKey(), payload)
}

func (m *SessionManager) emitSessionEvent(eventType ActivityEventType, session *SessionObject) {
	event := ActivityEvent{
		EventType:  eventType,
		Email:      session.Email,
		DeviceID:   session.DeviceID,
		Metadata:   map[string]any{"source": session.Source},
		OccurredAt: m.now(),
	}
	if err := m.activity.Record(context.Background(), event); err != nil {
		m.logger.Error("activity sink record failed", "event", eventType, "error", err)
	}
}
