package magiclink

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// ProfileUpserter is the external collaborator that persists a profile
// record whenever a token is redeemed. Implementations must be idempotent
// on email.
type ProfileUpserter interface {
	UpsertProfile(ctx context.Context, email string, role UserRole, now time.Time) (*User, error)
}

// Verifier validates and atomically consumes sign-in tokens.
type Verifier struct {
	store    TokenStore
	roles    *RoleResolver
	profiles ProfileUpserter
	activity ActivitySink
	logger   Logger
	provider LoggerProvider
	now      func() time.Time
}

// NewVerifier wires the verifier with its collaborators. The RoleResolver
// must be the same instance used at issuance so role resolution cannot
// drift between the two.
func NewVerifier(store TokenStore, roles *RoleResolver, profiles ProfileUpserter) *Verifier {
	provider, logger := ResolveLogger("magiclink.verifier", nil, nil)
	return &Verifier{
		store:    store,
		roles:    roles,
		profiles: profiles,
		activity: noopActivitySink{},
		logger:   logger,
		provider: provider,
		now:      time.Now,
	}
}

// WithActivitySink configures an ActivitySink for audit events.
func (v *Verifier) WithActivitySink(sink ActivitySink) *Verifier {
	v.activity = normalizeActivitySink(sink)
	return v
}

func (v *Verifier) WithLogger(logger Logger) *Verifier {
	v.provider, v.logger = ResolveLogger("magiclink.verifier", v.provider, logger)
	return v
}

// Verify validates the (token, email) pair and consumes the token exactly
// once. Under concurrent attempts for the same token a single caller gets
// the identity back; every other one observes ErrTokenUsed. No failure path
// touches the user profile, and a failed verification never returns a token
// to a redeemable state except the email-mismatch case, which leaves it
// unused on purpose.
func (v *Verifier) Verify(ctx context.Context, token, email string) (Identity, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}

	normalized := NormalizeEmail(email)
	if normalized == "" {
		return nil, ErrInvalidEmail
	}

	digest := TokenDigest(token)
	record, err := v.store.GetToken(ctx, digest)
	if err != nil {
		return nil, v.fail(ctx, normalized, err)
	}

	now := v.now()

	if record.Used {
		return nil, v.fail(ctx, normalized, ErrTokenUsed)
	}

	if record.Expired(now) {
		// opportunistic cleanup, the token is dead either way
		if delErr := v.store.DeleteToken(ctx, digest); delErr != nil {
			v.logger.Warn("verifier could not delete expired token", "error", delErr)
		}
		return nil, v.fail(ctx, normalized, ErrTokenExpired)
	}

	if record.Email != normalized {
		return nil, v.fail(ctx, normalized, ErrEmailMismatch)
	}

	consumed, err := v.store.ConsumeToken(ctx, digest, now)
	if err != nil {
		return nil, v.fail(ctx, normalized, err)
	}

	role := v.roles.Resolve(consumed.Email)

	if _, err := v.profiles.UpsertProfile(ctx, consumed.Email, role, now); err != nil {
		v.logger.Error("verifier profile upsert failed", "email", consumed.Email, "error", err)
		return nil, v.fail(ctx, normalized, errors.Wrap(err, ErrVerificationFailed.Category, ErrVerificationFailed.Message).
			WithTextCode(ErrVerificationFailed.TextCode))
	}

	v.emitVerifyEvent(ctx, ActivityEventTokenVerified, consumed.Email, consumed.DeviceID, map[string]any{
		"role": role,
	})

	return verifiedIdentity{
		email: consumed.Email,
		role:  role,
	}, nil
}

func (v *Verifier) fail(ctx context.Context, email string, err error) error {
	v.emitVerifyEvent(ctx, ActivityEventVerifyFailure, email, "", map[string]any{
		"error": err.Error(),
	})

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}
	return errors.Wrap(err, ErrVerificationFailed.Category, ErrVerificationFailed.Message).
		WithTextCode(ErrVerificationFailed.TextCode)
}

func (v *Verifier) emitVerifyEvent(ctx context.Context, eventType ActivityEventType, email, deviceID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Email:      email,
		DeviceID:   deviceID,
		Metadata:   metadata,
		OccurredAt: v.now(),
	}
	if err := v.activity.Record(ctx, event); err != nil {
		v.logger.Error("activity sink record failed", "event", eventType, "error", err)
	}
}

type verifiedIdentity struct {
	email string
	role  UserRole
}

func (a verifiedIdentity) Email() string {
	return a.email
}

func (a verifiedIdentity) Role() UserRole {
	return a.role
}

var _ Identity = verifiedIdentity{}
