package magiclink

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// DefaultTokenTTL is the default lifetime of an outstanding sign-in token.
// Deliberately short and independent of the session lifetime.
const DefaultTokenTTL = 15 * time.Minute

// IssueReceipt is the opaque acknowledgment for a sign-in request. It never
// carries the token value; the only way the token travels is the Mailer.
type IssueReceipt struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	Remaining int       `json:"remaining"`
}

// Issuer creates single-use sign-in tokens bound to (email, role, expiry)
// and hands them to the delivery collaborator.
type Issuer struct {
	store    TokenStore
	limiter  *RateLimiter
	roles    *RoleResolver
	mailer   Mailer
	tokenTTL time.Duration
	activity ActivitySink
	logger   Logger
	provider LoggerProvider
	now      func() time.Time
}

// NewIssuer wires the issuer with its collaborators.
func NewIssuer(store TokenStore, limiter *RateLimiter, roles *RoleResolver, mailer Mailer) *Issuer {
	provider, logger := ResolveLogger("magiclink.issuer", nil, nil)
	return &Issuer{
		store:    store,
		limiter:  limiter,
		roles:    roles,
		mailer:   mailer,
		tokenTTL: DefaultTokenTTL,
		activity: noopActivitySink{},
		logger:   logger,
		provider: provider,
		now:      time.Now,
	}
}

// WithTokenTTL overrides the token lifetime. Non-positive values are ignored.
func (i *Issuer) WithTokenTTL(ttl time.Duration) *Issuer {
	if ttl > 0 {
		i.tokenTTL = ttl
	}
	return i
}

// WithActivitySink configures an ActivitySink for audit events.
func (i *Issuer) WithActivitySink(sink ActivitySink) *Issuer {
	i.activity = normalizeActivitySink(sink)
	return i
}

func (i *Issuer) WithLogger(logger Logger) *Issuer {
	i.provider, i.logger = ResolveLogger("magiclink.issuer", i.provider, logger)
	return i
}

// Request validates the email, charges the device quota, mints and persists
// a token, and triggers out-of-band delivery. Any persistence failure fails
// closed: no token is considered issued.
func (i *Issuer) Request(ctx context.Context, email, deviceID string) (*IssueReceipt, error) {
	normalized := NormalizeEmail(email)
	if !ValidEmail(normalized) {
		i.emitIssueEvent(ctx, ActivityEventIssueFailure, normalized, deviceID, map[string]any{
			"error": ErrInvalidEmail.Message,
		})
		return nil, ErrInvalidEmail
	}

	decision, err := i.limiter.Allow(ctx, deviceID)
	if err != nil {
		i.emitIssueEvent(ctx, ActivityEventIssueFailure, normalized, deviceID, map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	role := i.roles.Resolve(normalized)

	clear, err := MintToken()
	if err != nil {
		return nil, err
	}

	now := i.now()
	record := &MagicToken{
		TokenDigest: TokenDigest(clear),
		Email:       normalized,
		Role:        role,
		DeviceID:    deviceID,
		ExpiresAt:   now.Add(i.tokenTTL),
	}

	if err := i.store.SaveToken(ctx, record); err != nil {
		i.logger.Error("issuer failed to persist token", "error", err)
		i.emitIssueEvent(ctx, ActivityEventIssueFailure, normalized, deviceID, map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	if err := i.mailer.SendMagicLink(ctx, normalized, clear); err != nil {
		// undo so an undeliverable token does not linger redeemable
		if delErr := i.store.DeleteToken(ctx, record.TokenDigest); delErr != nil {
			i.logger.Error("issuer failed to discard undelivered token", "error", delErr)
		}
		i.emitIssueEvent(ctx, ActivityEventIssueFailure, normalized, deviceID, map[string]any{
			"error": err.Error(),
		})
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to deliver sign-in link")
	}

	i.emitIssueEvent(ctx, ActivityEventTokenIssued, normalized, deviceID, map[string]any{
		"role":       role,
		"expires_at": record.ExpiresAt,
	})

	return &IssueReceipt{
		Email:     normalized,
		ExpiresAt: record.ExpiresAt,
		Remaining: decision.Remaining,
	}, nil
}

func (i *Issuer) emitIssueEvent(ctx context.Context, eventType ActivityEventType, email, deviceID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Email:      email,
		DeviceID:   deviceID,
		Metadata:   metadata,
		OccurredAt: i.now(),
	}
	if err := i.activity.Record(ctx, event); err != nil {
		i.logger.Error("activity sink record failed", "event", eventType, "error", err)
	}
}
