package magiclink

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MagicToken is a single-use sign-in token. Only the SHA-256 digest of the
// clear token value is persisted. A token transitions unused -> used exactly
// once; past ExpiresAt it is invalid regardless of Used and is eligible for
// deletion.
type MagicToken struct {
	bun.BaseModel `bun:"table:magic_tokens,alias:mlt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	TokenDigest   string     `bun:"token_digest,notnull,unique" json:"-"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Role          UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	DeviceID      string     `bun:"device_id" json:"device_id,omitempty"`
	Used          bool       `bun:"used,notnull,default:false" json:"used,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *MagicToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func (t *MagicToken) clone() *MagicToken {
	if t == nil {
		return nil
	}
	cp := *t
	if t.UsedAt != nil {
		usedAt := *t.UsedAt
		cp.UsedAt = &usedAt
	}
	if t.CreatedAt != nil {
		createdAt := *t.CreatedAt
		cp.CreatedAt = &createdAt
	}
	return &cp
}

// RateLimitEntry counts sign-in requests for one device fingerprint inside
// the current window.
type RateLimitEntry struct {
	bun.BaseModel `bun:"table:rate_limits,alias:rl"`
	DeviceID      string    `bun:"device_id,pk" json:"device_id"`
	WindowStart   time.Time `bun:"window_start,notnull" json:"window_start"`
	Count         int       `bun:"count,notnull" json:"count"`
}

// WindowExpired reports whether the entry's window rolled over.
func (e *RateLimitEntry) WindowExpired(now time.Time, window time.Duration) bool {
	return !now.Before(e.WindowStart.Add(window))
}

// ResetAt returns the instant the current window rolls over.
func (e *RateLimitEntry) ResetAt(window time.Duration) time.Time {
	return e.WindowStart.Add(window)
}

// User is the profile record upserted whenever a token is redeemed. Upserts
// are idempotent on Email.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	DisplayName   string     `bun:"display_name" json:"display_name,omitempty"`
	Role          UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Verified      bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	LastLogin     *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}
