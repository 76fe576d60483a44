package magiclink

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LoggerProvider resolves named loggers so hosts can route package output
// through their own logging stack.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// ResolveLogger picks the logger for a named component: a provider wins over
// an explicit logger, which wins over the package default.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		return provider, provider.GetLogger(name)
	}
	if logger != nil {
		return nil, logger
	}
	return nil, defLogger{}
}

// Identity holds the attributes of a verified identity.
type Identity interface {
	Email() string
	Role() UserRole
}

// Mailer is the out-of-band delivery collaborator. The clear token value
// must only ever travel through this channel.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, token string) error
}

// MailerFunc adapts a function into a Mailer.
type MailerFunc func(ctx context.Context, email, token string) error

// SendMagicLink satisfies the Mailer interface.
func (f MailerFunc) SendMagicLink(ctx context.Context, email, token string) error {
	if f == nil {
		return nil
	}
	return f(ctx, email, token)
}

// TokenStore is the storage contract for outstanding magic-link tokens.
// Tokens are keyed by digest, never by clear value. ConsumeToken must be
// mutually exclusive per token: under concurrent attempts exactly one caller
// wins and the rest observe ErrTokenUsed.
type TokenStore interface {
	SaveToken(ctx context.Context, token *MagicToken) error
	GetToken(ctx context.Context, digest string) (*MagicToken, error)
	ConsumeToken(ctx context.Context, digest string, now time.Time) (*MagicToken, error)
	DeleteToken(ctx context.Context, digest string) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// RateLimitStore tracks issuance requests per device fingerprint. Hit
// creates the entry on first sight, resets it when the window rolled over,
// and increments it otherwise; the update must be atomic per device key.
type RateLimitStore interface {
	Hit(ctx context.Context, deviceID string, now time.Time, window time.Duration) (*RateLimitEntry, error)
}

// SessionStore is durable local storage on the client device. Read reports
// absence through its second return value rather than an error.
type SessionStore interface {
	Read(key string) (string, bool, error)
	Write(key, value string) error
	Delete(key string) error
}

// Config holds magiclink options.
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetTokenTTL() time.Duration
	GetSessionTTL() time.Duration
	GetRenewThrottle() time.Duration
	GetSweepInterval() time.Duration
	GetRateLimitCeiling() int
	GetRateLimitWindow() time.Duration
	GetAdminAllowList() []string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] MAGICLINK "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] MAGICLINK "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] MAGICLINK "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] MAGICLINK "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
