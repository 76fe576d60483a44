package magiclink

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// HitRateLimitSQL performs the create/roll/increment in a single upsert so
// concurrent requests from the same device serialize on the row. The window
// roll threshold is (now - window): any entry that started at or before it
// resets to a fresh window with count 1.
var HitRateLimitSQL = `INSERT INTO "rate_limits" ("device_id", "window_start", "count")
VALUES (?, ?, 1)
ON CONFLICT ("device_id") DO UPDATE SET
	"count" = CASE
		WHEN "rate_limits"."window_start" <= ? THEN 1
		ELSE "rate_limits"."count" + 1
	END,
	"window_start" = CASE
		WHEN "rate_limits"."window_start" <= ? THEN "excluded"."window_start"
		ELSE "rate_limits"."window_start"
	END
RETURNING "window_start", "count";`

// BunStore is the durable TokenStore and RateLimitStore backed by Bun.
type BunStore struct {
	db       *bun.DB
	logger   Logger
	provider LoggerProvider
}

var (
	_ TokenStore     = (*BunStore)(nil)
	_ RateLimitStore = (*BunStore)(nil)
)

// NewBunStore creates a store over the given database handle.
func NewBunStore(db *bun.DB) *BunStore {
	provider, logger := ResolveLogger("magiclink.store", nil, nil)
	return &BunStore{
		db:       db,
		logger:   logger,
		provider: provider,
	}
}

func (s *BunStore) WithLogger(l Logger) *BunStore {
	s.provider, s.logger = ResolveLogger("magiclink.store", s.provider, l)
	return s
}

// WithLoggerProvider overrides the logger provider used by the store.
func (s *BunStore) WithLoggerProvider(provider LoggerProvider) *BunStore {
	s.provider, s.logger = ResolveLogger("magiclink.store", provider, s.logger)
	return s
}

// SaveToken persists a token record. Errors fail closed: the caller must
// treat the token as never issued.
func (s *BunStore) SaveToken(ctx context.Context, token *MagicToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	if _, err := s.db.NewInsert().Model(token).Exec(ctx); err != nil {
		s.logger.Error("store save token failed", "error", err)
		return errors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
			WithTextCode(ErrStoreUnavailable.TextCode)
	}
	return nil
}

// GetToken looks a token up by digest.
func (s *BunStore) GetToken(ctx context.Context, digest string) (*MagicToken, error) {
	token := &MagicToken{}
	err := s.db.NewSelect().
		Model(token).
		Where("?TableAlias.token_digest = ?", digest).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, errors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
			WithTextCode(ErrStoreUnavailable.TextCode)
	}
	return token, nil
}

// ConsumeToken marks the token used with a single guarded update. The
// used = FALSE predicate is the compare-and-set: whichever concurrent
// attempt lands first wins and every other one falls through to the
// post-mortem lookup below.
func (s *BunStore) ConsumeToken(ctx context.Context, digest string, now time.Time) (*MagicToken, error) {
	res, err := s.db.NewUpdate().
		Model((*MagicToken)(nil)).
		Set("used = TRUE").
		Set("used_at = ?", now).
		Where("?TableAlias.token_digest = ?", digest).
		Where("?TableAlias.used = FALSE").
		Where("?TableAlias.expires_at > ?", now).
		Exec(ctx)

	if err != nil {
		return nil, errors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
			WithTextCode(ErrStoreUnavailable.TextCode)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
			WithTextCode(ErrStoreUnavailable.TextCode)
	}

	if affected == 0 {
		token, err := s.GetToken(ctx, digest)
		if err != nil {
			return nil, err
		}
		if token.Used {
			return nil, ErrTokenUsed
		}
		if token.Expired(now) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenNotFound
	}

	return s.GetToken(ctx, digest)
}

// DeleteToken removes a token row by digest.
func (s *BunStore) DeleteToken(ctx context.Context, digest string) error {
	if _, err := s.db.NewDelete().
		Model((*MagicToken)(nil)).
		Where("?TableAlias.token_digest = ?", digest).
		Exec(ctx); err != nil {
		return errors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
			WithTextCode(ErrStoreUnavailable.TextCode)
	}
	return nil
}

// PurgeExpired sweeps tokens past their expiry. Safe to skip under load;
// verification treats expired tokens as invalid either way.
func (s *BunStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.NewDelete().
		Model((*MagicToken)(nil)).
		Where("?TableAlias.expires_at <= ?", now).
		Exec(ctx)

	if err != nil {
		return 0, errors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
			WithTextCode(ErrStoreUnavailable.TextCode)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

// Hit runs the atomic upsert and returns the post-update entry.
func (s *BunStore) Hit(ctx context.Context, deviceID string, now time.Time, window time.Duration) (*RateLimitEntry, error) {
	threshold := now.Add(-window)

	entry := &RateLimitEntry{DeviceID: deviceID}
	row := s.db.QueryRowContext(ctx, HitRateLimitSQL, deviceID, now, threshold, threshold)
	if err := row.Scan(&entry.WindowStart, &entry.Count); err != nil {
		s.logger.Error("store rate limit hit failed", "error", err)
		return nil, errors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
			WithTextCode(ErrStoreUnavailable.TextCode)
	}
	return entry, nil
}
