package magiclink

import (
	"context"
	"database/sql"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the profile repository. UpsertProfile is the collaborator the
// Verifier calls on every successful redemption; it must converge
// concurrent redemptions for one email onto a single record.
type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	UpsertProfile(ctx context.Context, email string, role UserRole, now time.Time) (*User, error)
	UpsertProfileTx(ctx context.Context, tx bun.IDB, email string, role UserRole, now time.Time) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users           = (*users)(nil)
	_ ProfileUpserter = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

// UpsertProfile writes or merges the profile for a redeemed identity. The
// user ID is derived deterministically from the normalized email, so
// concurrent redemptions race onto the same row and the conflict clause
// makes the merge idempotent.
func (a *users) UpsertProfile(ctx context.Context, email string, role UserRole, now time.Time) (*User, error) {
	return a.UpsertProfileTx(ctx, a.db, email, role, now)
}

func (a *users) UpsertProfileTx(ctx context.Context, tx bun.IDB, email string, role UserRole, now time.Time) (*User, error) {
	normalized := NormalizeEmail(email)

	record := &User{
		Email:       normalized,
		DisplayName: displayNameFromEmail(normalized),
		Role:        role,
		Verified:    true,
		LastLogin:   &now,
	}

	if id, err := hashid.NewUUID(normalized); err == nil {
		record.ID = id
	} else {
		record.ID = uuid.New()
	}

	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (email) DO UPDATE").
		Set("user_role = EXCLUDED.user_role").
		Set("is_email_verified = TRUE").
		Set("last_login_at = EXCLUDED.last_login_at").
		Set("updated_at = EXCLUDED.last_login_at").
		Exec(ctx)

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to upsert user profile").
			WithMetadata(map[string]any{"email": normalized})
	}

	return a.GetByEmailTx(ctx, tx, normalized)
}

func displayNameFromEmail(email string) string {
	if strings.Contains(email, "@") {
		return strings.Split(email, "@")[0]
	}
	return email
}
