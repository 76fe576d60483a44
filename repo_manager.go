package magiclink

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Tokens() repository.Repository[*MagicToken]
}

// NewTokensRepository builds a CRUD repository over stored token records.
// The issue and verify flows talk to TokenStore directly; this repository
// is host-facing, for admin tooling and custom queries over outstanding
// tokens, the same way hosts reach the users repository.
func NewTokensRepository(db *bun.DB) repository.Repository[*MagicToken] {
	handlers := repository.ModelHandlers[*MagicToken]{
		NewRecord: func() *MagicToken {
			return &MagicToken{}
		},
		GetID: func(record *MagicToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *MagicToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token_digest"
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db     *bun.DB
	users  Users
	tokens repository.Repository[*MagicToken]
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:     db,
		users:  NewUsersRepository(db),
		tokens: NewTokensRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.tokens == nil {
		return errors.New("repository tokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Tokens() repository.Repository[*MagicToken] {
	return m.tokens
}
