package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/designforge/internal/database"
)

// Store bundles the repositories over one scope: either the connection pool or a
// single transaction. Callers that need atomicity pass the *Store handed to
// Transact down to every write.
type Store struct {
	root    *sqlx.DB
	inTx    bool
	dialect database.Dialect

	Users         *UserRepository
	Subscriptions *SubscriptionRepository
	Usage         *UsageRepository
	Designs       *DesignRepository
	Generations   *GenerationRepository
	Mockups       *MockupRepository
	Products      *ProductRepository
	Orders        *OrderRepository
	Promos        *PromoRepository
}

func NewStore(db *sqlx.DB) *Store {
	return newStore(db, db, false, database.DialectOf(db))
}

func newStore(root *sqlx.DB, db sqlx.ExtContext, inTx bool, dialect database.Dialect) *Store {
	return &Store{
		root:          root,
		inTx:          inTx,
		dialect:       dialect,
		Users:         &UserRepository{db: db},
		Subscriptions: &SubscriptionRepository{db: db, dialect: dialect},
		Usage:         &UsageRepository{db: db},
		Designs:       &DesignRepository{db: db},
		Generations:   &GenerationRepository{db: db},
		Mockups:       &MockupRepository{db: db},
		Products:      &ProductRepository{db: db},
		Orders:        &OrderRepository{db: db},
		Promos:        &PromoRepository{db: db},
	}
}

func (s *Store) DB() *sqlx.DB {
	return s.root
}

// Transact runs fn inside one database transaction and commits when fn returns
// nil. Calling Transact on a store that is already transactional joins the
// outer transaction. SQLite busy errors retry the whole unit.
func (s *Store) Transact(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return database.RetryOnBusy(ctx, func() error {
		tx, err := s.root.BeginTxx(ctx, &sql.TxOptions{})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		if err := fn(newStore(s.root, tx, true, s.dialect)); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func now() time.Time {
	return time.Now().UTC()
}

// getOne loads a single row into dest. It reports false, nil when no row matches.
func getOne(ctx context.Context, db sqlx.ExtContext, dest any, query string, args ...any) (bool, error) {
	if err := sqlx.GetContext(ctx, db, dest, db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func exec(ctx context.Context, db sqlx.ExtContext, query string, args ...any) (sql.Result, error) {
	return db.ExecContext(ctx, db.Rebind(query), args...)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
