//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package postgres is a [store.Store] backed by PostgreSQL through pgx.
//
// Records live in act_ru_authorization.  Absent user, group and resource ids
// are stored as empty strings so that the scope uniqueness constraint applies
// to every record.  Mutations run in serializable transactions.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("authz.store.postgres")

const agent = "postgres"

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New connects to dsn and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: parse config")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: new pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres: ping")
	}

	logger.Debugf(agent, "connect", "connected to %s", cfg.ConnConfig.Host)
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the schema when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return errors.Wrap(err, "postgres: migrate")
}

// WithTx runs fn in a serializable transaction, committing when fn succeeds.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return errors.Wrap(err, "postgres: begin tx")
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "postgres: commit tx")
	}
	return nil
}

func mapError(err error, a *model.Authorization) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return common.NewErrorf(common.KindDuplicate,
			"a %s authorization on resource type %d and resource id '%s' already exists for this principal",
			a.Type, a.ResourceType, a.ResourceID)
	}
	return err
}

func recordArgs(a *model.Authorization) []any {
	return []any{a.ID, int(a.Type), a.ResourceType, a.ResourceID, a.UserID, a.GroupID, a.Permissions,
		a.RemovalTime, a.RootProcessInstanceID}
}

func (s *Store) Insert(ctx context.Context, a *model.Authorization) error {
	return WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "INSERT INTO "+table+" ("+columns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
			recordArgs(a)...)
		return mapError(err, a)
	})
}

func (s *Store) Update(ctx context.Context, a *model.Authorization) error {
	return WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "UPDATE "+table+" SET type_ = $2, resource_type_ = $3, resource_id_ = $4, "+
			"user_id_ = $5, group_id_ = $6, perms_ = $7, removal_time_ = $8, root_proc_inst_id_ = $9, rev_ = rev_ + 1 "+
			"WHERE id_ = $1", recordArgs(a)...)
		if err != nil {
			return mapError(err, a)
		}
		if tag.RowsAffected() == 0 {
			return notFound(a.ID)
		}
		return nil
	})
}

func scanRecord(row pgx.CollectableRow) (*model.Authorization, error) {
	var (
		a       model.Authorization
		kind    int
		removal *time.Time
	)
	if err := row.Scan(&a.ID, &kind, &a.ResourceType, &a.ResourceID, &a.UserID, &a.GroupID, &a.Permissions,
		&removal, &a.RootProcessInstanceID); err != nil {
		return nil, err
	}
	a.Type = model.Type(kind)
	a.RemovalTime = removal
	return &a, nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Authorization, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+columns+" FROM "+table+" a WHERE a.id_ = $1", id)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: get")
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	return a, errors.Wrap(err, "postgres: get")
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE id_ = $1", id)
		if err != nil {
			return errors.Wrap(err, "postgres: delete")
		}
		if tag.RowsAffected() == 0 {
			return notFound(id)
		}
		return nil
	})
}

func (s *Store) DeleteWhere(ctx context.Context, f store.Filter) (int, error) {
	var n int
	err := WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		b := &builder{}
		tag, err := tx.Exec(ctx, "DELETE FROM "+table+" a WHERE "+compileFilter(b, f), b.args...)
		if err != nil {
			return errors.Wrap(err, "postgres: delete where")
		}
		n = int(tag.RowsAffected())
		return nil
	})
	return n, err
}

func (s *Store) list(ctx context.Context, q querier, sql string, args []any) ([]*model.Authorization, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRecord)
}

func (s *Store) Find(ctx context.Context, f store.Filter) ([]*model.Authorization, error) {
	b := &builder{}
	sql := "SELECT " + columns + " FROM " + table + " a WHERE " + compileFilter(b, f) + orderClause(f.Orders)
	result, err := s.list(ctx, s.pool, sql, b.args)
	return result, errors.Wrap(err, "postgres: find")
}

func (s *Store) Count(ctx context.Context, f store.Filter) (int, error) {
	b := &builder{}
	var n int
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+table+" a WHERE "+compileFilter(b, f), b.args...).Scan(&n)
	return n, errors.Wrap(err, "postgres: count")
}

func (s *Store) Candidates(ctx context.Context, m store.Match) ([]*model.Authorization, error) {
	b := &builder{}
	sql := "SELECT " + columns + " FROM " + table + " a WHERE " + compileMatch(b, m)
	result, err := s.list(ctx, s.pool, sql, b.args)
	return result, errors.Wrap(err, "postgres: candidates")
}

func (s *Store) HasRevokes(ctx context.Context, resourceType int) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE type_ = 2 AND resource_type_ = $1)",
		resourceType).Scan(&exists)
	return exists, errors.Wrap(err, "postgres: has revokes")
}

// Evaluate runs the compiled decision for d inside the database.
func (s *Store) Evaluate(ctx context.Context, d check.Descriptor, includeRevokes bool) (bool, error) {
	p := CompileCheck(d, includeRevokes, "")
	var allowed bool
	err := s.pool.QueryRow(ctx, "SELECT "+p.SQL, p.Args...).Scan(&allowed)
	return allowed, errors.Wrap(err, "postgres: evaluate")
}

func notFound(id string) error {
	return common.NewErrorf(common.KindNotFound, "authorization '%s' not found", id)
}
