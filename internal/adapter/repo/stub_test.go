package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stylebff/internal/infra"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type execCall struct {
	query string
	args  []any
}

// stubSQL answers QueryRow by statement and records every Exec.
type stubSQL struct {
	rows      map[string]func(args []any) pgx.Row
	affected  int64
	execErr   error
	execs     []execCall
	txCalls   int
	txErr     error
	committed bool
}

func (s *stubSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{query: query, args: args})
	if s.execErr != nil {
		return pgconn.CommandTag{}, s.execErr
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", s.affected)), nil
}

func (s *stubSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if fn, ok := s.rows[query]; ok {
		return fn(args)
	}
	return simpleRow{}
}

func (s *stubSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSQL) InTx(ctx context.Context, fn func(tx infra.SQLExecutor) error) error {
	s.txCalls++
	if s.txErr != nil {
		return s.txErr
	}
	if err := fn(s); err != nil {
		return err
	}
	s.committed = true
	return nil
}
