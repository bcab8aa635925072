package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/emstore/internal/devserver/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore { return &txStore{tx: tx} }

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the outer DB stays open.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil }

func (t *txStore) Users() store.Users                 { return &usersRepo{q: t.tx} }
func (t *txStore) Sessions() store.Sessions           { return &sessionsRepo{q: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{q: t.tx} }
func (t *txStore) Campaigns() store.Campaigns         { return &campaignsRepo{q: t.tx} }
func (t *txStore) Attachments() store.Attachments     { return &attachmentsRepo{q: t.tx} }
func (t *txStore) Entries() store.Entries             { return &entriesRepo{q: t.tx} }
