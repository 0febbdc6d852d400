package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"place-discovery-service/internal/entity"
)

// RegistryInserter adds customers inside an open transaction.
type RegistryInserter interface {
	Insert(ctx context.Context, c entity.RegistryCustomer) error
}

// RegistryRepository writes imported customers to registry_customers.
type RegistryRepository struct {
	pool *pgxpool.Pool
}

func NewRegistryRepository(pool *pgxpool.Pool) *RegistryRepository {
	return &RegistryRepository{pool: pool}
}

// WithTx runs fn in one transaction: all inserts commit together or none do.
func (r *RegistryRepository) WithTx(ctx context.Context, fn func(RegistryInserter) error) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
	}()

	if err = fn(registryTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type registryTx struct {
	tx pgx.Tx
}

func (t registryTx) Insert(ctx context.Context, c entity.RegistryCustomer) error {
	const q = `
INSERT INTO registry_customers (name, locality, category, website, phone, status, source_job_id)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err := t.tx.Exec(ctx, q, c.Name, c.Locality, c.Category, c.Website, c.Phone, c.Status, c.JobID)
	return err
}
