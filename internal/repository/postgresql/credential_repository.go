package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialRepository reads per-caller provider credentials.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Lookup returns the credential stored for ownerID, or "" if there is none.
func (r *CredentialRepository) Lookup(ctx context.Context, ownerID string) (string, error) {
	if ownerID == "" {
		return "", nil
	}

	const q = `SELECT credential FROM provider_credentials WHERE owner_id = $1;`

	var cred string
	if err := r.pool.QueryRow(ctx, q, ownerID).Scan(&cred); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return cred, nil
}
