package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailcore/internal/model"
	"mailcore/pkg/metrics"
)

type AddressRepository struct {
	db *pgxpool.Pool
}

func NewAddressRepository(db *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{db: db}
}

// FindByEmail returns the local address owning the given mailbox. Returns
// pgx.ErrNoRows when the address is not provisioned here.
func (r *AddressRepository) FindByEmail(ctx context.Context, email string) (*model.Address, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "addresses", time.Since(start)) }()

	query := `
        SELECT id, email, workspace_id
        FROM addresses
        WHERE email = $1
    `
	var a model.Address
	err := r.db.QueryRow(ctx, query, email).Scan(
		&a.ID,
		&a.Email,
		&a.WorkspaceID,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
