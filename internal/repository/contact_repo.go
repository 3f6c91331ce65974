package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailcore/internal/model"
	"mailcore/pkg/metrics"
)

type ContactRepository struct {
	db *pgxpool.Pool
}

func NewContactRepository(db *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{db: db}
}

// GetOrCreate returns the contact for (email, addressID), creating it on
// first sighting. The upsert keeps the operation a single round trip and
// guarantees exactly one row per (email, address_id) under concurrent
// inbound deliveries.
func (r *ContactRepository) GetOrCreate(ctx context.Context, email string, addressID int64, name string) (*model.Contact, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("upsert", "contacts", time.Since(start)) }()

	query := `
        INSERT INTO contacts (email, address_id, name, blocked, created_at)
        VALUES ($1, $2, $3, false, now())
        ON CONFLICT (email, address_id)
        DO UPDATE SET name = CASE WHEN contacts.name = '' THEN EXCLUDED.name ELSE contacts.name END
        RETURNING id, email, address_id, name, blocked, created_at
    `
	var c model.Contact
	err := r.db.QueryRow(ctx, query, email, addressID, name).Scan(
		&c.ID,
		&c.Email,
		&c.AddressID,
		&c.Name,
		&c.Blocked,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetBlocked flips the blocked flag, the only mutation this subsystem
// applies to a contact.
func (r *ContactRepository) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("update", "contacts", time.Since(start)) }()

	query := `
        UPDATE contacts
        SET blocked = $1
        WHERE id = $2
    `
	_, err := r.db.Exec(ctx, query, blocked, id)
	return err
}
