package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailcore/internal/model"
	"mailcore/pkg/metrics"
)

type EmailRepository struct {
	db *pgxpool.Pool
}

func NewEmailRepository(db *pgxpool.Pool) *EmailRepository {
	return &EmailRepository{db: db}
}

// InsertFull persists the complete email record.
func (r *EmailRepository) InsertFull(ctx context.Context, e *model.Email) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "emails", time.Since(start)) }()

	attachments, err := json.Marshal(e.Attachments)
	if err != nil {
		return 0, err
	}

	query := `
        INSERT INTO emails (
            subject, from_email, to_emails, cc_emails, bcc_emails,
            text, html, headers, attachments, size_bytes,
            sort, processed, processing_error, contact_id, address_id, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true, '', $12, $13, now())
        RETURNING id
    `
	var id int64
	err = r.db.QueryRow(ctx, query,
		e.Subject,
		e.From,
		e.To,
		e.Cc,
		e.Bcc,
		e.Text,
		e.HTML,
		e.HeadersJSON,
		attachments,
		e.SizeBytes,
		e.Sort,
		e.ContactID,
		e.AddressID,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertMinimal is the fallback save used when the full record cannot be
// written. It keeps only the fields needed to not lose the message and marks
// the row as unprocessed with the failure recorded.
func (r *EmailRepository) InsertMinimal(ctx context.Context, subject, from string, to []string, text, processingError string, contactID *int64, addressID int64) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "emails", time.Since(start)) }()

	query := `
        INSERT INTO emails (
            subject, from_email, to_emails, text,
            sort, processed, processing_error, contact_id, address_id, created_at
        )
        VALUES ($1, $2, $3, $4, $5, false, $6, $7, $8, now())
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query,
		subject,
		from,
		to,
		text,
		model.SortNormal,
		processingError,
		contactID,
		addressID,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}
