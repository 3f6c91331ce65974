package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	contracts "mailcore/contracts/mq"
	"mailcore/internal/model"
	"mailcore/internal/scan"
	"mailcore/internal/schedule"
	"mailcore/pkg/metrics"
)

type AddressStore interface {
	FindByEmail(ctx context.Context, email string) (*model.Address, error)
}

type ContactStore interface {
	GetOrCreate(ctx context.Context, email string, addressID int64, name string) (*model.Contact, error)
}

type EmailStore interface {
	InsertFull(ctx context.Context, e *model.Email) (int64, error)
	InsertMinimal(ctx context.Context, subject, from string, to []string, text, processingError string, contactID *int64, addressID int64) (int64, error)
}

type BodyScreener interface {
	CheckBody(ctx context.Context, check scan.BodyCheckRequest) (*scan.Verdict, error)
}

// Service resolves the sending contact for an accepted inbound message and
// persists the email record, degrading to a minimal save when the full save
// fails so no accepted message is silently lost.
type Service struct {
	addresses AddressStore
	contacts  ContactStore
	emails    EmailStore
	screener  BodyScreener
	logger    *zap.Logger
}

func NewService(addresses AddressStore, contacts ContactStore, emails EmailStore, screener BodyScreener, logger *zap.Logger) *Service {
	return &Service{
		addresses: addresses,
		contacts:  contacts,
		emails:    emails,
		screener:  screener,
		logger:    logger,
	}
}

// ProcessInbound persists msg for its local recipient address. Unknown
// addresses and blocked senders are rejected before persistence. Only a
// failed fallback save propagates as unrecoverable; there is no degradation
// level below the minimal record.
func (s *Service) ProcessInbound(ctx context.Context, msg *contracts.InboundEmailReceived) (int64, error) {
	addr, err := s.addresses.FindByEmail(ctx, msg.RcptEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.IncrementInboundEmail("rejected")
			return 0, schedule.Permanent(schedule.ReasonPolicy,
				fmt.Errorf("no local address %s", msg.RcptEmail))
		}
		return 0, fmt.Errorf("address lookup failed: %w", err)
	}

	sender := strings.ToLower(msg.SenderEmail)
	contact, err := s.contacts.GetOrCreate(ctx, sender, addr.ID, msg.SenderName)
	if err != nil {
		return 0, fmt.Errorf("contact resolution failed: %w", err)
	}

	if contact.Blocked {
		metrics.IncrementInboundEmail("rejected")
		return 0, schedule.Permanent(schedule.ReasonPolicy,
			fmt.Errorf("sender %s is blocked for address %s", sender, msg.RcptEmail))
	}

	subject, sort := s.screen(ctx, msg)

	headersJSON, err := json.Marshal(msg.Headers)
	if err != nil {
		// Header serialization must not lose the message; fall through to
		// the minimal save with the error recorded.
		return s.fallbackSave(ctx, msg, subject, &contact.ID, addr.ID, err)
	}

	attachments := make([]model.AttachmentMeta, 0, len(msg.Attachments))
	var attachmentBytes int64
	for _, att := range msg.Attachments {
		attachments = append(attachments, model.AttachmentMeta{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			SizeBytes:   att.SizeBytes,
		})
		attachmentBytes += att.SizeBytes
	}

	email := &model.Email{
		Subject:     subject,
		From:        sender,
		To:          msg.To,
		Cc:          msg.Cc,
		Text:        msg.Text,
		HTML:        msg.HTML,
		HeadersJSON: string(headersJSON),
		Attachments: attachments,
		SizeBytes:   int64(len(msg.Text)+len(msg.HTML)) + attachmentBytes,
		Sort:        sort,
		ContactID:   &contact.ID,
		AddressID:   addr.ID,
	}

	id, err := s.emails.InsertFull(ctx, email)
	if err != nil {
		s.logger.Error("Full email save failed, attempting fallback save",
			zap.String("rcpt", msg.RcptEmail),
			zap.String("sender", sender),
			zap.Error(err),
		)
		return s.fallbackSave(ctx, msg, subject, &contact.ID, addr.ID, err)
	}

	metrics.IncrementInboundEmail("full")
	s.logger.Info("Inbound email persisted",
		zap.Int64("email_id", id),
		zap.String("rcpt", msg.RcptEmail),
		zap.String("sender", sender),
		zap.String("sort", sort),
	)
	return id, nil
}

// screen tags the message spam/normal and applies a subject rewrite. A
// scanner failure never blocks inbound persistence; the message is stored
// untagged.
func (s *Service) screen(ctx context.Context, msg *contracts.InboundEmailReceived) (subject, sort string) {
	subject = msg.Subject
	sort = model.SortNormal

	if s.screener == nil || msg.RawBody == "" {
		return subject, sort
	}

	verdict, err := s.screener.CheckBody(ctx, scan.BodyCheckRequest{
		From: msg.SenderEmail,
		Rcpt: []string{msg.RcptEmail},
		IP:   msg.ClientIP,
		Helo: msg.Helo,
		Body: strings.NewReader(msg.RawBody),
	})
	if err != nil {
		s.logger.Warn("Inbound spam check unavailable, storing untagged",
			zap.String("rcpt", msg.RcptEmail),
			zap.Error(err),
		)
		return subject, sort
	}

	if verdict.Rejected() || verdict.Action == scan.ActionAddHeader {
		sort = model.SortSpam
	}
	if verdict.Action == scan.ActionRewriteSubject && verdict.RewriteSubject != "" {
		subject = verdict.RewriteSubject
	}
	return subject, sort
}

func (s *Service) fallbackSave(ctx context.Context, msg *contracts.InboundEmailReceived, subject string, contactID *int64, addressID int64, cause error) (int64, error) {
	id, err := s.emails.InsertMinimal(ctx, subject, msg.SenderEmail, msg.To, msg.Text, cause.Error(), contactID, addressID)
	if err != nil {
		metrics.IncrementInboundEmail("failed")
		return 0, fmt.Errorf("fallback save failed after %v: %w", cause, err)
	}

	metrics.IncrementInboundEmail("fallback")
	s.logger.Warn("Inbound email saved with fallback record",
		zap.Int64("email_id", id),
		zap.String("rcpt", msg.RcptEmail),
		zap.String("processing_error", cause.Error()),
	)
	return id, nil
}
