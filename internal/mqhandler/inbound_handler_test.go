package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	contracts "mailcore/contracts/mq"
	"mailcore/internal/inbound"
	"mailcore/internal/model"
)

type stubAddresses struct {
	addr *model.Address
	err  error
}

func (s *stubAddresses) FindByEmail(_ context.Context, _ string) (*model.Address, error) {
	return s.addr, s.err
}

type stubContacts struct {
	contact *model.Contact
	err     error
}

func (s *stubContacts) GetOrCreate(_ context.Context, _ string, _ int64, _ string) (*model.Contact, error) {
	return s.contact, s.err
}

type stubEmails struct {
	fullErr    error
	minimalErr error
}

func (s *stubEmails) InsertFull(_ context.Context, _ *model.Email) (int64, error) {
	if s.fullErr != nil {
		return 0, s.fullErr
	}
	return 1, nil
}

func (s *stubEmails) InsertMinimal(_ context.Context, _, _ string, _ []string, _, _ string, _ *int64, _ int64) (int64, error) {
	if s.minimalErr != nil {
		return 0, s.minimalErr
	}
	return 1, nil
}

func inboundPayload(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(contracts.InboundEmailReceived{
		RcptEmail:   "inbox@x.com",
		SenderEmail: "sender@y.com",
		To:          []string{"inbox@x.com"},
		Subject:     "Hello",
		Text:        "body",
	})
	if err != nil {
		t.Fatalf("failed to marshal message: %v", err)
	}
	return raw
}

func newInboundHandler(addresses *stubAddresses, contacts *stubContacts, emails *stubEmails) *InboundHandler {
	svc := inbound.NewService(addresses, contacts, emails, nil, zap.NewNop())
	return NewInboundHandler(svc, zap.NewNop())
}

func TestInboundHandle_Success(t *testing.T) {
	h := newInboundHandler(
		&stubAddresses{addr: &model.Address{ID: 7}},
		&stubContacts{contact: &model.Contact{ID: 3}},
		&stubEmails{},
	)

	if err := h.Handle(context.Background(), inboundPayload(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInboundHandle_MalformedPayloadDropped(t *testing.T) {
	h := newInboundHandler(&stubAddresses{}, &stubContacts{}, &stubEmails{})

	if err := h.Handle(context.Background(), json.RawMessage(`{broken`)); err != nil {
		t.Fatalf("malformed payload must be acked, got %v", err)
	}
}

func TestInboundHandle_RejectionDropsWithoutRequeue(t *testing.T) {
	h := newInboundHandler(
		&stubAddresses{err: pgx.ErrNoRows},
		&stubContacts{},
		&stubEmails{},
	)

	if err := h.Handle(context.Background(), inboundPayload(t)); err != nil {
		t.Fatalf("rejected message must be acked, got %v", err)
	}
}

func TestInboundHandle_TransientFailureRequeues(t *testing.T) {
	h := newInboundHandler(
		&stubAddresses{addr: &model.Address{ID: 7}},
		&stubContacts{contact: &model.Contact{ID: 3}},
		&stubEmails{fullErr: errors.New("disk full"), minimalErr: errors.New("disk full")},
	)

	if err := h.Handle(context.Background(), inboundPayload(t)); err == nil {
		t.Fatal("expected error so the broker redelivers")
	}
}
