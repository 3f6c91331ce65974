package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	contracts "mailcore/contracts/mq"
	"mailcore/internal/inbound"
	"mailcore/internal/schedule"
)

const (
	RoutingKeyInbound = "email.inbound.received"
	QueueInbound      = "email.inbound.received.q"
)

// InboundHandler consumes accepted inbound messages from the SMTP front end
// and writes them through the inbound resolution/persistence service.
// Inbound processing is background work: failures are never surfaced to a
// user, only logged, and transient failures requeue.
type InboundHandler struct {
	service *inbound.Service
	logger  *zap.Logger
}

func NewInboundHandler(service *inbound.Service, logger *zap.Logger) *InboundHandler {
	return &InboundHandler{service: service, logger: logger}
}

func (h *InboundHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var msg contracts.InboundEmailReceived
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Error("Failed to unmarshal inbound message, dropping",
			zap.Error(err),
		)
		return nil
	}

	_, err := h.service.ProcessInbound(ctx, &msg)
	if err != nil {
		var perm *schedule.PermanentError
		if errors.As(err, &perm) {
			// Unknown address or blocked sender: drop, do not requeue.
			h.logger.Info("Inbound message rejected",
				zap.String("rcpt", msg.RcptEmail),
				zap.String("sender", msg.SenderEmail),
				zap.String("reason", perm.Reason),
			)
			return nil
		}
		h.logger.Error("Inbound processing failed, will retry",
			zap.String("rcpt", msg.RcptEmail),
			zap.String("sender", msg.SenderEmail),
			zap.Error(err),
		)
		return err
	}

	return nil
}
