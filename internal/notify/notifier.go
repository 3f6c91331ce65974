package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	contracts "mailcore/contracts/mq"
)

const RoutingKeyDeliveryFailed = "notification.delivery_failed"

type publisher interface {
	Publish(routingKey string, payload any) error
}

// Notifier reports permanent delivery failures back to the originating user.
// Background jobs (UserID zero) are never surfaced; those failures are
// logged only.
type Notifier struct {
	pub    publisher
	logger *zap.Logger
}

func NewNotifier(pub publisher, logger *zap.Logger) *Notifier {
	return &Notifier{pub: pub, logger: logger}
}

// DeliveryFailed publishes a human-readable failure notification for a
// user-initiated job.
func (n *Notifier) DeliveryFailed(_ context.Context, job *contracts.OutboundEmailJob, reason string) {
	if job.UserID == 0 {
		return
	}

	payload := contracts.DeliveryFailedPayload{
		JobID:    job.JobID,
		UserID:   job.UserID,
		To:       job.To,
		Subject:  job.Subject,
		Reason:   reason,
		FailedAt: time.Now(),
	}

	if err := n.pub.Publish(RoutingKeyDeliveryFailed, payload); err != nil {
		n.logger.Error("Failed to publish delivery failure notification",
			zap.String("job_id", job.JobID),
			zap.Int64("user_id", job.UserID),
			zap.Error(err),
		)
	}
}
