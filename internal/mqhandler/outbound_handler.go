package mqhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	contracts "mailcore/contracts/mq"
	"mailcore/internal/dnsx"
	"mailcore/internal/scan"
	"mailcore/internal/schedule"
	"mailcore/internal/smtpout"
	"mailcore/pkg/logger"
	"mailcore/pkg/metrics"
	"mailcore/pkg/util"
)

const (
	RoutingKeyOutbound = "email.outbound"
	QueueOutbound      = "email.outbound.q"
)

type BodyScreener interface {
	CheckBody(ctx context.Context, check scan.BodyCheckRequest) (*scan.Verdict, error)
}

type VirusScanner interface {
	Scan(ctx context.Context, r io.Reader) (string, error)
}

type MXResolver interface {
	ResolveMX(ctx context.Context, domain string) ([]dnsx.Exchanger, error)
}

type Sender interface {
	Send(ctx context.Context, msg *smtpout.Message, exchangers []dnsx.Exchanger) (string, error)
}

type RetryPublisher interface {
	PublishDelayed(workQueue string, payload any, delay time.Duration) error
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

type AttemptCounter interface {
	Next(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

type FailureNotifier interface {
	DeliveryFailed(ctx context.Context, job *contracts.OutboundEmailJob, reason string)
}

// OutboundHandler drives one outbound job through the pipeline: validate,
// screen, resolve MX, deliver. Failures are classified; unrecoverable ones
// are discarded to the DLQ (with the originating user notified), transient
// ones are re-enqueued on the backoff ladder. The delivery is only acked
// once the job is delivered, re-enqueued, or permanently discarded.
type OutboundHandler struct {
	screener BodyScreener
	virus    VirusScanner
	resolver MXResolver
	sender   Sender
	pub      RetryPublisher
	attempts AttemptCounter
	notifier FailureNotifier
	timeout  time.Duration
	logger   *zap.Logger
}

func NewOutboundHandler(
	screener BodyScreener,
	virus VirusScanner,
	resolver MXResolver,
	sender Sender,
	pub RetryPublisher,
	attempts AttemptCounter,
	notifier FailureNotifier,
	timeout time.Duration,
	log *zap.Logger,
) *OutboundHandler {
	return &OutboundHandler{
		screener: screener,
		virus:    virus,
		resolver: resolver,
		sender:   sender,
		pub:      pub,
		attempts: attempts,
		notifier: notifier,
		timeout:  timeout,
		logger:   log,
	}
}

func (h *OutboundHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var job contracts.OutboundEmailJob
	if err := json.Unmarshal(raw, &job); err != nil {
		// Not even parseable as a job; re-running cannot help.
		h.logger.Error("Failed to unmarshal outbound job, sending to DLQ",
			zap.Error(err),
		)
		if derr := h.pub.PublishToDLQ(RoutingKeyOutbound, raw, err.Error()); derr != nil {
			return derr
		}
		metrics.IncrementOutboundJob("discarded")
		return nil
	}

	log := logger.WithJob(h.logger, job.JobID)

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	id, err := h.process(ctx, log, &job)
	if err != nil {
		return h.fail(ctx, log, &job, raw, err)
	}

	key := util.FormatAttemptKey("outbound", job.JobID)
	if err := h.attempts.Reset(ctx, key); err != nil {
		log.Warn("Failed to reset attempt counter", zap.Error(err))
	}

	metrics.IncrementOutboundJob("delivered")
	log.Info("Outbound job delivered",
		zap.String("to", job.To),
		zap.String("message_id", id),
	)
	return nil
}

// process runs the pipeline stages in strict order: screen before resolve,
// resolve before send.
func (h *OutboundHandler) process(ctx context.Context, log *zap.Logger, job *contracts.OutboundEmailJob) (string, error) {
	if err := ValidateJob(job); err != nil {
		return "", err
	}

	msg, err := smtpout.BuildMessage(job, "")
	if err != nil {
		return "", schedule.Permanent(schedule.ReasonSchema, err)
	}

	verdict, err := h.screener.CheckBody(ctx, scan.BodyCheckRequest{
		From: job.From,
		Rcpt: msg.Recipients,
		Body: bytes.NewReader(msg.Raw),
	})
	if err != nil {
		// Scanner unavailable: retry once it recovers rather than passing
		// unscanned mail or rejecting permanently.
		return "", err
	}
	if verdict.Rejected() {
		return "", schedule.Permanent(schedule.ReasonPolicy,
			fmt.Errorf("spam check rejected message (score %.1f >= %.1f)", verdict.Score, verdict.RequiredScore))
	}
	if !verdict.Allowed(true) {
		return "", fmt.Errorf("spam check deferred message (action %q)", verdict.Action)
	}
	if verdict.Action == scan.ActionRewriteSubject && verdict.RewriteSubject != "" {
		msg, err = smtpout.BuildMessage(job, verdict.RewriteSubject)
		if err != nil {
			return "", schedule.Permanent(schedule.ReasonSchema, err)
		}
	}

	if h.virus != nil {
		for _, att := range job.Attachments {
			sig, err := h.virus.Scan(ctx, bytes.NewReader(att.Content))
			if err != nil {
				return "", err
			}
			if sig != "" {
				return "", schedule.Permanent(schedule.ReasonVirus,
					fmt.Errorf("attachment %s infected: %s", att.Filename, sig))
			}
		}
	}

	domain, err := RecipientDomain(job.To)
	if err != nil {
		return "", err
	}

	exchangers, err := h.resolver.ResolveMX(ctx, domain)
	if err != nil {
		return "", err
	}

	log.Debug("Resolved exchangers",
		zap.String("domain", domain),
		zap.Int("count", len(exchangers)),
	)

	return h.sender.Send(ctx, msg, exchangers)
}

// fail maps a pipeline failure to its scheduling outcome. It returns nil
// when the delivery should be acked (retry queued elsewhere, or permanent
// discard recorded) and an error only when even the failure handling failed
// and the broker should redeliver.
func (h *OutboundHandler) fail(ctx context.Context, log *zap.Logger, job *contracts.OutboundEmailJob, raw json.RawMessage, cause error) error {
	key := util.FormatAttemptKey("outbound", job.JobID)

	var perm *schedule.PermanentError
	if errors.As(cause, &perm) {
		log.Warn("Outbound job discarded",
			zap.String("to", job.To),
			zap.String("reason", perm.Reason),
			zap.Error(cause),
		)
		return h.discard(ctx, log, job, raw, key, cause, "discarded")
	}

	attempt, err := h.attempts.Next(ctx, key)
	if err != nil {
		log.Warn("Failed to read attempt counter, assuming first attempt", zap.Error(err))
		attempt = 0
	}

	if schedule.Exhausted(attempt) {
		log.Error("Outbound job abandoned after exhausting retries",
			zap.String("to", job.To),
			zap.Int("attempt", attempt),
			zap.Error(cause),
		)
		return h.discard(ctx, log, job, raw, key, cause, "abandoned")
	}

	decision := schedule.Classify(cause, attempt)
	if err := h.pub.PublishDelayed(QueueOutbound, job, decision.Delay); err != nil {
		// Could not queue the retry; leave the delivery unacked so the
		// broker redelivers.
		log.Error("Failed to re-enqueue job for retry", zap.Error(err))
		return err
	}

	metrics.IncrementOutboundJob("retried")
	log.Warn("Outbound job scheduled for retry",
		zap.String("to", job.To),
		zap.Int("attempt", attempt),
		zap.Duration("delay", decision.Delay),
		zap.Error(cause),
	)
	return nil
}

func (h *OutboundHandler) discard(ctx context.Context, log *zap.Logger, job *contracts.OutboundEmailJob, raw json.RawMessage, key string, cause error, outcome string) error {
	h.notifier.DeliveryFailed(ctx, job, cause.Error())

	if err := h.pub.PublishToDLQ(RoutingKeyOutbound, raw, cause.Error()); err != nil {
		log.Error("Failed to publish job to DLQ", zap.Error(err))
		return err
	}

	if err := h.attempts.Reset(ctx, key); err != nil {
		log.Warn("Failed to reset attempt counter", zap.Error(err))
	}

	metrics.IncrementOutboundJob(outcome)
	return nil
}
