package smtpout

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"mailcore/internal/dnsx"
	"mailcore/internal/schedule"
	"mailcore/pkg/metrics"
)

// Transport is one open connection to a candidate exchanger. Send returns
// the identifier of the accepted message; an empty identifier counts as a
// send failure.
type Transport interface {
	Verify(ctx context.Context) error
	Send(ctx context.Context, msg *Message) (string, error)
	Close() error
}

// Dialer opens a transport to an exchanger host.
type Dialer interface {
	Dial(ctx context.Context, host string) (Transport, error)
}

// Engine delivers a message over SMTP, iterating exchangers in priority
// order with per-exchanger failover.
type Engine struct {
	dialer Dialer
	signer *Signer
	logger *zap.Logger
}

func NewEngine(dialer Dialer, signer *Signer, logger *zap.Logger) *Engine {
	return &Engine{
		dialer: dialer,
		signer: signer,
		logger: logger,
	}
}

// Send signs msg and attempts delivery through each exchanger in turn. A
// verification or send failure moves on to the next exchanger; exhausting
// all of them is a transient failure since the recipient infrastructure may
// recover. A missing signing key aborts the whole job: it is never safe to
// send unsigned mail for the platform's sending domain.
func (e *Engine) Send(ctx context.Context, msg *Message, exchangers []dnsx.Exchanger) (string, error) {
	if e.signer == nil {
		return "", schedule.Permanent(schedule.ReasonConfig, fmt.Errorf("no DKIM signing key configured for %s", msg.From))
	}

	signed, err := e.signer.Sign(msg.Raw)
	if err != nil {
		return "", schedule.Permanent(schedule.ReasonConfig, err)
	}
	signedMsg := *msg
	signedMsg.Raw = signed

	var lastErr error
	for _, ex := range exchangers {
		start := time.Now()

		transport, err := e.dialer.Dial(ctx, ex.Host)
		if err != nil {
			metrics.IncrementDeliveryAttempt("dial_failed")
			e.logger.Warn("Exchanger dial failed",
				zap.String("exchanger", ex.Host),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		if err := transport.Verify(ctx); err != nil {
			metrics.IncrementDeliveryAttempt("verify_failed")
			e.logger.Warn("Exchanger verification failed",
				zap.String("exchanger", ex.Host),
				zap.Error(err),
			)
			transport.Close()
			lastErr = err
			continue
		}

		id, err := transport.Send(ctx, &signedMsg)
		transport.Close()
		if err != nil {
			metrics.IncrementDeliveryAttempt("send_failed")
			metrics.RecordSMTPSendLatency("failed", time.Since(start))
			e.logger.Warn("Send via exchanger failed",
				zap.String("exchanger", ex.Host),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if id == "" {
			metrics.IncrementDeliveryAttempt("send_failed")
			metrics.RecordSMTPSendLatency("failed", time.Since(start))
			lastErr = fmt.Errorf("exchanger %s returned no message identifier", ex.Host)
			e.logger.Warn("Send returned no message identifier",
				zap.String("exchanger", ex.Host),
			)
			continue
		}

		metrics.IncrementDeliveryAttempt("sent")
		metrics.RecordSMTPSendLatency("sent", time.Since(start))
		e.logger.Info("Message delivered",
			zap.String("exchanger", ex.Host),
			zap.String("message_id", id),
		)
		return id, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no exchangers to try")
	}
	return "", fmt.Errorf("all %d exchangers failed: %w", len(exchangers), lastErr)
}

// SMTPDialer opens plaintext SMTP connections to port 25 of the resolved
// exchanger hosts.
type SMTPDialer struct {
	Helo    string
	Port    int
	Timeout time.Duration
}

func NewSMTPDialer(helo string, port int, timeout time.Duration) *SMTPDialer {
	if port == 0 {
		port = 25
	}
	return &SMTPDialer{Helo: helo, Port: port, Timeout: timeout}
}

func (d *SMTPDialer) Dial(ctx context.Context, host string) (Transport, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(d.Port))
	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s failed: %w", addr, err)
	}
	if d.Timeout > 0 {
		client.CommandTimeout = d.Timeout
		client.SubmissionTimeout = d.Timeout
	}
	return &smtpTransport{client: client, helo: d.Helo}, nil
}

type smtpTransport struct {
	client *smtp.Client
	helo   string
}

// Verify confirms the exchanger is willing to talk to us before any mail is
// committed: HELO followed by NOOP. VRFY is deliberately not used since most
// exchangers reject it regardless of deliverability.
func (t *smtpTransport) Verify(_ context.Context) error {
	if err := t.client.Hello(t.helo); err != nil {
		return fmt.Errorf("HELO failed: %w", err)
	}
	if err := t.client.Noop(); err != nil {
		return fmt.Errorf("NOOP failed: %w", err)
	}
	return nil
}

func (t *smtpTransport) Send(_ context.Context, msg *Message) (string, error) {
	if err := t.client.Mail(msg.From, nil); err != nil {
		return "", fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range msg.Recipients {
		if err := t.client.Rcpt(rcpt, nil); err != nil {
			return "", fmt.Errorf("RCPT TO %s failed: %w", rcpt, err)
		}
	}

	w, err := t.client.Data()
	if err != nil {
		return "", fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(msg.Raw); err != nil {
		w.Close()
		return "", fmt.Errorf("message write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("message close failed: %w", err)
	}

	// The exchanger accepted the message; a failed QUIT is not a delivery
	// failure.
	_ = t.client.Quit()
	return msg.MessageID, nil
}

func (t *smtpTransport) Close() error {
	return t.client.Close()
}
