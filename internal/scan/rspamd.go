package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mailcore/pkg/metrics"
)

// Actions returned by rspamd.
const (
	ActionNoAction       = "no action"
	ActionAddHeader      = "add header"
	ActionRewriteSubject = "rewrite subject"
	ActionGreylist       = "greylist"
	ActionSoftReject     = "soft reject"
	ActionReject         = "reject"
)

// Verdict is the screening result for a connection or a message body.
// Produced fresh per check, never persisted on its own.
type Verdict struct {
	Action         string
	Score          float64
	RequiredScore  float64
	RewriteSubject string
}

// Allowed reports whether the message may proceed. "rewrite subject" only
// makes sense once the body is known, so it counts as allowed only for body
// checks. A reject verdict is terminal at either stage.
func (v *Verdict) Allowed(bodyCheck bool) bool {
	switch v.Action {
	case ActionNoAction, ActionAddHeader:
		return true
	case ActionRewriteSubject:
		return bodyCheck
	default:
		return false
	}
}

// Rejected reports a terminal verdict: the message must not be delivered.
func (v *Verdict) Rejected() bool {
	return v.Action == ActionReject
}

type checkResponse struct {
	Action        string         `json:"action"`
	Score         float64        `json:"score"`
	RequiredScore float64        `json:"required_score"`
	Symbols       map[string]any `json:"symbols"`
	Subject       string         `json:"subject"`
}

// BodyCheckRequest carries the full-message check input. Body must be the
// RFC822-formatted message.
type BodyCheckRequest struct {
	From string
	Rcpt []string
	IP   string
	Helo string
	Body io.Reader
}

// RspamdClient talks to the rspamd HTTP worker. Both checks enforce the
// client timeout; an unreachable or slow scanner surfaces as a transport
// error, which the pipeline treats as retryable rather than silently
// passing or permanently rejecting unscanned mail.
type RspamdClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRspamdClient(baseURL string, timeout time.Duration) *RspamdClient {
	return &RspamdClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CheckConnection runs the coarse connection-time check using only the
// client IP and HELO name.
func (c *RspamdClient) CheckConnection(ctx context.Context, ip, helo string) (*Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkv2", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("IP", ip)
	req.Header.Set("Helo", helo)

	return c.do(req, "connection")
}

// CheckBody runs the full-message check after capture.
func (c *RspamdClient) CheckBody(ctx context.Context, check BodyCheckRequest) (*Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkv2", check.Body)
	if err != nil {
		return nil, err
	}
	if check.IP != "" {
		req.Header.Set("IP", check.IP)
	}
	if check.Helo != "" {
		req.Header.Set("Helo", check.Helo)
	}
	req.Header.Set("From", check.From)
	for _, rcpt := range check.Rcpt {
		req.Header.Add("Rcpt", rcpt)
	}

	return c.do(req, "body")
}

func (c *RspamdClient) do(req *http.Request, kind string) (*Verdict, error) {
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordScanLatency("rspamd", "error", time.Since(start))
		return nil, fmt.Errorf("rspamd %s check failed: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordScanLatency("rspamd", "error", time.Since(start))
		return nil, fmt.Errorf("rspamd %s check returned status %d", kind, resp.StatusCode)
	}

	var body checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.RecordScanLatency("rspamd", "error", time.Since(start))
		return nil, fmt.Errorf("rspamd %s check: invalid response: %w", kind, err)
	}
	metrics.RecordScanLatency("rspamd", body.Action, time.Since(start))

	return &Verdict{
		Action:         body.Action,
		Score:          body.Score,
		RequiredScore:  body.RequiredScore,
		RewriteSubject: body.Subject,
	}, nil
}
