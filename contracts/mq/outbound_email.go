package mq

import "time"

// Attachment carries attachment bytes on the wire (base64 in JSON).
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// OutboundEmailJob is the payload consumed from the outbound queue. The job
// is immutable once enqueued; re-enqueued retries carry the same payload.
// UserID is non-zero when the job originated from a direct user action, in
// which case unrecoverable failures are reported back to that user.
type OutboundEmailJob struct {
	JobID       string       `json:"job_id"`
	UserID      int64        `json:"user_id,omitempty"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Cc          []string     `json:"cc,omitempty"`
	Bcc         []string     `json:"bcc,omitempty"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	HTML        string       `json:"html,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	MessageID   string       `json:"message_id,omitempty"`
	InReplyTo   string       `json:"in_reply_to,omitempty"`
	References  []string     `json:"references,omitempty"`
	Date        time.Time    `json:"date,omitempty"`
	Priority    string       `json:"priority,omitempty"`
}
