package mq

import "time"

// InboundAttachment carries attachment metadata for a received message. The
// SMTP front end stores the bytes elsewhere; this pipeline only persists the
// metadata alongside the email record.
type InboundAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// InboundEmailReceived is published by the SMTP front end once a message has
// been accepted for a local address.
type InboundEmailReceived struct {
	RcptEmail   string              `json:"rcpt_email"`
	SenderEmail string              `json:"sender_email"`
	SenderName  string              `json:"sender_name,omitempty"`
	To          []string            `json:"to"`
	Cc          []string            `json:"cc,omitempty"`
	Subject     string              `json:"subject"`
	Text        string              `json:"text"`
	HTML        string              `json:"html,omitempty"`
	Headers     map[string][]string `json:"headers"`
	RawBody     string              `json:"raw_body,omitempty"`
	Attachments []InboundAttachment `json:"attachments,omitempty"`
	ClientIP    string              `json:"client_ip,omitempty"`
	Helo        string              `json:"helo,omitempty"`
	ReceivedAt  time.Time           `json:"received_at"`
}
