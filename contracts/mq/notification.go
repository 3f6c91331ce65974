package mq

import "time"

// DeliveryFailedPayload notifies the originating user that an outbound email
// was permanently discarded or abandoned after exhausting retries.
type DeliveryFailedPayload struct {
	JobID    string    `json:"job_id"`
	UserID   int64     `json:"user_id"`
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}
