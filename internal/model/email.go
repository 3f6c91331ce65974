package model

import "time"

// Address is a routable local mailbox. This subsystem only ever looks
// addresses up; creation belongs to the workspace management surface.
type Address struct {
	ID          int64
	Email       string
	WorkspaceID int64
}

// Contact is a remote correspondent, unique per (email, address_id). Created
// lazily on first inbound sighting; the only mutation this subsystem applies
// is the blocked flag.
type Contact struct {
	ID        int64
	Email     string
	AddressID int64
	Name      string
	Blocked   bool
	CreatedAt time.Time
}

// AttachmentMeta is the persisted attachment descriptor (no bytes).
type AttachmentMeta struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

const (
	SortNormal = "normal"
	SortSpam   = "spam"
)

// Email is the durable message record read by the rest of the platform.
// Processed=false with a non-empty ProcessingError marks a degraded save
// where only the minimal fields are trustworthy.
type Email struct {
	ID              int64
	Subject         string
	From            string
	To              []string
	Cc              []string
	Bcc             []string
	Text            string
	HTML            string
	HeadersJSON     string
	Attachments     []AttachmentMeta
	SizeBytes       int64
	Sort            string
	Processed       bool
	ProcessingError string
	ContactID       *int64
	AddressID       int64
	CreatedAt       time.Time
}
