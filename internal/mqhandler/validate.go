package mqhandler

import (
	"fmt"
	"net/mail"
	"strings"

	contracts "mailcore/contracts/mq"
	"mailcore/internal/schedule"
)

// ValidateJob checks the outbound job against the queue schema. A malformed
// job is unrecoverable: retrying cannot make the payload well-formed.
func ValidateJob(job *contracts.OutboundEmailJob) error {
	if job.From == "" {
		return schedule.Permanent(schedule.ReasonSchema, fmt.Errorf("missing from"))
	}
	if !validEmail(job.From) {
		return schedule.Permanent(schedule.ReasonSchema, fmt.Errorf("invalid from address %q", job.From))
	}
	if job.To == "" {
		return schedule.Permanent(schedule.ReasonSchema, fmt.Errorf("missing to"))
	}
	if !validEmail(job.To) {
		return schedule.Permanent(schedule.ReasonSchema, fmt.Errorf("invalid to address %q", job.To))
	}
	if job.Subject == "" {
		return schedule.Permanent(schedule.ReasonSchema, fmt.Errorf("missing subject"))
	}
	if job.Body == "" {
		return schedule.Permanent(schedule.ReasonSchema, fmt.Errorf("missing body"))
	}
	for _, cc := range job.Cc {
		if !validEmail(cc) {
			return schedule.Permanent(schedule.ReasonSchema, fmt.Errorf("invalid cc address %q", cc))
		}
	}
	for _, bcc := range job.Bcc {
		if !validEmail(bcc) {
			return schedule.Permanent(schedule.ReasonSchema, fmt.Errorf("invalid bcc address %q", bcc))
		}
	}
	return nil
}

func validEmail(addr string) bool {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return false
	}
	// Reject display-name forms; the queue schema carries bare addresses.
	return parsed.Address == addr && strings.Contains(addr, "@")
}

// RecipientDomain extracts the recipient domain the MX lookup targets.
func RecipientDomain(to string) (string, error) {
	i := strings.LastIndex(to, "@")
	if i < 0 || i == len(to)-1 {
		return "", schedule.Permanent(schedule.ReasonSchema, fmt.Errorf("no domain in recipient %q", to))
	}
	return strings.ToLower(to[i+1:]), nil
}
