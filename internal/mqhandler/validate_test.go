package mqhandler

import (
	"errors"
	"testing"

	contracts "mailcore/contracts/mq"
	"mailcore/internal/schedule"
)

func validJob() *contracts.OutboundEmailJob {
	return &contracts.OutboundEmailJob{
		From:    "a@x.com",
		To:      "b@y.com",
		Subject: "Hi",
		Body:    "hello",
	}
}

func TestValidateJob(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*contracts.OutboundEmailJob)
		ok     bool
	}{
		{"valid", nil, true},
		{"valid with cc and bcc", func(j *contracts.OutboundEmailJob) {
			j.Cc = []string{"c@z.com"}
			j.Bcc = []string{"d@z.com"}
		}, true},
		{"missing from", func(j *contracts.OutboundEmailJob) { j.From = "" }, false},
		{"missing to", func(j *contracts.OutboundEmailJob) { j.To = "" }, false},
		{"missing subject", func(j *contracts.OutboundEmailJob) { j.Subject = "" }, false},
		{"missing body", func(j *contracts.OutboundEmailJob) { j.Body = "" }, false},
		{"no at sign", func(j *contracts.OutboundEmailJob) { j.To = "by.com" }, false},
		{"display name form", func(j *contracts.OutboundEmailJob) { j.To = "Bob <b@y.com>" }, false},
		{"bad cc", func(j *contracts.OutboundEmailJob) { j.Cc = []string{"nope"} }, false},
		{"bad bcc", func(j *contracts.OutboundEmailJob) { j.Bcc = []string{"nope"} }, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			job := validJob()
			if tc.mutate != nil {
				tc.mutate(job)
			}

			err := ValidateJob(job)
			if tc.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var perm *schedule.PermanentError
			if !errors.As(err, &perm) {
				t.Fatalf("got %v, want PermanentError", err)
			}
			if perm.Reason != schedule.ReasonSchema {
				t.Errorf("reason: got %q, want %q", perm.Reason, schedule.ReasonSchema)
			}
		})
	}
}

func TestRecipientDomain(t *testing.T) {
	domain, err := RecipientDomain("b@Y.COM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain != "y.com" {
		t.Errorf("domain: got %q, want y.com", domain)
	}

	if _, err := RecipientDomain("no-domain"); err == nil {
		t.Fatal("expected error for address without domain")
	}
	if _, err := RecipientDomain("trailing@"); err == nil {
		t.Fatal("expected error for empty domain")
	}
}
