package smtpout

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	contracts "mailcore/contracts/mq"
)

// Message is the built RFC822 message plus the envelope the delivery engine
// needs. Raw is unsigned; the engine signs before handing it to a transport.
type Message struct {
	From       string
	Recipients []string
	MessageID  string
	Subject    string
	Raw        []byte
}

// BuildMessage renders an outbound job to an RFC822 message with text,
// optional HTML alternative, and attachments. A Message-ID is generated from
// the sending domain when the job does not carry one. subjectOverride
// replaces the job subject when non-empty (rspamd rewrite-subject action).
func BuildMessage(job *contracts.OutboundEmailJob, subjectOverride string) (*Message, error) {
	subject := job.Subject
	if subjectOverride != "" {
		subject = subjectOverride
	}

	messageID := strings.Trim(job.MessageID, "<>")
	if messageID == "" {
		messageID = generateMessageID(job.From)
	}

	date := job.Date
	if date.IsZero() {
		date = time.Now()
	}

	var h mail.Header
	h.SetDate(date)
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Address: job.From}})
	h.SetAddressList("To", []*mail.Address{{Address: job.To}})
	if len(job.Cc) > 0 {
		h.SetAddressList("Cc", addressList(job.Cc))
	}
	if job.ReplyTo != "" {
		h.SetAddressList("Reply-To", []*mail.Address{{Address: job.ReplyTo}})
	}
	h.SetMessageID(messageID)
	if job.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{strings.Trim(job.InReplyTo, "<>")})
	}
	if len(job.References) > 0 {
		refs := make([]string, 0, len(job.References))
		for _, ref := range job.References {
			refs = append(refs, strings.Trim(ref, "<>"))
		}
		h.SetMsgIDList("References", refs)
	}
	if job.Priority != "" {
		h.Set("X-Priority", priorityHeader(job.Priority))
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := iw.CreatePart(th)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(tw, job.Body); err != nil {
		return nil, err
	}
	tw.Close()

	if job.HTML != "" {
		var hh mail.InlineHeader
		hh.SetContentType("text/html", map[string]string{"charset": "utf-8"})
		hw, err := iw.CreatePart(hh)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(hw, job.HTML); err != nil {
			return nil, err
		}
		hw.Close()
	}
	iw.Close()

	for _, att := range job.Attachments {
		var ah mail.AttachmentHeader
		ah.SetFilename(att.Filename)
		if att.ContentType != "" {
			ah.SetContentType(att.ContentType, nil)
		}
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", att.Filename, err)
		}
		if _, err := aw.Write(att.Content); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", att.Filename, err)
		}
		aw.Close()
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}

	recipients := append([]string{job.To}, job.Cc...)
	recipients = append(recipients, job.Bcc...)

	return &Message{
		From:       job.From,
		Recipients: recipients,
		MessageID:  messageID,
		Subject:    subject,
		Raw:        buf.Bytes(),
	}, nil
}

func addressList(addrs []string) []*mail.Address {
	list := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, &mail.Address{Address: a})
	}
	return list
}

func generateMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return fmt.Sprintf("%s@%s", uuid.NewString(), domain)
}

func priorityHeader(priority string) string {
	switch strings.ToLower(priority) {
	case "high":
		return "1 (Highest)"
	case "low":
		return "5 (Lowest)"
	default:
		return "3 (Normal)"
	}
}
