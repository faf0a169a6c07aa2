package mime

import (
	"strconv"
	"time"
)

// Placeholders used by Summarize for missing headers.
const (
	NoSubject        = "(no subject)"
	UnknownSender    = "(unknown sender)"
	UnknownRecipient = "(unknown recipient)"
)

// Envelope is the display summary of a message.
type Envelope struct {
	Subject string    `json:"subject"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Date    string    `json:"date"`
	Sent    time.Time `json:"sent,omitzero"`
}

// Summarize extracts subject, sender, recipient and date from a payload.
// internalDate is the provider timestamp in unix milliseconds and is used
// when the Date header is absent or unparsable.
func Summarize(p *Payload, internalDate int64) Envelope {
	env := Envelope{
		Subject: p.Header("Subject"),
		From:    p.Header("From"),
		To:      p.Header("To"),
		Date:    p.Header("Date"),
	}
	if env.Subject == "" {
		env.Subject = NoSubject
	}
	if env.From == "" {
		env.From = UnknownSender
	}
	if env.To == "" {
		env.To = UnknownRecipient
	}

	if t, ok := parseDate(env.Date); ok {
		env.Sent = t
	}
	if env.Sent.IsZero() && internalDate > 0 {
		env.Sent = time.UnixMilli(internalDate).UTC()
	}
	if env.Date == "" && internalDate > 0 {
		env.Date = strconv.FormatInt(internalDate, 10)
	}
	return env
}
