package mime

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"html"
	stdmime "mime"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

// Message is the body and attachment view of a raw RFC 822 message, as
// returned by format=raw. Headers come from the full-format payload instead.
type Message struct {
	BodyText    string
	BodyHTML    string
	Attachments []Attachment
	Warnings    []string // non-fatal problems reported by enmime
}

// Attachment describes a non-body part.
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Size        int
	Digest      string // hex SHA-256 of the decoded content
	IsInline    bool
}

// Parse reads raw MIME bytes into a Message.
func Parse(raw []byte) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	msg := &Message{BodyText: env.Text, BodyHTML: env.HTML}

	for _, p := range env.Attachments {
		if a, ok := attachmentOf(p, false); ok {
			msg.Attachments = append(msg.Attachments, a)
		}
	}
	for _, p := range env.Inlines {
		if a, ok := attachmentOf(p, true); ok {
			msg.Attachments = append(msg.Attachments, a)
		}
	}
	for _, e := range env.Errors {
		msg.Warnings = append(msg.Warnings, e.Error())
	}
	return msg, nil
}

// attachmentOf converts an enmime part, rejecting unnamed text parts that
// enmime files under attachments or inlines but which are really body text.
func attachmentOf(p *enmime.Part, inline bool) (Attachment, bool) {
	mediaType := strings.ToLower(p.ContentType)
	if mt, _, err := stdmime.ParseMediaType(p.ContentType); err == nil {
		mediaType = mt
	}
	disposition := strings.ToLower(p.Disposition)
	if d, _, err := stdmime.ParseMediaType(p.Disposition); err == nil {
		disposition = d
	}
	isText := mediaType == "text/plain" || mediaType == "text/html"
	if isText && p.FileName == "" && disposition != "attachment" {
		return Attachment{}, false
	}

	sum := sha256.Sum256(p.Content)
	return Attachment{
		Filename:    p.FileName,
		ContentType: mediaType,
		ContentID:   strings.Trim(p.ContentID, "<>"),
		Size:        len(p.Content),
		Digest:      hex.EncodeToString(sum[:]),
		IsInline:    inline,
	}, true
}

// Layouts net/mail rejects but that still show up in the wild.
var fallbackLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 MST",
	time.RFC850,
	time.ANSIC,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
}

// parseDate parses a Date header and returns it in UTC.
func parseDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, false
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t.UTC(), true
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

var htmlRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?is)<(script|style|head)\b[^>]*>.*?</(script|style|head)>`), ""},
	{regexp.MustCompile(`(?i)</?(p|div|br|hr|h[1-6]|li|tr|td|th|blockquote|pre|table|ul|ol)\b[^>]*>`), "\n"},
	{regexp.MustCompile(`<[^>]*>`), ""},
}

var blankRun = regexp.MustCompile(`\n{3,}`)

// StripHTML renders an HTML body as plain text. Block elements become line
// breaks and runs of blank lines collapse to one.
func StripHTML(rawHTML string) string {
	text := rawHTML
	for _, rule := range htmlRules {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}
	text = html.UnescapeString(text)
	text = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\u00a0", " ").Replace(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

// PlainText returns the text body, falling back to the stripped HTML body
// when the text part is blank.
func (m *Message) PlainText() string {
	if strings.TrimSpace(m.BodyText) != "" {
		return m.BodyText
	}
	return StripHTML(m.BodyHTML)
}
