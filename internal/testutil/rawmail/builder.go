// Package rawmail builds raw RFC 5322 messages for tests, in the shape Gmail
// returns for format=raw.
package rawmail

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Part is a non-body MIME part.
type Part struct {
	Filename    string
	ContentType string
	ContentID   string // set for inline parts
	Data        []byte
}

// Builder constructs a message with a fluent API. Output always uses CRLF
// line endings.
type Builder struct {
	headers  [][2]string
	text     string
	html     string
	charset  string
	parts    []Part
	boundary string
}

// New returns a Builder with From, To, Subject and Date set.
func New() *Builder {
	return &Builder{
		headers: [][2]string{
			{"From", "sender@example.com"},
			{"To", "recipient@example.com"},
			{"Subject", "Test Message"},
			{"Date", "Mon, 01 Jan 2024 12:00:00 +0000"},
		},
		text:     "This is a test message body.",
		charset:  "utf-8",
		boundary: "mailroom-boundary",
	}
}

// Header sets a header, replacing an earlier value of the same name. An
// empty value removes it.
func (b *Builder) Header(name, value string) *Builder {
	for i, h := range b.headers {
		if strings.EqualFold(h[0], name) {
			if value == "" {
				b.headers = append(b.headers[:i], b.headers[i+1:]...)
			} else {
				b.headers[i][1] = value
			}
			return b
		}
	}
	if value != "" {
		b.headers = append(b.headers, [2]string{name, value})
	}
	return b
}

func (b *Builder) From(v string) *Builder    { return b.Header("From", v) }
func (b *Builder) To(v string) *Builder      { return b.Header("To", v) }
func (b *Builder) Subject(v string) *Builder { return b.Header("Subject", v) }

// Text sets the text/plain body.
func (b *Builder) Text(v string) *Builder { b.text = v; return b }

// HTML adds a text/html alternative to the body.
func (b *Builder) HTML(v string) *Builder { b.html = v; return b }

// Charset sets the charset parameter of the body parts. The body text is
// written as given, so callers pass bytes already in that charset.
func (b *Builder) Charset(v string) *Builder { b.charset = v; return b }

// Attach adds a file attachment.
func (b *Builder) Attach(filename, contentType string, data []byte) *Builder {
	b.parts = append(b.parts, Part{Filename: filename, ContentType: contentType, Data: data})
	return b
}

// Inline adds an inline part referenced by Content-ID.
func (b *Builder) Inline(filename, contentType, contentID string, data []byte) *Builder {
	b.parts = append(b.parts, Part{Filename: filename, ContentType: contentType, ContentID: contentID, Data: data})
	return b
}

// Bytes renders the message.
func (b *Builder) Bytes() []byte {
	var s strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&s, format, args...)
		s.WriteString("\r\n")
	}

	for _, h := range b.headers {
		line("%s: %s", h[0], h[1])
	}
	line("MIME-Version: 1.0")

	if len(b.parts) == 0 && b.html == "" {
		line(`Content-Type: text/plain; charset="%s"`, b.charset)
		line("")
		line("%s", b.text)
		return []byte(s.String())
	}

	outer := b.boundary
	line(`Content-Type: multipart/mixed; boundary="%s"`, outer)
	line("")

	line("--%s", outer)
	if b.html != "" {
		inner := outer + "-alt"
		line(`Content-Type: multipart/alternative; boundary="%s"`, inner)
		line("")
		line("--%s", inner)
		line(`Content-Type: text/plain; charset="%s"`, b.charset)
		line("")
		line("%s", b.text)
		line("--%s", inner)
		line(`Content-Type: text/html; charset="%s"`, b.charset)
		line("")
		line("%s", b.html)
		line("--%s--", inner)
	} else {
		line(`Content-Type: text/plain; charset="%s"`, b.charset)
		line("")
		line("%s", b.text)
	}

	for _, p := range b.parts {
		ct := p.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		line("--%s", outer)
		line(`Content-Type: %s; name="%s"`, ct, p.Filename)
		if p.ContentID != "" {
			line(`Content-Disposition: inline; filename="%s"`, p.Filename)
			line("Content-ID: <%s>", p.ContentID)
		} else {
			line(`Content-Disposition: attachment; filename="%s"`, p.Filename)
		}
		line("Content-Transfer-Encoding: base64")
		line("")
		line("%s", base64.StdEncoding.EncodeToString(p.Data))
	}
	line("--%s--", outer)
	return []byte(s.String())
}

// Base64URL renders the message the way Gmail's format=raw field carries it.
func (b *Builder) Base64URL() string {
	return base64.URLEncoding.EncodeToString(b.Bytes())
}
