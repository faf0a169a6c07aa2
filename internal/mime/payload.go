// Package mime decodes Gmail message payloads and raw RFC 822 messages.
package mime

import "strings"

// Header is a single raw message header as delivered by the provider.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Body is the inline content of a payload or part. Data is base64url.
type Body struct {
	AttachmentID string `json:"attachmentId,omitempty"`
	Data         string `json:"data,omitempty"`
	Size         int64  `json:"size"`
}

// Payload is the MIME tree of a message: top-level headers plus either an
// inline body or a list of typed parts.
type Payload struct {
	PartID   string     `json:"partId,omitempty"`
	MimeType string     `json:"mimeType,omitempty"`
	Filename string     `json:"filename,omitempty"`
	Headers  []Header   `json:"headers,omitempty"`
	Body     *Body      `json:"body,omitempty"`
	Parts    []*Payload `json:"parts,omitempty"`
}

// Header returns the first value of the named header, matched
// case-insensitively.
func (p *Payload) Header(name string) string {
	if p == nil {
		return ""
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func (p *Payload) inlineData() string {
	if p == nil || p.Body == nil {
		return ""
	}
	return p.Body.Data
}
