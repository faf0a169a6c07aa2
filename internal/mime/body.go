package mime

import (
	"encoding/base64"
	"fmt"
	stdmime "mime"
	"strings"

	"github.com/mailroom/mailroom/internal/textutil"
)

// EmptyBody is returned by DecodeBody when a payload carries no text.
const EmptyBody = "(empty message body)"

// DecodeBase64URL decodes a base64url-encoded string, tolerating optional
// padding. Gmail normally sends it unpadded.
func DecodeBase64URL(s string) ([]byte, error) {
	if strings.ContainsRune(s, '=') {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}

// DecodeBody returns the readable text of a payload.
//
// An inline body wins. Otherwise the first direct child part of type
// text/plain or text/html is used; nested multiparts are not descended.
// Bytes that are not UTF-8 are converted using the charset declared in the
// part's Content-Type header. A payload with nothing to decode yields
// EmptyBody and no error; malformed base64 is an error.
func DecodeBody(p *Payload) (string, error) {
	if p == nil {
		return EmptyBody, nil
	}

	source := p
	data := p.inlineData()
	if data == "" {
		source = nil
		for _, part := range p.Parts {
			if part == nil {
				continue
			}
			if part.MimeType == "text/plain" || part.MimeType == "text/html" {
				source = part
				data = part.inlineData()
				break
			}
		}
	}
	if data == "" {
		return EmptyBody, nil
	}

	raw, err := DecodeBase64URL(data)
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}

	text := textutil.DecodeCharset(raw, charsetOf(source))
	if text == "" {
		return EmptyBody, nil
	}
	return text, nil
}

// charsetOf extracts the charset parameter of a part's Content-Type header.
func charsetOf(p *Payload) string {
	ct := p.Header("Content-Type")
	if ct == "" {
		return ""
	}
	_, params, err := stdmime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return params["charset"]
}
