package mime

import (
	"encoding/base64"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"golang.org/x/text/encoding/charmap"
)

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func inline(s string) *Payload {
	return &Payload{MimeType: "text/plain", Body: &Body{Data: encode(s), Size: int64(len(s))}}
}

func TestDecodeBody(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().String("Grüße")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		payload *Payload
		want    string
	}{
		{
			name:    "inline body",
			payload: inline("Hello, world"),
			want:    "Hello, world",
		},
		{
			name:    "inline body with padding",
			payload: &Payload{Body: &Body{Data: base64.URLEncoding.EncodeToString([]byte("ab"))}},
			want:    "ab",
		},
		{
			name:    "inline multibyte",
			payload: inline("Привіт, як справи?"),
			want:    "Привіт, як справи?",
		},
		{
			name: "first text part wins",
			payload: &Payload{
				MimeType: "multipart/alternative",
				Parts: []*Payload{
					{MimeType: "image/png", Body: &Body{Data: encode("PNG")}},
					{MimeType: "text/html", Body: &Body{Data: encode("<p>html</p>")}},
					{MimeType: "text/plain", Body: &Body{Data: encode("plain")}},
				},
			},
			want: "<p>html</p>",
		},
		{
			name: "nested multipart not descended",
			payload: &Payload{
				MimeType: "multipart/mixed",
				Parts: []*Payload{
					{MimeType: "multipart/alternative", Parts: []*Payload{
						{MimeType: "text/plain", Body: &Body{Data: encode("deep")}},
					}},
				},
			},
			want: EmptyBody,
		},
		{
			name: "part charset honored",
			payload: &Payload{
				Parts: []*Payload{{
					MimeType: "text/plain",
					Headers:  []Header{{Name: "Content-Type", Value: `text/plain; charset="ISO-8859-1"`}},
					Body:     &Body{Data: encode(latin1)},
				}},
			},
			want: "Grüße",
		},
		{
			name: "text part without data",
			payload: &Payload{
				Parts: []*Payload{{MimeType: "text/plain", Body: &Body{}}},
			},
			want: EmptyBody,
		},
		{
			name:    "nil payload",
			payload: nil,
			want:    EmptyBody,
		},
		{
			name:    "no body no parts",
			payload: &Payload{MimeType: "text/plain"},
			want:    EmptyBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBody(tt.payload)
			if err != nil {
				t.Fatalf("DecodeBody() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeBody_MalformedBase64(t *testing.T) {
	_, err := DecodeBody(&Payload{Body: &Body{Data: "!!!not-base64!!!"}})
	if err == nil {
		t.Fatal("expected error for malformed base64")
	}
}

func TestDecodeBody_RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	nonEmptyUTF8 := gen.AnyString().Map(func(s string) string {
		return "x" + s
	}).SuchThat(func(s string) bool {
		return utf8.ValidString(s)
	})

	properties.Property("unpadded inline body decodes to the original", prop.ForAll(
		func(s string) bool {
			got, err := DecodeBody(inline(s))
			return err == nil && got == s
		},
		nonEmptyUTF8,
	))

	properties.Property("padded inline body decodes to the original", prop.ForAll(
		func(s string) bool {
			p := &Payload{Body: &Body{Data: base64.URLEncoding.EncodeToString([]byte(s))}}
			got, err := DecodeBody(p)
			return err == nil && got == s
		},
		nonEmptyUTF8,
	))

	properties.TestingRun(t)
}

func TestDecodeBase64URL(t *testing.T) {
	// "+/" in standard base64 is "-_" in base64url.
	got, err := DecodeBase64URL("-_8")
	if err != nil {
		t.Fatalf("DecodeBase64URL() error = %v", err)
	}
	want := []byte{0xfb, 0xff}
	if string(got) != string(want) {
		t.Errorf("DecodeBase64URL() = %x, want %x", got, want)
	}
}
