// Package gmail provides a Gmail REST client with bearer authentication,
// error classification and client-side quota pacing.
package gmail

import (
	"context"

	"github.com/mailroom/mailroom/internal/mime"
)

// AccountReader provides read access to account-level Gmail data.
type AccountReader interface {
	// GetProfile returns the authenticated user's profile.
	GetProfile(ctx context.Context) (*Profile, error)

	// ListLabels returns all labels for the account.
	ListLabels(ctx context.Context) ([]*Label, error)
}

// MessageReader provides read access to Gmail messages.
type MessageReader interface {
	// ListMessages returns one page of message IDs.
	ListMessages(ctx context.Context, opts ListOptions) (*MessageListResponse, error)

	// GetMessage fetches a single message in full format.
	GetMessage(ctx context.Context, messageID string) (*Message, error)

	// GetMessageRaw fetches a single message with raw MIME data.
	GetMessageRaw(ctx context.Context, messageID string) (*RawMessage, error)

	// GetMessagesBatch fetches messages concurrently. Results follow the
	// input order. Any failed fetch fails the whole batch.
	GetMessagesBatch(ctx context.Context, messageIDs []string) ([]*Message, error)
}

// MessageModifier provides label and lifecycle mutations on messages.
type MessageModifier interface {
	// ModifyLabels adds and removes labels in one call.
	ModifyLabels(ctx context.Context, messageID string, add, remove []LabelID) error

	// TrashMessage moves a message to trash (recoverable for 30 days).
	TrashMessage(ctx context.Context, messageID string) error

	// DeleteMessage permanently deletes a message.
	DeleteMessage(ctx context.Context, messageID string) error
}

// API defines the Gmail operations used by the mailbox layer.
// This interface enables mocking for tests without hitting the real API.
type API interface {
	AccountReader
	MessageReader
	MessageModifier
}

// Profile represents a Gmail user profile.
type Profile struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int64  `json:"messagesTotal"`
	ThreadsTotal  int64  `json:"threadsTotal"`
	HistoryID     uint64 `json:"historyId"`
}

// Label represents a Gmail label.
type Label struct {
	ID             LabelID `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type,omitempty"` // "system" or "user"
	MessagesTotal  int64   `json:"messagesTotal,omitempty"`
	MessagesUnread int64   `json:"messagesUnread,omitempty"`
}

// ListOptions selects one page of the message list.
type ListOptions struct {
	MaxResults int
	PageToken  string
	LabelIDs   []LabelID
	Query      string // Gmail search expression, e.g. "from:jane is:unread"
}

// MessageListResponse contains a page of message IDs.
type MessageListResponse struct {
	Messages           []MessageID
	NextPageToken      string
	ResultSizeEstimate int64
}

// MessageID represents a message reference from list operations.
type MessageID struct {
	ID       string
	ThreadID string
}

// Message is a Gmail message in full format, with decoded headers.
type Message struct {
	ID           string        `json:"id"`
	ThreadID     string        `json:"threadId"`
	Labels       LabelSet      `json:"labelIds"`
	Snippet      string        `json:"snippet,omitempty"`
	Payload      *mime.Payload `json:"payload,omitempty"`
	InternalDate int64         `json:"internalDate,string,omitempty"` // Unix milliseconds
	SizeEstimate int64         `json:"sizeEstimate,omitempty"`
	Headers      mime.Headers  `json:"headers,omitempty"`

	// Envelope is the display summary with placeholders for missing
	// headers. The mailbox layer fills it.
	Envelope *mime.Envelope `json:"envelope,omitempty"`
}

// IsImportant reports whether the message carries the IMPORTANT label.
func (m *Message) IsImportant() bool { return m.Labels.Has(LabelImportant) }

// IsUnread reports whether the message carries the UNREAD label.
func (m *Message) IsUnread() bool { return m.Labels.Has(LabelUnread) }

// IsTrashed reports whether the message is in the trash.
func (m *Message) IsTrashed() bool { return m.Labels.Has(LabelTrash) }

// Summarize computes the display summary of the message.
func (m *Message) Summarize() mime.Envelope {
	return mime.Summarize(m.Payload, m.InternalDate)
}

// RawMessage contains the raw MIME data for a message.
type RawMessage struct {
	ID           string
	ThreadID     string
	Labels       LabelSet
	Snippet      string
	InternalDate int64 // Unix milliseconds
	SizeEstimate int64
	Raw          []byte // Decoded from base64url
}
