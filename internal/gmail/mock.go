package gmail

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
)

// ModifyCall records one ModifyLabels invocation.
type ModifyCall struct {
	MessageID string
	Add       []LabelID
	Remove    []LabelID
}

// MockAPI is an in-memory implementation of API for testing.
type MockAPI struct {
	mu sync.Mutex

	// Profile to return; a default is synthesized when nil.
	Profile *Profile

	// Labels to return; INBOX and SENT when nil.
	Labels []*Label

	// Messages indexed by ID.
	Messages map[string]*Message

	// Order is the list order of message IDs, newest first.
	Order []string

	// Raw holds RFC 822 bytes served by GetMessageRaw. Messages without an
	// entry get a minimal message synthesized from their envelope.
	Raw map[string][]byte

	// Error injection
	ProfileError      error
	LabelsError       error
	ListMessagesError error
	GetMessageError   map[string]error // Per-message errors
	ModifyError       error
	TrashError        error
	DeleteError       error

	// Call tracking for assertions
	ProfileCalls      int
	LabelsCalls       int
	ListMessagesCalls int
	LastListOptions   ListOptions
	GetMessageCalls   []string
	ModifyCalls       []ModifyCall
	TrashCalls        []string
	DeleteCalls       []string
}

// NewMockAPI creates a new mock API with empty state.
func NewMockAPI() *MockAPI {
	return &MockAPI{
		Messages:        make(map[string]*Message),
		Raw:             make(map[string][]byte),
		GetMessageError: make(map[string]error),
	}
}

// AddMessage appends a message to the end of the list order.
func (m *MockAPI) AddMessage(msg *Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.Labels == nil {
		msg.Labels = NewLabelSet()
	}
	if _, ok := m.Messages[msg.ID]; !ok {
		m.Order = append(m.Order, msg.ID)
	}
	m.Messages[msg.ID] = msg
}

// GetProfile returns the mock profile.
func (m *MockAPI) GetProfile(ctx context.Context) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProfileCalls++

	if m.ProfileError != nil {
		return nil, m.ProfileError
	}
	if m.Profile == nil {
		return &Profile{
			EmailAddress:  "test@example.com",
			MessagesTotal: int64(len(m.Messages)),
		}, nil
	}
	return m.Profile, nil
}

// ListLabels returns the mock labels.
func (m *MockAPI) ListLabels(ctx context.Context) ([]*Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LabelsCalls++

	if m.LabelsError != nil {
		return nil, m.LabelsError
	}
	if m.Labels == nil {
		return []*Label{
			{ID: LabelInbox, Name: "INBOX", Type: "system"},
			{ID: LabelSent, Name: "SENT", Type: "system"},
		}, nil
	}
	return m.Labels, nil
}

// ListMessages pages through Order, filtered by opts.LabelIDs and by
// opts.Query as a case-insensitive substring of the snippet. Page tokens
// have the form "page_N" and assume a constant MaxResults across a walk.
func (m *MockAPI) ListMessages(ctx context.Context, opts ListOptions) (*MessageListResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListMessagesCalls++
	m.LastListOptions = opts

	if m.ListMessagesError != nil {
		return nil, m.ListMessagesError
	}

	pageNum := 0
	if opts.PageToken != "" {
		if _, err := fmt.Sscanf(opts.PageToken, "page_%d", &pageNum); err != nil {
			return nil, fmt.Errorf("invalid page token: %s", opts.PageToken)
		}
	}

	var matched []string
	for _, id := range m.Order {
		msg, ok := m.Messages[id]
		if !ok || !hasAll(msg.Labels, opts.LabelIDs) {
			continue
		}
		if opts.Query != "" && !strings.Contains(strings.ToLower(msg.Snippet), strings.ToLower(opts.Query)) {
			continue
		}
		matched = append(matched, id)
	}

	size := opts.MaxResults
	if size <= 0 {
		size = 100
	}
	start := min(pageNum*size, len(matched))
	end := min(start+size, len(matched))

	resp := &MessageListResponse{
		Messages:           make([]MessageID, 0, end-start),
		ResultSizeEstimate: int64(len(matched)),
	}
	for _, id := range matched[start:end] {
		resp.Messages = append(resp.Messages, MessageID{ID: id, ThreadID: m.Messages[id].ThreadID})
	}
	if end < len(matched) {
		resp.NextPageToken = fmt.Sprintf("page_%d", pageNum+1)
	}
	return resp, nil
}

func hasAll(set LabelSet, ids []LabelID) bool {
	for _, id := range ids {
		if !set.Has(id) {
			return false
		}
	}
	return true
}

// GetMessage returns a copy of the stored message.
func (m *MockAPI) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetMessageCalls = append(m.GetMessageCalls, messageID)

	if err := m.GetMessageError[messageID]; err != nil {
		return nil, err
	}
	msg, ok := m.Messages[messageID]
	if !ok {
		return nil, notFound()
	}
	out := *msg
	out.Labels = maps.Clone(msg.Labels)
	return &out, nil
}

// GetMessageRaw returns the stored raw bytes, or the snippet as the body of
// a minimal RFC 822 message.
func (m *MockAPI) GetMessageRaw(ctx context.Context, messageID string) (*RawMessage, error) {
	msg, err := m.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	raw, ok := m.Raw[messageID]
	m.mu.Unlock()
	if !ok {
		env := msg.Summarize()
		raw = []byte(fmt.Sprintf("Subject: %s\r\nFrom: %s\r\nTo: %s\r\n\r\n%s\r\n", env.Subject, env.From, env.To, msg.Snippet))
	}
	return &RawMessage{
		ID:           msg.ID,
		ThreadID:     msg.ThreadID,
		Labels:       msg.Labels,
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate,
		Raw:          raw,
	}, nil
}

// GetMessagesBatch fetches each message in order and fails on the first
// error.
func (m *MockAPI) GetMessagesBatch(ctx context.Context, messageIDs []string) ([]*Message, error) {
	var out []*Message
	for _, id := range messageIDs {
		msg, err := m.GetMessage(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch message %s: %w", id, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// ModifyLabels applies the label changes to the stored message.
func (m *MockAPI) ModifyLabels(ctx context.Context, messageID string, add, remove []LabelID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModifyCalls = append(m.ModifyCalls, ModifyCall{
		MessageID: messageID,
		Add:       slices.Clone(add),
		Remove:    slices.Clone(remove),
	})

	if m.ModifyError != nil {
		return m.ModifyError
	}
	msg, ok := m.Messages[messageID]
	if !ok {
		return notFound()
	}
	msg.Labels.Add(add...)
	msg.Labels.Remove(remove...)
	return nil
}

// TrashMessage labels the message TRASH and removes it from INBOX.
func (m *MockAPI) TrashMessage(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TrashCalls = append(m.TrashCalls, messageID)

	if m.TrashError != nil {
		return m.TrashError
	}
	msg, ok := m.Messages[messageID]
	if !ok {
		return notFound()
	}
	msg.Labels.Add(LabelTrash)
	msg.Labels.Remove(LabelInbox)
	return nil
}

// DeleteMessage removes the message. Deleting a missing ID is a 404.
func (m *MockAPI) DeleteMessage(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls = append(m.DeleteCalls, messageID)

	if m.DeleteError != nil {
		return m.DeleteError
	}
	if _, ok := m.Messages[messageID]; !ok {
		return notFound()
	}
	delete(m.Messages, messageID)
	m.Order = slices.DeleteFunc(m.Order, func(id string) bool { return id == messageID })
	return nil
}

// Reset clears call tracking, keeping stored messages.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProfileCalls = 0
	m.LabelsCalls = 0
	m.ListMessagesCalls = 0
	m.LastListOptions = ListOptions{}
	m.GetMessageCalls = nil
	m.ModifyCalls = nil
	m.TrashCalls = nil
	m.DeleteCalls = nil
}

func notFound() error {
	return &APIError{
		Kind:    KindRemote,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%d %s", http.StatusNotFound, http.StatusText(http.StatusNotFound)),
	}
}

// Ensure MockAPI implements API interface.
var _ API = (*MockAPI)(nil)
