// Package mailbox is the mail access layer: it holds one user's bearer
// token, caches fetched messages for a short TTL and exposes the listing,
// reading and mutation operations used by the HTTP API.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mailroom/mailroom/internal/gmail"
	"github.com/mailroom/mailroom/internal/mime"
)

// ContentUnavailable is returned by GetMessageContent when the body cannot
// be fetched or decoded.
const ContentUnavailable = "(message content unavailable)"

const (
	// DefaultPageSize is used when a ListQuery leaves PageSize unset.
	DefaultPageSize = 20

	// MaxPageSize is the largest page the Gmail list endpoint accepts.
	MaxPageSize = 500
)

// Dialer builds a Gmail API client bound to an access token.
type Dialer func(token string) gmail.API

// Clock supplies the current time. Tests substitute a fake.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures a Service or Registry.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	clock    Clock
	ttl      time.Duration
	pageSize int
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock used for cache freshness and idle tracking.
func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithTTL sets the cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithPageSize sets the page size used when a query does not name one.
func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   slog.Default(),
		clock:    realClock{},
		ttl:      DefaultTTL,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = DefaultTTL
	}
	if o.pageSize <= 0 || o.pageSize > MaxPageSize {
		o.pageSize = DefaultPageSize
	}
	return o
}

// ListQuery selects one page of a listing. Page is 1-based.
type ListQuery struct {
	Page     int
	PageSize int
	Label    gmail.LabelID // empty lists every message
	Search   string        // Gmail search expression, empty for none
	UseCache bool
}

// cursorKey identifies a page-token walk.
type cursorKey struct {
	Label    gmail.LabelID
	Search   string
	PageSize int
}

// Service holds one user's token and caches. It is safe for concurrent use;
// remote calls run without holding the lock.
type Service struct {
	dial   Dialer
	logger *slog.Logger
	clock  Clock

	pageSize int

	mu       sync.Mutex
	token    string
	api      gmail.API
	gen      uint64 // bumped on every token change
	cache    *cache
	cursors  map[cursorKey][]string // cursors[k][i] is the page token of page i+1
	lastUsed time.Time
}

// New creates a Service with no token.
func New(dial Dialer, opts ...Option) *Service {
	o := buildOptions(opts)
	return &Service{
		dial:     dial,
		logger:   o.logger,
		clock:    o.clock,
		pageSize: o.pageSize,
		cache:    newCache(o.ttl, o.clock),
		cursors:  make(map[cursorKey][]string),
		lastUsed: o.clock.Now(),
	}
}

// SetToken installs an access token. A different token re-dials the API and
// drops all cached data; the same token is a no-op.
func (s *Service) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.clock.Now()

	if token == s.token {
		return
	}
	s.token = token
	s.gen++
	s.api = nil
	if token != "" {
		s.api = s.dial(token)
	}
	s.cache.clear()
	clear(s.cursors)
	s.logger.Debug("mailbox token changed", "generation", s.gen)
}

// LastUsed returns when the Service was last handed a token.
func (s *Service) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// ClearCache empties the message and listing caches.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.clear()
}

// client returns the current API and its token generation.
func (s *Service) client() (gmail.API, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.api == nil {
		return nil, 0, gmail.ErrUnauthenticated
	}
	return s.api, s.gen, nil
}

// store runs fn under the lock unless the token changed since gen.
func (s *Service) store(gen uint64, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen {
		fn()
	}
}

func (s *Service) normalize(q ListQuery) ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = s.pageSize
	}
	q.PageSize = min(q.PageSize, MaxPageSize)
	return q
}

// ListMessages returns one page of fully fetched messages in the provider's
// order. A single failed detail fetch fails the whole call.
func (s *Service) ListMessages(ctx context.Context, q ListQuery) ([]*gmail.Message, error) {
	q = s.normalize(q)
	api, gen, err := s.client()
	if err != nil {
		return nil, err
	}
	key := listKey{Label: q.Label, Search: q.Search, Page: q.Page, PageSize: q.PageSize}

	if q.UseCache {
		s.mu.Lock()
		msgs, ok := s.cache.listing(key)
		s.mu.Unlock()
		if ok {
			s.logger.Debug("listing served from cache", "page", q.Page, "label", q.Label)
			return msgs, nil
		}
	}

	ids, err := s.pageIDs(ctx, api, gen, q)
	if err != nil {
		return nil, err
	}

	msgs := []*gmail.Message{}
	if len(ids) > 0 {
		msgs, err = api.GetMessagesBatch(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("fetch message details: %w", err)
		}
		for _, m := range msgs {
			decodeMessage(m)
		}
	}

	s.store(gen, func() { s.cache.putListing(key, msgs) })
	return msgs, nil
}

// pageIDs walks page tokens up to q.Page and returns that page's IDs. A
// page past the end of the listing is empty. Tokens learned on the way are
// remembered so later pages start from the furthest known one.
func (s *Service) pageIDs(ctx context.Context, api gmail.API, gen uint64, q ListQuery) ([]string, error) {
	ck := cursorKey{Label: q.Label, Search: q.Search, PageSize: q.PageSize}
	opts := gmail.ListOptions{MaxResults: q.PageSize, Query: q.Search}
	if q.Label != "" {
		opts.LabelIDs = []gmail.LabelID{q.Label}
	}

	s.mu.Lock()
	known := slices.Clone(s.cursors[ck]) // known[i] is the token of page i+2
	s.mu.Unlock()

	page := min(q.Page, len(known)+1)
	if page > 1 {
		opts.PageToken = known[page-2]
	}

	for {
		resp, err := api.ListMessages(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		if resp.NextPageToken != "" && len(known) == page-1 {
			known = append(known, resp.NextPageToken)
			s.store(gen, func() { s.cursors[ck] = slices.Clone(known) })
		}

		if page == q.Page {
			ids := make([]string, len(resp.Messages))
			for i, m := range resp.Messages {
				ids[i] = m.ID
			}
			return ids, nil
		}
		if resp.NextPageToken == "" {
			return nil, nil
		}
		page++
		opts.PageToken = resp.NextPageToken
	}
}

// GetMessage returns a message, from cache when fresh.
func (s *Service) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	api, gen, err := s.client()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	msg, ok := s.cache.message(id)
	s.mu.Unlock()
	if ok {
		return msg, nil
	}

	msg, err = api.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	decodeMessage(msg)
	s.store(gen, func() { s.cache.putMessage(msg) })
	return msg, nil
}

// GetMessageContent returns the decoded body of a message. Any failure
// yields ContentUnavailable.
//
// When the payload's direct children hold no text but it nests further
// multiparts (multipart/alternative inside multipart/mixed, say), the raw
// message is parsed instead and its text, or stripped HTML, is returned.
func (s *Service) GetMessageContent(ctx context.Context, id string) string {
	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		s.logger.Warn("message content fetch failed", "id", id, "error", err)
		return ContentUnavailable
	}
	body, err := mime.DecodeBody(msg.Payload)
	if err != nil {
		s.logger.Warn("message body decode failed", "id", id, "error", err)
		return ContentUnavailable
	}
	if body != mime.EmptyBody || !hasNestedMultipart(msg.Payload) {
		return body
	}

	parsed, err := s.parseRaw(ctx, id)
	if err != nil {
		s.logger.Warn("raw message fallback failed", "id", id, "error", err)
		return body
	}
	if text := strings.TrimSpace(parsed.PlainText()); text != "" {
		return text
	}
	return body
}

func hasNestedMultipart(p *mime.Payload) bool {
	if p == nil {
		return false
	}
	for _, part := range p.Parts {
		if part != nil && strings.HasPrefix(part.MimeType, "multipart/") {
			return true
		}
	}
	return false
}

// parseRaw fetches a message in raw format and parses it.
func (s *Service) parseRaw(ctx context.Context, id string) (*mime.Message, error) {
	api, _, err := s.client()
	if err != nil {
		return nil, err
	}
	raw, err := api.GetMessageRaw(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get raw message %s: %w", id, err)
	}
	parsed, err := mime.Parse(raw.Raw)
	if err != nil {
		return nil, fmt.Errorf("parse message %s: %w", id, err)
	}
	if len(parsed.Warnings) > 0 {
		s.logger.Debug("raw message parsed with warnings", "id", id, "warnings", parsed.Warnings)
	}
	return parsed, nil
}

// ListAttachments fetches the raw message and returns its attachment
// metadata.
func (s *Service) ListAttachments(ctx context.Context, id string) ([]mime.Attachment, error) {
	parsed, err := s.parseRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	if parsed.Attachments == nil {
		return []mime.Attachment{}, nil
	}
	return parsed.Attachments, nil
}

// ListLabels returns the account's labels. Labels are not cached.
func (s *Service) ListLabels(ctx context.Context) ([]*gmail.Label, error) {
	api, _, err := s.client()
	if err != nil {
		return nil, err
	}
	labels, err := api.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	return labels, nil
}

// ToggleImportant adds or removes the IMPORTANT label.
func (s *Service) ToggleImportant(ctx context.Context, id string, important bool) error {
	if important {
		return s.modify(ctx, id, []gmail.LabelID{gmail.LabelImportant}, nil)
	}
	return s.modify(ctx, id, nil, []gmail.LabelID{gmail.LabelImportant})
}

// ToggleRead marks a message read (removes UNREAD) or unread (adds UNREAD).
func (s *Service) ToggleRead(ctx context.Context, id string, read bool) error {
	if read {
		return s.modify(ctx, id, nil, []gmail.LabelID{gmail.LabelUnread})
	}
	return s.modify(ctx, id, []gmail.LabelID{gmail.LabelUnread}, nil)
}

func (s *Service) modify(ctx context.Context, id string, add, remove []gmail.LabelID) error {
	return s.mutate(ctx, id, "modify labels", func(api gmail.API) error {
		return api.ModifyLabels(ctx, id, add, remove)
	})
}

// MoveToTrash moves a message to the trash.
func (s *Service) MoveToTrash(ctx context.Context, id string) error {
	return s.mutate(ctx, id, "trash", func(api gmail.API) error {
		return api.TrashMessage(ctx, id)
	})
}

// PermanentlyDelete deletes a message for good. Deleting an already deleted
// message returns the provider's error.
func (s *Service) PermanentlyDelete(ctx context.Context, id string) error {
	return s.mutate(ctx, id, "delete", func(api gmail.API) error {
		return api.DeleteMessage(ctx, id)
	})
}

// mutate runs a remote mutation and, once it succeeds, drops the cached
// message, the listing and the page cursors.
func (s *Service) mutate(ctx context.Context, id, what string, call func(gmail.API) error) error {
	api, gen, err := s.client()
	if err != nil {
		return err
	}
	if err := call(api); err != nil {
		return fmt.Errorf("%s %s: %w", what, id, err)
	}
	s.store(gen, func() {
		s.cache.invalidate(id)
		clear(s.cursors)
	})
	s.logger.Debug("message mutated", "op", what, "id", id)
	return nil
}

// ValidateToken checks the profile, a one-item listing and that item's
// detail. An empty mailbox with a readable profile is valid. Failures are
// logged and reported as false.
func (s *Service) ValidateToken(ctx context.Context) bool {
	api, _, err := s.client()
	if err != nil {
		return false
	}

	profile, err := api.GetProfile(ctx)
	if err != nil {
		s.logger.Warn("token validation: profile failed", "error", err)
		return false
	}

	list, err := api.ListMessages(ctx, gmail.ListOptions{MaxResults: 1})
	if err != nil {
		s.logger.Warn("token validation: list failed", "email", profile.EmailAddress, "error", err)
		return false
	}
	if len(list.Messages) == 0 {
		return true
	}

	if _, err := api.GetMessage(ctx, list.Messages[0].ID); err != nil {
		s.logger.Warn("token validation: message read failed", "email", profile.EmailAddress, "error", err)
		return false
	}
	return true
}

// decodeMessage fills msg.Headers from the payload when the client left
// them empty, and attaches the display envelope.
func decodeMessage(msg *gmail.Message) {
	if msg == nil {
		return
	}
	if msg.Headers == nil && msg.Payload != nil {
		msg.Headers = mime.ParseHeaders(msg.Payload.Headers)
	}
	if msg.Envelope == nil {
		env := msg.Summarize()
		msg.Envelope = &env
	}
}
