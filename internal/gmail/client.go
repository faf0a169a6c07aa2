package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/mailroom/mailroom/internal/mime"
)

const (
	// DefaultBaseURL is the Gmail REST API root.
	DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

	// DefaultConcurrency bounds parallel detail fetches in GetMessagesBatch.
	DefaultConcurrency = 10

	defaultTimeout = 30 * time.Second
)

// Client implements the Gmail API interface over REST. Calls are paced by a
// RateLimiter and are never retried.
type Client struct {
	httpClient  *http.Client
	rateLimiter *RateLimiter
	logger      *slog.Logger
	baseURL     string
	userID      string // "me" for authenticated user
	concurrency int    // Max parallel requests for batch operations
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	base        *http.Client
	rateLimiter *RateLimiter
	logger      *slog.Logger
	baseURL     string
	concurrency int
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithConcurrency sets the max concurrent requests for batch operations.
func WithConcurrency(n int) ClientOption {
	return func(c *clientConfig) {
		c.concurrency = n
	}
}

// WithRateLimiter sets a custom rate limiter.
func WithRateLimiter(rl *RateLimiter) ClientOption {
	return func(c *clientConfig) {
		c.rateLimiter = rl
	}
}

// WithBaseURL points the client at a different API root, e.g. a test server.
func WithBaseURL(u string) ClientOption {
	return func(c *clientConfig) {
		c.baseURL = u
	}
}

// WithHTTPClient sets the transport used beneath the bearer-token layer.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.base = hc
	}
}

// NewClient creates a Gmail API client that authenticates every request
// with the tokens from ts.
func NewClient(ts oauth2.TokenSource, opts ...ClientOption) *Client {
	cfg := clientConfig{
		base:        &http.Client{Timeout: defaultTimeout},
		logger:      slog.Default(),
		baseURL:     DefaultBaseURL,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rateLimiter == nil {
		cfg.rateLimiter = NewRateLimiter(5.0)
	}
	if cfg.concurrency < 1 {
		cfg.concurrency = 1
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, cfg.base)
	return &Client{
		httpClient:  oauth2.NewClient(ctx, ts),
		rateLimiter: cfg.rateLimiter,
		logger:      cfg.logger,
		baseURL:     cfg.baseURL,
		userID:      "me",
		concurrency: cfg.concurrency,
	}
}

// NewTokenClient creates a client for a fixed access token. Refreshing the
// token is the caller's concern.
func NewTokenClient(accessToken string, opts ...ClientOption) *Client {
	return NewClient(oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}), opts...)
}

// request makes one paced HTTP request and returns the body of a 2xx
// response. Any other status is classified; nothing is retried.
func (c *Client) request(ctx context.Context, op Operation, method, path string, payload any) ([]byte, error) {
	if avail := c.rateLimiter.Available(); avail < float64(op.Cost()) {
		c.logger.Debug("gmail quota exhausted, pacing request", "path", path, "cost", op.Cost(), "available", avail)
	}
	if err := c.rateLimiter.Acquire(ctx, op); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := classifyResponse(resp)
		c.logger.Debug("gmail request failed", "method", method, "path", path, "status", resp.StatusCode, "error", err)
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, op Operation, path string, out any) error {
	data, err := c.request(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return malformed(path, err)
	}
	return nil
}

// listMessagesResponse keeps both fields optional so a body with neither
// can be told apart from an empty mailbox.
type listMessagesResponse struct {
	Messages           []gmailv1.Message `json:"messages"`
	NextPageToken      string            `json:"nextPageToken"`
	ResultSizeEstimate *int64            `json:"resultSizeEstimate"`
}

// GetProfile returns the authenticated user's profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var resp gmailv1.Profile
	if err := c.get(ctx, OpProfile, fmt.Sprintf("/users/%s/profile", c.userID), &resp); err != nil {
		return nil, err
	}
	if resp.EmailAddress == "" {
		return nil, malformed("profile without emailAddress", nil)
	}
	return &Profile{
		EmailAddress:  resp.EmailAddress,
		MessagesTotal: resp.MessagesTotal,
		ThreadsTotal:  resp.ThreadsTotal,
		HistoryID:     resp.HistoryId,
	}, nil
}

// ListLabels returns all labels for the account.
func (c *Client) ListLabels(ctx context.Context) ([]*Label, error) {
	var resp gmailv1.ListLabelsResponse
	if err := c.get(ctx, OpLabelsList, fmt.Sprintf("/users/%s/labels", c.userID), &resp); err != nil {
		return nil, err
	}

	labels := make([]*Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		if l == nil {
			continue
		}
		labels = append(labels, &Label{
			ID:             LabelID(l.Id),
			Name:           l.Name,
			Type:           l.Type,
			MessagesTotal:  l.MessagesTotal,
			MessagesUnread: l.MessagesUnread,
		})
	}
	return labels, nil
}

// ListMessages returns one page of message IDs.
func (c *Client) ListMessages(ctx context.Context, opts ListOptions) (*MessageListResponse, error) {
	params := url.Values{}
	if opts.MaxResults > 0 {
		params.Set("maxResults", strconv.Itoa(opts.MaxResults))
	}
	for _, id := range opts.LabelIDs {
		params.Add("labelIds", string(id))
	}
	if opts.Query != "" {
		params.Set("q", opts.Query)
	}
	if opts.PageToken != "" {
		params.Set("pageToken", opts.PageToken)
	}

	path := fmt.Sprintf("/users/%s/messages", c.userID)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp listMessagesResponse
	if err := c.get(ctx, OpMessagesList, path, &resp); err != nil {
		return nil, err
	}
	if resp.Messages == nil && resp.ResultSizeEstimate == nil {
		return nil, malformed("message list has neither messages nor resultSizeEstimate", nil)
	}

	out := &MessageListResponse{
		Messages:      make([]MessageID, 0, len(resp.Messages)),
		NextPageToken: resp.NextPageToken,
	}
	if resp.ResultSizeEstimate != nil {
		out.ResultSizeEstimate = *resp.ResultSizeEstimate
	}
	for _, m := range resp.Messages {
		if m.Id == "" {
			return nil, malformed("message reference without id", nil)
		}
		out.Messages = append(out.Messages, MessageID{ID: m.Id, ThreadID: m.ThreadId})
	}
	return out, nil
}

// GetMessage fetches a single message in full format and decodes its
// headers.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var resp gmailv1.Message
	path := fmt.Sprintf("/users/%s/messages/%s?format=full", c.userID, url.PathEscape(messageID))
	if err := c.get(ctx, OpMessagesGet, path, &resp); err != nil {
		return nil, err
	}
	if resp.Id == "" {
		return nil, malformed("message without id", nil)
	}
	return convertMessage(&resp), nil
}

// GetMessageRaw fetches a single message with raw MIME data.
func (c *Client) GetMessageRaw(ctx context.Context, messageID string) (*RawMessage, error) {
	var resp gmailv1.Message
	path := fmt.Sprintf("/users/%s/messages/%s?format=raw", c.userID, url.PathEscape(messageID))
	if err := c.get(ctx, OpMessagesGetRaw, path, &resp); err != nil {
		return nil, err
	}

	raw, err := mime.DecodeBase64URL(resp.Raw)
	if err != nil {
		return nil, malformed("raw message", err)
	}
	return &RawMessage{
		ID:           resp.Id,
		ThreadID:     resp.ThreadId,
		Labels:       NewLabelSet(resp.LabelIds...),
		Snippet:      resp.Snippet,
		InternalDate: resp.InternalDate,
		SizeEstimate: resp.SizeEstimate,
		Raw:          raw,
	}, nil
}

// GetMessagesBatch fetches full messages in parallel. The first failure
// cancels the remaining fetches and is returned; there are no partial
// results.
func (c *Client) GetMessagesBatch(ctx context.Context, messageIDs []string) ([]*Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	results := make([]*Message, len(messageIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, id := range messageIDs {
		i, id := i, id
		g.Go(func() error {
			msg, err := c.GetMessage(ctx, id)
			if err != nil {
				return fmt.Errorf("fetch message %s: %w", id, err)
			}
			results[i] = msg
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ModifyLabels adds and removes labels on a message.
func (c *Client) ModifyLabels(ctx context.Context, messageID string, add, remove []LabelID) error {
	req := &gmailv1.ModifyMessageRequest{
		AddLabelIds:    labelStrings(add),
		RemoveLabelIds: labelStrings(remove),
	}
	path := fmt.Sprintf("/users/%s/messages/%s/modify", c.userID, url.PathEscape(messageID))
	_, err := c.request(ctx, OpMessagesModify, http.MethodPost, path, req)
	return err
}

// TrashMessage moves a message to trash.
func (c *Client) TrashMessage(ctx context.Context, messageID string) error {
	path := fmt.Sprintf("/users/%s/messages/%s/trash", c.userID, url.PathEscape(messageID))
	_, err := c.request(ctx, OpMessagesTrash, http.MethodPost, path, nil)
	return err
}

// DeleteMessage permanently deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	path := fmt.Sprintf("/users/%s/messages/%s", c.userID, url.PathEscape(messageID))
	_, err := c.request(ctx, OpMessagesDelete, http.MethodDelete, path, nil)
	return err
}

func convertMessage(m *gmailv1.Message) *Message {
	payload := convertPart(m.Payload)
	var headers mime.Headers
	if payload != nil {
		headers = mime.ParseHeaders(payload.Headers)
	}
	return &Message{
		ID:           m.Id,
		ThreadID:     m.ThreadId,
		Labels:       NewLabelSet(m.LabelIds...),
		Snippet:      m.Snippet,
		Payload:      payload,
		InternalDate: m.InternalDate,
		SizeEstimate: m.SizeEstimate,
		Headers:      headers,
	}
}

func convertPart(p *gmailv1.MessagePart) *mime.Payload {
	if p == nil {
		return nil
	}
	out := &mime.Payload{
		PartID:   p.PartId,
		MimeType: p.MimeType,
		Filename: p.Filename,
	}
	for _, h := range p.Headers {
		if h != nil {
			out.Headers = append(out.Headers, mime.Header{Name: h.Name, Value: h.Value})
		}
	}
	if p.Body != nil {
		out.Body = &mime.Body{
			AttachmentID: p.Body.AttachmentId,
			Data:         p.Body.Data,
			Size:         p.Body.Size,
		}
	}
	for _, child := range p.Parts {
		if part := convertPart(child); part != nil {
			out.Parts = append(out.Parts, part)
		}
	}
	return out
}

// Ensure Client implements API interface.
var _ API = (*Client)(nil)
