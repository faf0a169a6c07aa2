package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mailroom/mailroom/internal/gmail"
	"github.com/mailroom/mailroom/internal/mailbox"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse acknowledges a mutation.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ContentResponse carries a decoded message body.
type ContentResponse struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// AttachmentInfo represents attachment metadata.
type AttachmentInfo struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	ContentID string `json:"contentId,omitempty"`
	Size      int    `json:"size"`
	SHA256    string `json:"sha256"`
	Inline    bool   `json:"inline"`
}

// ModifyRequest is the body of POST /api/emails.
type ModifyRequest struct {
	MessageID string `json:"messageId"`
	Action    string `json:"action"`
}

// Actions accepted by POST /api/emails.
const (
	ActionMarkAsRead        = "markAsRead"
	ActionMarkAsUnread      = "markAsUnread"
	ActionMarkAsImportant   = "markAsImportant"
	ActionMarkAsUnimportant = "markAsUnimportant"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// statusForError maps a mail access failure to an HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, gmail.ErrUnauthenticated):
		return http.StatusUnauthorized
	case gmail.IsPermissionDenied(err):
		return http.StatusForbidden
	case gmail.IsRateLimited(err):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure logs err and writes it with its mapped status. Permission
// and rate-limit failures carry the provider's message; other provider
// failures append it to fallback.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusForError(err)
	level := slog.LevelError
	if status != http.StatusInternalServerError || gmail.IsNotFound(err) {
		level = slog.LevelWarn
	}
	s.logger.Log(r.Context(), level, fallback, "path", r.URL.Path, "status", status, "error", err)

	var apiErr *gmail.APIError
	hasDetail := errors.As(err, &apiErr) && apiErr.Message != ""

	msg := fallback
	switch {
	case status == http.StatusUnauthorized:
		msg = "Unauthorized"
	case !hasDetail:
	case status == http.StatusForbidden, status == http.StatusTooManyRequests:
		msg = apiErr.Message
	default:
		msg = fallback + ": " + apiErr.Message
	}
	writeError(w, status, msg)
}

// decodeBody reads a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	return dec.Decode(dst)
}

// handleListEmails returns one page of messages.
func (s *Server) handleListEmails(w http.ResponseWriter, r *http.Request) {
	svc := mailboxFrom(r.Context())
	if !svc.ValidateToken(r.Context()) {
		writeError(w, http.StatusForbidden, "Invalid or insufficient permissions token")
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	query := mailbox.ListQuery{
		Page:     page,
		PageSize: pageSize,
		Label:    gmail.LabelID(q.Get("label")),
		Search:   q.Get("q"),
		UseCache: q.Get("useCache") != "false",
	}

	msgs, err := svc.ListMessages(r.Context(), query)
	if err != nil {
		s.writeFailure(w, r, err, "Failed to fetch emails")
		return
	}
	s.logger.Debug("emails listed", "count", len(msgs), "page", query.Page, "label", query.Label)
	writeJSON(w, http.StatusOK, msgs)
}

// handleModifyEmail applies a read or important action named in the body.
func (s *Server) handleModifyEmail(w http.ResponseWriter, r *http.Request) {
	var req ModifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MessageID == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "Missing messageId or action")
		return
	}

	svc := mailboxFrom(r.Context())
	var err error
	switch req.Action {
	case ActionMarkAsRead:
		err = svc.ToggleRead(r.Context(), req.MessageID, true)
	case ActionMarkAsUnread:
		err = svc.ToggleRead(r.Context(), req.MessageID, false)
	case ActionMarkAsImportant:
		err = svc.ToggleImportant(r.Context(), req.MessageID, true)
	case ActionMarkAsUnimportant:
		err = svc.ToggleImportant(r.Context(), req.MessageID, false)
	default:
		writeError(w, http.StatusBadRequest, "Invalid action")
		return
	}
	if err != nil {
		s.writeFailure(w, r, err, "Failed to modify email")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// handleGetEmail returns a single message.
func (s *Server) handleGetEmail(w http.ResponseWriter, r *http.Request) {
	msg, err := mailboxFrom(r.Context()).GetMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err, "Failed to fetch email")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// handleGetContent returns the decoded body. Decode failures are reported
// through the placeholder text, not an error status.
func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	content := mailboxFrom(r.Context()).GetMessageContent(r.Context(), id)
	writeJSON(w, http.StatusOK, ContentResponse{ID: id, Content: content})
}

// handleListAttachments returns attachment metadata from the raw message.
func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	atts, err := mailboxFrom(r.Context()).ListAttachments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err, "Failed to fetch attachments")
		return
	}

	infos := make([]AttachmentInfo, len(atts))
	for i, a := range atts {
		infos[i] = AttachmentInfo{
			Filename:  a.Filename,
			MimeType:  a.ContentType,
			ContentID: a.ContentID,
			Size:      a.Size,
			SHA256:    a.Digest,
			Inline:    a.IsInline,
		}
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleToggleImportant sets or clears the IMPORTANT label.
func (s *Server) handleToggleImportant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsImportant *bool `json:"isImportant"`
	}
	if err := decodeBody(w, r, &req); err != nil || req.IsImportant == nil {
		writeError(w, http.StatusBadRequest, "Missing isImportant")
		return
	}

	if err := mailboxFrom(r.Context()).ToggleImportant(r.Context(), chi.URLParam(r, "id"), *req.IsImportant); err != nil {
		s.writeFailure(w, r, err, "Failed to toggle important")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// handleToggleRead marks a message read or unread.
func (s *Server) handleToggleRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsRead *bool `json:"isRead"`
	}
	if err := decodeBody(w, r, &req); err != nil || req.IsRead == nil {
		writeError(w, http.StatusBadRequest, "Missing isRead")
		return
	}

	if err := mailboxFrom(r.Context()).ToggleRead(r.Context(), chi.URLParam(r, "id"), *req.IsRead); err != nil {
		s.writeFailure(w, r, err, "Failed to toggle read")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// handleDelete moves a message to the trash, or deletes it for good when it
// is already there.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	svc := mailboxFrom(r.Context())

	msg, err := svc.GetMessage(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err, "Failed to delete email")
		return
	}

	if msg.IsTrashed() {
		err = svc.PermanentlyDelete(r.Context(), id)
	} else {
		err = svc.MoveToTrash(r.Context(), id)
	}
	if err != nil {
		s.writeFailure(w, r, err, "Failed to delete email")
		return
	}
	s.logger.Info("email deleted", "id", id, "permanent", msg.IsTrashed())
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// handleListLabels returns the account's labels.
func (s *Server) handleListLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := mailboxFrom(r.Context()).ListLabels(r.Context())
	if err != nil {
		s.writeFailure(w, r, err, "Failed to fetch labels")
		return
	}
	writeJSON(w, http.StatusOK, labels)
}
