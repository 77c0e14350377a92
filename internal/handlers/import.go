// Package handlers exposes the import pipeline over HTTP: upload and
// preview, commit, and an SSE progress stream.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conciliar/ofximport/internal/output"
	"github.com/conciliar/ofximport/internal/pipeline"
	"github.com/conciliar/ofximport/internal/streaming"
)

// maxUploadBytes caps statement uploads. Real statements are tens of
// kilobytes; anything near this limit is not a statement.
const maxUploadBytes = 10 << 20

// ImportHandlers serves the import API.
type ImportHandlers struct {
	importer *pipeline.Importer
	hub      *streaming.Hub

	mu       sync.Mutex
	sessions map[string]*pipeline.Preview
}

// NewImportHandlers creates the handler set.
func NewImportHandlers(importer *pipeline.Importer, hub *streaming.Hub) *ImportHandlers {
	return &ImportHandlers{
		importer: importer,
		hub:      hub,
		sessions: make(map[string]*pipeline.Preview),
	}
}

type previewResponse struct {
	SessionID string             `json:"sessionId"`
	Preview   *output.PreviewDoc `json:"preview"`
}

// Preview handles POST /api/import/preview: multipart upload with a
// "file" part and an optional "account" field. Nothing is written; the
// response carries a session ID for the commit step.
func (h *ImportHandlers) Preview(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file upload", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}
	accountID := r.FormValue("account")

	sessionID := uuid.NewString()
	h.hub.Broadcast(sessionID, streaming.NewEvent(streaming.EventTypeSession,
		streaming.SessionEvent{ID: sessionID, AccountID: accountID, Status: "previewing"}))
	h.hub.Broadcast(sessionID, streaming.NewEvent(streaming.EventTypeStage,
		streaming.StageEvent{Stage: "parse"}))

	result, err := h.importer.Parse(data)
	if err != nil {
		h.broadcastError(sessionID, err)
		http.Error(w, fmt.Sprintf("Unparseable statement: %v", err), http.StatusUnprocessableEntity)
		return
	}
	result.SourceFile = header.Filename

	h.hub.Broadcast(sessionID, streaming.NewEvent(streaming.EventTypeStage,
		streaming.StageEvent{Stage: "dedup"}))

	preview, err := h.importer.Preview(r.Context(), result, accountID)
	if err != nil {
		h.broadcastError(sessionID, err)
		http.Error(w, fmt.Sprintf("Preview failed: %v", err), http.StatusBadRequest)
		return
	}

	for _, c := range preview.Candidates {
		h.hub.Broadcast(sessionID, streaming.NewEvent(streaming.EventTypeCandidate,
			streaming.CandidateEvent{
				FitID:       c.Transaction.FitID,
				Amount:      c.Transaction.Amount.String(),
				Description: c.Transaction.Description(),
				Matches:     len(c.Matches),
			}))
	}
	for _, txn := range preview.Duplicates {
		h.hub.Broadcast(sessionID, streaming.NewEvent(streaming.EventTypeCandidate,
			streaming.CandidateEvent{
				FitID:       txn.FitID,
				Amount:      txn.Amount.String(),
				Description: txn.Description(),
				Duplicate:   true,
			}))
	}

	h.mu.Lock()
	h.sessions[sessionID] = preview
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(previewResponse{
		SessionID: sessionID,
		Preview:   output.NewPreviewDoc(preview),
	}); err != nil {
		slog.Error("failed to encode preview response", "session", sessionID, "error", err)
	}
}

type commitRequest struct {
	SessionID string           `json:"sessionId"`
	Decisions []commitDecision `json:"decisions"`
}

// commitDecision overrides preview defaults for one candidate, by its
// position in the preview's candidate list.
type commitDecision struct {
	Index         int    `json:"index"`
	Selected      *bool  `json:"selected,omitempty"`
	CategoryID    *int64 `json:"categoryId,omitempty"`
	LinkedEntryID *int64 `json:"linkedEntryId,omitempty"`
}

// Commit handles POST /api/import/commit: applies the operator's
// decisions to a previewed session and writes it.
func (h *ImportHandlers) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Claim the session exclusively: a concurrent commit for the same
	// session must 404 rather than race on the preview and double-insert
	// rows the fitid index cannot catch (empty fitids).
	preview, ok := h.takeSession(req.SessionID)
	if !ok {
		http.Error(w, "Unknown or expired session", http.StatusNotFound)
		return
	}
	committed := false
	defer func() {
		if !committed {
			h.putSession(req.SessionID, preview)
		}
	}()

	for _, d := range req.Decisions {
		if d.Index < 0 || d.Index >= len(preview.Candidates) {
			http.Error(w, fmt.Sprintf("Decision index %d out of range", d.Index), http.StatusBadRequest)
			return
		}
		c := &preview.Candidates[d.Index]
		if d.Selected != nil {
			c.Selected = *d.Selected
		}
		if d.CategoryID != nil {
			c.SuggestedCategoryID = d.CategoryID
		}
		if d.LinkedEntryID != nil {
			c.LinkedEntryID = d.LinkedEntryID
		}
	}

	h.hub.Broadcast(req.SessionID, streaming.NewEvent(streaming.EventTypeStage,
		streaming.StageEvent{Stage: "commit"}))

	receipt, err := h.importer.Commit(r.Context(), preview)
	if err != nil {
		h.broadcastError(req.SessionID, err)
		http.Error(w, fmt.Sprintf("Commit failed: %v", err), http.StatusConflict)
		return
	}
	committed = true

	h.hub.Broadcast(req.SessionID, streaming.NewEvent(streaming.EventTypeComplete,
		streaming.CompleteEvent{
			ImportID:   receipt.ImportID,
			Candidates: len(preview.Candidates),
			Duplicates: len(preview.Duplicates),
			Imported:   receipt.Imported,
		}))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(output.NewReceiptDoc(receipt)); err != nil {
		slog.Error("failed to encode receipt", "session", req.SessionID, "error", err)
	}
}

// Stream handles GET /api/import/stream/{session}: an SSE feed of the
// session's progress events.
func (h *ImportHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	if sessionID == "" {
		http.Error(w, "Missing session", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.hub.Register(r.Context(), sessionID)
	defer h.hub.Unregister(sessionID, client)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			writeSSE(w, streaming.NewEvent(streaming.EventTypeHeartbeat, nil))
			flusher.Flush()
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// takeSession removes and returns a preview so exactly one commit can
// hold it at a time.
func (h *ImportHandlers) takeSession(sessionID string) (*pipeline.Preview, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	preview, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	return preview, ok
}

// putSession restores a preview after a commit that did not go through.
func (h *ImportHandlers) putSession(sessionID string, preview *pipeline.Preview) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = preview
}

func (h *ImportHandlers) broadcastError(sessionID string, err error) {
	h.hub.Broadcast(sessionID, streaming.NewEvent(streaming.EventTypeError,
		streaming.ErrorEvent{Message: err.Error()}))
}

func writeSSE(w io.Writer, event streaming.SSEEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal SSE event", "type", event.Type, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
}
