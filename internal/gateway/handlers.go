package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/vantagelabs/relay/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The gateway fronts a same-origin UI or API clients with their own auth;
	// origin enforcement belongs to the deployment proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

type sendMessageRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "message must not be empty")
		return
	}

	if _, err := s.streams.Start(conversationID, req.UserID, req.Message); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			writeError(w, http.StatusConflict, "already_processing", "this conversation is already processing a message")
			return
		}
		s.logger.Error("start run failed", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not start processing")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"conversation_id": conversationID,
		"status":          "processing",
	})
}

// handleStream upgrades to WebSocket and forwards the run's events. A dropped
// connection only detaches the reader; the run keeps going and a later attach
// resumes from the first undelivered event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	tr, ok := s.streams.Transport(conversationID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_processing", "no active stream for this conversation")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader goroutine: we never expect client frames, but reading is how the
	// peer close is observed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	terminal := false
	for ev := range tr.Attach(ctx) {
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Debug("stream write failed", "conversation_id", conversationID, "error", err)
			return
		}
		if ev.Type == models.EventDone || ev.Type == models.EventError {
			terminal = true
			break
		}
	}
	if terminal {
		// The consumer has the full stream; the finished run can be dropped.
		s.streams.Release(conversationID)
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	s.streams.Stop(conversationID)
	writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	writeJSON(w, http.StatusOK, map[string]any{
		"is_processing": s.streams.IsProcessing(conversationID),
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	messages, err := s.store.List(r.Context(), conversationID)
	if err != nil {
		s.logger.Error("list messages failed", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	files, err := s.store.ListFiles(r.Context(), conversationID)
	if err != nil {
		s.logger.Error("list files failed", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load files")
		return
	}
	if files == nil {
		files = []models.FileInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	name := r.PathValue("name")
	content, fileType, err := s.store.ReadFile(r.Context(), conversationID, name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filename":  name,
		"content":   string(content),
		"file_type": fileType,
	})
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	resources, err := s.store.ListResources(r.Context(), conversationID)
	if err != nil {
		s.logger.Error("list resources failed", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load resources")
		return
	}
	if resources == nil {
		resources = []models.Resource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError sends a category error. Raw internal error text never goes to
// the client.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
