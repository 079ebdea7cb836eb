package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/positive-doo/multitool/pkg/agent"
	"github.com/positive-doo/multitool/pkg/session"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type sessionResponse struct {
	ID       string           `json:"id"`
	Settings session.Settings `json:"settings"`
	Dataset  string           `json:"dataset,omitempty"`
}

type messageRequest struct {
	Question string `json:"question"`
	Stream   bool   `json:"stream,omitempty"`
}

type messageResponse struct {
	Answer     string `json:"answer"`
	Iterations int    `json:"iterations"`
	Direct     bool   `json:"direct"`
	Stopped    bool   `json:"stopped"`
	Steps      []step `json:"steps,omitempty"`
}

type step struct {
	Tool        string `json:"tool"`
	Input       string `json:"input"`
	Observation string `json:"observation"`
}

func newMessageResponse(res *agent.Result) messageResponse {
	out := messageResponse{
		Answer:     res.Answer,
		Iterations: res.Iterations,
		Direct:     res.Direct,
		Stopped:    res.Stopped,
	}
	for _, s := range res.Steps {
		out.Steps = append(out.Steps, step{Tool: s.Action.Tool, Input: s.Action.Input, Observation: s.Observation})
	}
	return out
}

func (s *Server) session(r *http.Request) (*session.Session, error) {
	return s.sessions.Get(chi.URLParam(r, "id"))
}

func describe(sess *session.Session) sessionResponse {
	return sessionResponse{ID: sess.ID(), Settings: sess.Settings(), Dataset: sess.DatasetName()}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create()
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("Session created", "session", sess.ID())
	writeJSON(w, http.StatusCreated, describe(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, badRequest("question is required"))
		return
	}

	if req.Stream || strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamMessage(w, r, sess, req.Question)
		return
	}

	res, err := sess.Ask(r.Context(), req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMessageResponse(res))
}

func (s *Server) streamMessage(w http.ResponseWriter, r *http.Request, sess *session.Session, question string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	res, err := sess.Stream(r.Context(), question, func(ev agent.Event) {
		switch ev.Type {
		case agent.EventToken:
			sendSSE(w, "token", map[string]string{"text": ev.Text})
		case agent.EventAction:
			sendSSE(w, "action", map[string]string{"tool": ev.Tool, "input": ev.Input})
		case agent.EventObservation:
			sendSSE(w, "observation", map[string]string{"tool": ev.Tool, "text": ev.Text})
		}
	})
	if err != nil {
		sendSSE(w, "error", map[string]string{"error": err.Error()})
		return
	}
	sendSSE(w, "final", newMessageResponse(res))
}

func sendSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode SSE event", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handleDataset accepts a multipart "file" field or a raw body named by ?name=.
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var (
		name string
		data []byte
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, badRequest("missing file: %v", err))
			return
		}
		defer file.Close()
		name = header.Filename
		data, err = io.ReadAll(file)
		if err != nil {
			writeError(w, badRequest("failed to read upload: %v", err))
			return
		}
	} else {
		name = r.URL.Query().Get("name")
		if name == "" {
			writeError(w, badRequest("query parameter name is required"))
			return
		}
		data, err = io.ReadAll(r.Body)
		if err != nil {
			writeError(w, badRequest("failed to read upload: %v", err))
			return
		}
	}

	if err := sess.SetDataset(filepath.Base(name), data); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(sess))
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Settings())
}

// handleUpdateSettings takes a flat object of setting keys to string values.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var changes map[string]any
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeError(w, badRequest("invalid request body: %v", err))
		return
	}

	err = sess.UpdateSettings(func(st *session.Settings) error {
		for key, value := range changes {
			if err := st.Set(key, fmt.Sprint(value)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Settings())
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="transcript.txt"`)
		_, _ = io.WriteString(w, sess.TranscriptText())
		return
	}
	writeJSON(w, http.StatusOK, sess.Transcript())
}
