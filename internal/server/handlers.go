package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/amanullahtanweer/voicememo/internal/recording"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same open policy as the REST CORS handling.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "No file uploaded")
		return
	}

	title := r.FormValue("title")
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "No file uploaded")
		return
	}

	rec, err := s.manager.CreateRecording(r.Context(), title, audio, header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "recording": rec})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.manager.ListRecordings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "recordings": recs})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.manager.GetRecording(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "recording": rec})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteRecording(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Recording deleted"})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	text, err := s.manager.Transcribe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "transcription": text})
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var audio []byte
	var contentType string

	// The new clip is optional; without it the append flow falls back to
	// its placeholder segment.
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err == nil {
		if file, header, err := r.FormFile("audio"); err == nil {
			defer file.Close()
			if data, err := io.ReadAll(file); err == nil {
				audio = data
				contentType = header.Header.Get("Content-Type")
			}
		}
	}

	if _, err := s.manager.AppendTranscription(r.Context(), chi.URLParam(r, "id"), audio, contentType); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Recording appended to transcription successfully",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.Register(conn)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// writeError maps a classified lifecycle error to an HTTP status and the
// original application's response envelope.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := recording.KindOf(err)
	status := statusFor(kind)
	if status >= 500 {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("request failed")
	}
	writeErrorMessage(w, status, recording.Message(err))
}

func statusFor(kind recording.Kind) int {
	switch kind {
	case recording.KindValidation,
		recording.KindEmptyTranscription,
		recording.KindNoExistingTranscription:
		return http.StatusBadRequest
	case recording.KindNotFound:
		return http.StatusNotFound
	case recording.KindTranscriptionInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
