package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"notewise/internal/app"
	"notewise/internal/usertoken"
	"notewise/internal/util"
	"notewise/pkg/ai"
	"notewise/pkg/extract"
	"notewise/pkg/store"
)

// Limiter throttles generation requests per user.
type Limiter interface {
	Allow(key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *usertoken.Verifier
	// Sessions is an optional fallback for opaque session tokens when the
	// bearer token is not a JWT.
	Sessions        store.SessionStore
	GenerateLimiter Limiter
	MaxUploadBytes  int64
}

// Server exposes the HTTP API for notes and their study artifacts.
type Server struct {
	app             *app.App
	tokenVerifier   *usertoken.Verifier
	sessions        store.SessionStore
	generateLimiter Limiter
	mux             *http.ServeMux
	maxUploadBytes  int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app required")
	}
	if cfg.TokenVerifier == nil && cfg.Sessions == nil {
		return nil, errors.New("server: token verifier or session store required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 * 1024 * 1024
	}
	s := &Server{
		app:             cfg.App,
		tokenVerifier:   cfg.TokenVerifier,
		sessions:        cfg.Sessions,
		generateLimiter: cfg.GenerateLimiter,
		mux:             http.NewServeMux(),
		maxUploadBytes:  maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// notes and per-note artifacts
	s.mux.Handle("/notes", s.withUser(s.handleNotes))
	s.mux.Handle("/notes/", s.withUser(s.handleNoteByID))

	// quiz grading
	s.mux.Handle("/quizzes/", s.withUser(s.handleQuizByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, ok := s.resolveUser(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) resolveUser(token string) (string, bool) {
	if s.tokenVerifier != nil {
		if subject, err := s.tokenVerifier.VerifySubject(token); err == nil {
			return subject, true
		}
	}
	if s.sessions != nil {
		if userID, ok, err := s.sessions.GetUserIDByToken(token); err == nil && ok {
			return userID, true
		}
	}
	return "", false
}

func (s *Server) withGenerateLimit(w http.ResponseWriter, userID string) bool {
	if s.generateLimiter == nil {
		return true
	}
	if !s.generateLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodPost:
		s.handleUploadNote(w, r, userID)
	case http.MethodGet:
		s.handleListNotes(w, r, userID)
	default:
		methodNotAllowed(w)
	}
}

// /notes/stats or /notes/{id}[/download|/summary|/quiz|/chat]
func (s *Server) handleNoteByID(w http.ResponseWriter, r *http.Request, userID string) {
	path := strings.TrimPrefix(r.URL.Path, "/notes/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if id == "stats" && len(parts) == 1 {
		s.handleStats(w, r, userID)
		return
	}
	if len(parts) == 1 {
		s.handleNote(w, r, userID, id)
		return
	}
	switch parts[1] {
	case "download":
		s.handleDownloadNote(w, r, userID, id)
	case "summary":
		s.handleSummary(w, r, userID, id)
	case "quiz":
		s.handleQuiz(w, r, userID, id)
	case "chat":
		s.handleChat(w, r, userID, id)
	default:
		notFound(w, "not found")
	}
}

// /quizzes/{id}/submit
func (s *Server) handleQuizByID(w http.ResponseWriter, r *http.Request, userID string) {
	path := strings.TrimPrefix(r.URL.Path, "/quizzes/")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" || len(parts) != 2 || parts[1] != "submit" {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.handleSubmitQuiz(w, r, userID, parts[0])
}

func (s *Server) handleUploadNote(w http.ResponseWriter, r *http.Request, userID string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	note, err := s.app.UploadNote(r.Context(), userID, header.Filename, data)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request, userID string) {
	notes, err := s.app.ListNotes(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": notes,
		"count": len(notes),
	})
}

func (s *Server) handleNote(w http.ResponseWriter, r *http.Request, userID, id string) {
	switch r.Method {
	case http.MethodGet:
		note, err := s.app.GetNote(r.Context(), userID, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, note)
	case http.MethodDelete:
		if err := s.app.DeleteNote(r.Context(), userID, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleDownloadNote(w http.ResponseWriter, r *http.Request, userID, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	url, err := s.app.DownloadURL(r.Context(), userID, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, userID, noteID string) {
	switch r.Method {
	case http.MethodPost:
		if !s.withGenerateLimit(w, userID) {
			return
		}
		summary, err := s.app.GenerateSummary(r.Context(), userID, noteID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, summary)
	case http.MethodGet:
		summary, ok, err := s.app.LatestSummary(r.Context(), userID, noteID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			notFound(w, "summary not found")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request, userID, noteID string) {
	switch r.Method {
	case http.MethodPost:
		if !s.withGenerateLimit(w, userID) {
			return
		}
		quiz, questions, err := s.app.GenerateQuiz(r.Context(), userID, noteID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"quiz":      quiz,
			"questions": questions,
		})
	case http.MethodGet:
		quiz, questions, ok, err := s.app.LatestQuiz(r.Context(), userID, noteID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			notFound(w, "quiz not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"quiz":      quiz,
			"questions": questions,
		})
	default:
		methodNotAllowed(w)
	}
}

type submitQuizRequest struct {
	// Answers maps question id to the selected option text.
	Answers map[string]string `json:"answers"`
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request, userID, quizID string) {
	var req submitQuizRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	quiz, questions, err := s.app.SubmitQuiz(r.Context(), userID, quizID, req.Answers)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quiz":      quiz,
		"questions": questions,
	})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, userID, noteID string) {
	switch r.Method {
	case http.MethodPost:
		if !s.withGenerateLimit(w, userID) {
			return
		}
		var req chatRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		reply, err := s.app.SendMessage(r.Context(), userID, noteID, req.Message)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, reply)
	case http.MethodGet:
		messages, err := s.app.History(r.Context(), userID, noteID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": messages,
			"count": len(messages),
		})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeAppError translates domain failures into HTTP status codes.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "unsupported file format")
	case errors.Is(err, app.ErrUploadTooLarge):
		writeError(w, http.StatusBadRequest, "file too large")
	case errors.Is(err, app.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is empty")
	case errors.Is(err, app.ErrIncompleteQuiz):
		writeError(w, http.StatusBadRequest, "quiz submission incomplete")
	case errors.Is(err, app.ErrAlreadyGraded):
		writeError(w, http.StatusConflict, "quiz already graded")
	case errors.Is(err, ai.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, ai.ErrQuotaExceeded):
		writeError(w, http.StatusPaymentRequired, "ai quota exceeded")
	case errors.Is(err, ai.ErrInvalidArtifactShape):
		writeError(w, http.StatusBadGateway, "ai returned an invalid result")
	case errors.Is(err, ai.ErrBackendUnavailable):
		writeError(w, http.StatusBadGateway, "ai backend unavailable")
	case errors.Is(err, extract.ErrExtraction):
		writeError(w, http.StatusBadGateway, "text extraction failed")
	case errors.Is(err, app.ErrNoteNotFound):
		notFound(w, "note not found")
	case errors.Is(err, app.ErrQuizNotFound):
		notFound(w, "quiz not found")
	case errors.Is(err, app.ErrOriginalUnavailable):
		notFound(w, "original document unavailable")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForNote(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeForNote(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "forbidden":
		return "NOTE_FORBIDDEN"
	case message == "note not found":
		return "NOTE_NOT_FOUND"
	case message == "summary not found":
		return "SUMMARY_NOT_FOUND"
	case message == "quiz not found":
		return "QUIZ_NOT_FOUND"
	case message == "original document unavailable":
		return "NOTE_ORIGINAL_UNAVAILABLE"
	case message == "unsupported file format":
		return "NOTE_UNSUPPORTED_FORMAT"
	case message == "file too large":
		return "NOTE_FILE_TOO_LARGE"
	case strings.Contains(message, "file is required"):
		return "NOTE_FILE_REQUIRED"
	case message == "invalid form data":
		return "NOTE_INVALID_UPLOAD_FORM"
	case message == "failed to read file":
		return "NOTE_INVALID_UPLOAD_FORM"
	case message == "text extraction failed":
		return "NOTE_EXTRACTION_FAILED"
	case message == "message is empty":
		return "CHAT_EMPTY_MESSAGE"
	case message == "quiz submission incomplete":
		return "QUIZ_INCOMPLETE_SUBMISSION"
	case message == "quiz already graded":
		return "QUIZ_ALREADY_GRADED"
	case message == "rate limit exceeded":
		return "AI_RATE_LIMITED"
	case message == "ai quota exceeded":
		return "AI_QUOTA_EXCEEDED"
	case message == "ai backend unavailable":
		return "AI_BACKEND_UNAVAILABLE"
	case message == "ai returned an invalid result":
		return "AI_INVALID_ARTIFACT"
	case message == "invalid json body":
		return "REQUEST_INVALID_BODY"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_INVALID"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "NOTE_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
