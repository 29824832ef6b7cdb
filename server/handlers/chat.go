// Package handlers implements the chat routes: the page, /chat, /clear and
// /set_role, plus /health.
//
// Every request loads the visitor's session at entry and saves it before
// the response body is written. /chat never answers with an error status:
// all of its failures are replies with success=false.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/Siva-Pavan02/Computer-Science-AI/config"
	"github.com/Siva-Pavan02/Computer-Science-AI/errors"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/metrics"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/middleware"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/processing"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/session"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/validation"
	"go.uber.org/zap"
)

// DefaultRoles are the personas offered on the page.
var DefaultRoles = []string{"Student", "Teacher", "Developer", "Researcher"}

// ClearResponse is the reply of /clear.
type ClearResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	WelcomeMessage string `json:"welcome_message"`
}

// RoleResponse is the reply of /set_role.
type RoleResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ChatHandler serves the chat routes.
type ChatHandler struct {
	sessions  *session.Manager
	processor *processing.Processor
	validator *validation.Validator
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu            sync.RWMutex
	maxRoleLength int
}

// NewChatHandler creates a handler. m may be nil.
func NewChatHandler(sessions *session.Manager, processor *processing.Processor, cfg config.ChatConfig, m *metrics.Metrics, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		sessions:      sessions,
		processor:     processor,
		validator:     validation.New(),
		metrics:       m,
		logger:        logger,
		maxRoleLength: cfg.MaxRoleLength,
	}
}

// ApplyConfig swaps the reloadable chat settings. A template that does not
// parse is rejected and the previous one stays active.
func (h *ChatHandler) ApplyConfig(cfg config.ChatConfig) error {
	if err := h.processor.SetTemplate(cfg.PromptTemplate); err != nil {
		return fmt.Errorf("apply prompt template: %w", err)
	}
	h.sessions.SetSettings(session.SettingsFromConfig(cfg))

	h.mu.Lock()
	h.maxRoleLength = cfg.MaxRoleLength
	h.mu.Unlock()
	return nil
}

func (h *ChatHandler) roleLimit() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.maxRoleLength
}

func (h *ChatHandler) requestLogger(r *http.Request) *zap.Logger {
	return h.logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		errors.DefaultLogger.Error("failed to encode response", zap.Error(err))
	}
}

// save persists s and counts sessions created by this request.
func (h *ChatHandler) save(w http.ResponseWriter, r *http.Request, s *session.Session) error {
	isNew := s.IsNew()
	if err := h.sessions.Save(w, r, s); err != nil {
		return err
	}
	if isNew && h.metrics != nil {
		h.metrics.SessionsCreated.Inc()
	}
	return nil
}

// Index renders the page. A new session gets the welcome message.
func (h *ChatHandler) Index(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	requestID := middleware.GetRequestID(r.Context())

	s, err := h.sessions.Load(r)
	if err != nil {
		errors.LogError(logger, err, requestID)
		errors.WriteError(w, errors.NewSessionError(requestID, err))
		return
	}

	settings := h.sessions.Settings()
	if s.EnsureInitialized(settings.WelcomeMessage) || s.IsNew() {
		if err := h.save(w, r, s); err != nil {
			errors.LogError(logger, err, requestID)
			errors.WriteError(w, errors.NewSessionError(requestID, err))
			return
		}
		logger.Debug("session initialized", zap.String("session_id", s.ID))
	}

	data := indexData{
		Role:    s.CurrentRole(settings.DefaultRole),
		Roles:   DefaultRoles,
		History: make([]historyEntry, 0, len(s.ChatHistory)),
	}
	for _, msg := range s.ChatHistory {
		isUser := msg.Role == session.RoleUser
		data.History = append(data.History, historyEntry{
			IsUser:  isUser,
			Content: renderContent(isUser, msg.Content),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		logger.Error("failed to render page", zap.Error(err))
	}
}

// Chat answers one message.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)

	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("panic in chat handler",
				zap.Any("error", rec),
				zap.ByteString("stacktrace", debug.Stack()))
			h.reply(w, processing.FailureResponse(processing.GenericErrorMessage))
		}
	}()

	var req validation.ChatRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid chat request", zap.Error(err))
		h.reply(w, processing.FailureResponse(processing.GenericErrorMessage))
		return
	}
	if req.Role != "" {
		if fe := h.validator.Role(req.Role, h.roleLimit()); fe != nil {
			logger.Warn("invalid chat role", zap.String("reason", fe.Message))
			h.reply(w, processing.FailureResponse(processing.GenericErrorMessage))
			return
		}
	}

	s, err := h.sessions.Load(r)
	if err != nil {
		logger.Error("failed to load session", zap.Error(err))
		h.reply(w, processing.FailureResponse(processing.GenericErrorMessage))
		return
	}
	logger = logger.With(zap.String("session_id", s.ID))

	settings := h.sessions.Settings()
	s.AppendMessage(session.RoleUser, req.Message)
	if req.Role != "" {
		s.SetRole(req.Role)
	}
	s.Remember(req.Message, settings.MaxMemoryPrompts)

	resp, err := h.processor.Process(r.Context(), &processing.Request{
		Message: req.Message,
		Memory:  s.PriorMemory(),
		Role:    s.CurrentRole(settings.DefaultRole),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("client went away", zap.Error(err))
		} else {
			logger.Error("chat processing failed", zap.Error(err))
		}
		resp = processing.FailureResponse(processing.GenericErrorMessage)
	}

	if resp.Success {
		s.AppendMessage(session.RoleAssistant, resp.Content)
	}

	// The user message is kept even when the answer failed
	if err := h.save(w, r, s); err != nil {
		logger.Error("failed to save session", zap.Error(err))
		resp = processing.FailureResponse(processing.GenericErrorMessage)
	}

	h.reply(w, resp)
}

// reply writes a chat reply with status 200 and counts its outcome.
func (h *ChatHandler) reply(w http.ResponseWriter, resp *processing.Response) {
	if h.metrics != nil {
		h.metrics.ChatReplies.WithLabelValues(Outcome(resp)).Inc()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Outcome classifies a chat reply for metrics.
func Outcome(resp *processing.Response) string {
	switch {
	case resp.Success:
		return metrics.OutcomeSuccess
	case resp.RetryAfter > 0:
		return metrics.OutcomeRateLimited
	case resp.Content == processing.ServiceErrorMessage:
		return metrics.OutcomeServiceError
	default:
		return metrics.OutcomeError
	}
}

// RejectChat is the chat-shaped answer for requests shed by the rate
// limiter or the admission queue.
func (h *ChatHandler) RejectChat(w http.ResponseWriter, r *http.Request, retryAfter int) {
	h.reply(w, &processing.Response{
		Content:    processing.RateLimitMessage(retryAfter),
		RetryAfter: retryAfter,
	})
}

// Clear empties the history and memory and re-seeds the welcome message.
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	requestID := middleware.GetRequestID(r.Context())

	s, err := h.sessions.Load(r)
	if err != nil {
		errors.LogError(logger, err, requestID)
		errors.WriteError(w, errors.NewSessionError(requestID, err))
		return
	}

	welcome := h.sessions.Settings().WelcomeMessage
	s.Reset(welcome)
	if err := h.save(w, r, s); err != nil {
		errors.LogError(logger, err, requestID)
		errors.WriteError(w, errors.NewSessionError(requestID, err))
		return
	}

	logger.Debug("chat cleared", zap.String("session_id", s.ID))
	writeJSON(w, http.StatusOK, ClearResponse{
		Success:        true,
		Message:        "Chat history cleared",
		WelcomeMessage: welcome,
	})
}

// SetRole stores the persona label.
func (h *ChatHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	requestID := middleware.GetRequestID(r.Context())

	var req validation.RoleRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid role request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, RoleResponse{Message: "Invalid request body"})
		return
	}
	if fe := h.validator.Role(req.Role, h.roleLimit()); fe != nil {
		writeJSON(w, http.StatusBadRequest, RoleResponse{Message: fe.Message})
		return
	}

	s, err := h.sessions.Load(r)
	if err != nil {
		errors.LogError(logger, err, requestID)
		errors.WriteError(w, errors.NewSessionError(requestID, err))
		return
	}

	s.SetRole(req.Role)
	if err := h.save(w, r, s); err != nil {
		errors.LogError(logger, err, requestID)
		errors.WriteError(w, errors.NewSessionError(requestID, err))
		return
	}

	logger.Debug("role updated", zap.String("session_id", s.ID), zap.String("role", req.Role))
	writeJSON(w, http.StatusOK, RoleResponse{
		Success: true,
		Message: fmt.Sprintf("Role updated to %s", req.Role),
	})
}
