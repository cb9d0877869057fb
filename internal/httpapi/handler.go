package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"hkms/internal/access"
	"hkms/internal/lifecycle"
	"hkms/internal/models"
	"hkms/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Handler struct {
	engine     *lifecycle.Engine
	auth       store.AuthStore
	sessionTTL time.Duration
	logger     *zap.Logger
}

type Options struct {
	SessionTTL time.Duration
	Logger     *zap.Logger
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string      `json:"session_id"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type sessionView struct {
	models.CleaningSession
	ElapsedSeconds int64 `json:"elapsed_seconds"`
}

func NewHandler(engine *lifecycle.Engine, auth store.AuthStore, options Options) *Handler {
	if options.SessionTTL <= 0 {
		options.SessionTTL = 12 * time.Hour
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	return &Handler{
		engine:     engine,
		auth:       auth,
		sessionTTL: options.SessionTTL,
		logger:     options.Logger,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/me", guard(access.AnyRole, h.handleMe))
	mux.HandleFunc("/api/rooms", h.handleRooms)
	mux.HandleFunc("/api/rooms/", h.handleRoomResource)
	mux.HandleFunc("/api/sessions/", h.handleSessionResource)
	return mux
}

// guard rejects callers whose resolved role is outside allowed before the
// wrapped handler runs.
func guard(allowed access.RoleSet, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := access.FromContext(r.Context())
		if err := access.Require(id, allowed); err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		next(w, r)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}
	result, err := h.auth.Login(r.Context(), req.Email, req.Password, h.sessionTTL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: result.Session.SessionID,
		ExpiresAt: result.Session.ExpiresAt,
		User:      result.User,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, _ := access.FromContext(r.Context())
	writeJSON(w, http.StatusOK, id)
}

func (h *Handler) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		guard(access.AnyRole, h.handleListRooms)(w, r)
	case http.MethodPost:
		guard(access.ManagerOnly, h.handleCreateRoom)(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleListRooms(w http.ResponseWriter, r *http.Request) {
	id, _ := access.FromContext(r.Context())
	rooms, err := h.engine.ListRooms(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.NewRoom
	if !decodeRequest(w, r, &req) {
		return
	}
	id, _ := access.FromContext(r.Context())
	room, err := h.engine.CreateRoom(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// handleRoomResource serves /api/rooms/{id} and its sub-resources.
func (h *Handler) handleRoomResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	roomID := parts[0]
	if roomID == "" || len(parts) > 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(roomID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "room id must be a UUID")
		return
	}
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		guard(access.AnyRole, func(w http.ResponseWriter, r *http.Request) { h.handleGetRoom(w, r, roomID) })(w, r)
		return
	}

	route := r.Method + " " + parts[1]
	switch route {
	case "POST status":
		guard(access.Supervisory, func(w http.ResponseWriter, r *http.Request) { h.handleTransition(w, r, roomID) })(w, r)
	case "POST assign":
		guard(access.Supervisory, func(w http.ResponseWriter, r *http.Request) { h.handleAssign(w, r, roomID) })(w, r)
	case "GET sessions":
		guard(access.AnyRole, func(w http.ResponseWriter, r *http.Request) { h.handleListSessions(w, r, roomID) })(w, r)
	case "POST sessions":
		guard(access.AnyRole, func(w http.ResponseWriter, r *http.Request) { h.handleStartSession(w, r, roomID) })(w, r)
	case "POST checklists":
		guard(access.AnyRole, func(w http.ResponseWriter, r *http.Request) { h.handleSaveChecklist(w, r, roomID) })(w, r)
	case "GET problem-reports":
		guard(access.AnyRole, func(w http.ResponseWriter, r *http.Request) { h.handleListProblemReports(w, r, roomID) })(w, r)
	case "POST problem-reports":
		guard(access.AnyRole, func(w http.ResponseWriter, r *http.Request) { h.handleReportProblem(w, r, roomID) })(w, r)
	default:
		switch parts[1] {
		case "status", "assign", "sessions", "checklists", "problem-reports":
			w.WriteHeader(http.StatusMethodNotAllowed)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	id, _ := access.FromContext(r.Context())
	room, err := h.engine.GetRoom(r.Context(), id, roomID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, roomID string) {
	var req statusRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	id, _ := access.FromContext(r.Context())
	room, err := h.engine.Transition(r.Context(), id, roomID, strings.TrimSpace(req.Status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request, roomID string) {
	var req lifecycle.Assignment
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.AssignedTo != nil && strings.TrimSpace(*req.AssignedTo) != "" && !isValidUUID(strings.TrimSpace(*req.AssignedTo)) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "assigned_to must be a UUID when provided")
		return
	}
	id, _ := access.FromContext(r.Context())
	room, err := h.engine.Assign(r.Context(), id, roomID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request, roomID string) {
	id, _ := access.FromContext(r.Context())
	sessions, err := h.engine.ListSessions(r.Context(), id, roomID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, sessionView{CleaningSession: session, ElapsedSeconds: h.engine.Elapsed(session)})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request, roomID string) {
	id, _ := access.FromContext(r.Context())
	session, err := h.engine.StartSession(r.Context(), id, roomID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView{CleaningSession: session, ElapsedSeconds: h.engine.Elapsed(session)})
}

func (h *Handler) handleSaveChecklist(w http.ResponseWriter, r *http.Request, roomID string) {
	var req lifecycle.ChecklistInput
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.SessionID != nil && !isValidUUID(*req.SessionID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "session_id must be a UUID when provided")
		return
	}
	id, _ := access.FromContext(r.Context())
	checklist, err := h.engine.SaveChecklist(r.Context(), id, roomID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checklist)
}

func (h *Handler) handleListProblemReports(w http.ResponseWriter, r *http.Request, roomID string) {
	id, _ := access.FromContext(r.Context())
	reports, err := h.engine.ListProblemReports(r.Context(), id, roomID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) handleReportProblem(w http.ResponseWriter, r *http.Request, roomID string) {
	var req lifecycle.ProblemInput
	if !decodeRequest(w, r, &req) {
		return
	}
	id, _ := access.FromContext(r.Context())
	report, err := h.engine.ReportProblem(r.Context(), id, roomID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// handleSessionResource serves GET /api/sessions/{id} and
// POST /api/sessions/{id}/actions/{pause|resume|complete}.
func (h *Handler) handleSessionResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	sessionID := parts[0]
	if sessionID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(sessionID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "session id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		guard(access.AnyRole, func(w http.ResponseWriter, r *http.Request) { h.handleGetSession(w, r, sessionID) })(w, r)
	case len(parts) == 3 && parts[1] == "actions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		action := parts[2]
		guard(access.AnyRole, func(w http.ResponseWriter, r *http.Request) { h.handleSessionAction(w, r, sessionID, action) })(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	id, _ := access.FromContext(r.Context())
	session, err := h.engine.GetSession(r.Context(), id, sessionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{CleaningSession: session, ElapsedSeconds: h.engine.Elapsed(session)})
}

func (h *Handler) handleSessionAction(w http.ResponseWriter, r *http.Request, sessionID, action string) {
	id, _ := access.FromContext(r.Context())
	var (
		session models.CleaningSession
		err     error
	)
	switch action {
	case "pause":
		session, err = h.engine.PauseSession(r.Context(), id, sessionID)
	case "resume":
		session, err = h.engine.ResumeSession(r.Context(), id, sessionID)
	case "complete":
		session, err = h.engine.CompleteSession(r.Context(), id, sessionID)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{CleaningSession: session, ElapsedSeconds: h.engine.Elapsed(session)})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "authentication required"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "unauthorized", "invalid email or password"
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden, "forbidden", "role not permitted"
	case errors.Is(err, store.ErrRoomNotFound):
		return http.StatusNotFound, "not_found", "room not found"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound, "not_found", "session not found"
	case errors.Is(err, lifecycle.ErrInvalidStatus):
		return http.StatusUnprocessableEntity, "invalid_status", err.Error()
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, lifecycle.ErrConflict):
		return http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, lifecycle.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request", err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
