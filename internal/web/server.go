package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"stage-command-center/internal/automation"
	"stage-command-center/internal/show"
)

const maxBodyBytes = 1 << 20

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed CORS and WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithAutomation sets the automation engine and script manager.
func WithAutomation(engine *automation.Engine, mgr *automation.Manager) ServerOption {
	return func(s *Server) {
		s.autoEngine = engine
		s.scriptMgr = mgr
	}
}

// WithVersion sets the application version string.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP and WebSocket front end of the command center.
type Server struct {
	show           *show.Show
	wsHub          *WSHub
	logger         *slog.Logger
	mux            *http.ServeMux
	apiKey         string
	allowedOrigins []string
	scriptMgr      *automation.Manager
	autoEngine     *automation.Engine
	version        string
	wg             sync.WaitGroup
	unsubEvents    func()
}

// stateView is the full show state sent to new clients.
type stateView struct {
	Equipment      []show.EquipmentItem   `json:"equipment"`
	Presets        []show.Preset          `json:"presets"`
	Cues           []show.LightingCue     `json:"cues"`
	Themes         []show.VisualizerTheme `json:"themes"`
	ActiveTheme    string                 `json:"active_theme"`
	Notifications  []show.Notification    `json:"notifications"`
	Script         []show.ScriptItem      `json:"script"`
	ActiveScriptID int64                  `json:"active_script_id"`
	EventStatus    show.EventStatus       `json:"event_status"`
	Voice          show.VoiceSettings     `json:"voice"`
}

// NewServer creates the server and starts broadcasting show events.
func NewServer(sh *show.Show, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		show:   sh,
		logger: logger.With("component", "web"),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = NewWSHub(s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.wsHub.Run()
	}()

	s.unsubEvents = sh.Events().OnAll(s.wsHub.Broadcast)

	s.routes()
	return s
}

// Stop shuts down the WebSocket hub and waits for it to exit.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	s.wsHub.Stop()
	s.wg.Wait()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)
	s.mux.HandleFunc("GET /api/state", s.handleAPIState)

	// Equipment
	s.mux.HandleFunc("GET /api/equipment", s.handleAPIListEquipment)
	s.mux.HandleFunc("GET /api/equipment/{id}", s.handleAPIGetEquipment)
	s.mux.HandleFunc("POST /api/equipment/{id}/toggle", s.handleAPIToggleEquipment)
	s.mux.HandleFunc("PUT /api/equipment/{id}/status", s.handleAPISetEquipmentStatus)
	s.mux.HandleFunc("POST /api/equipment/{id}/troubleshoot", s.handleAPITroubleshoot)
	s.mux.HandleFunc("POST /api/simulate-failure", s.handleAPISimulateFailure)

	// Presets
	s.mux.HandleFunc("GET /api/presets", s.handleAPIListPresets)
	s.mux.HandleFunc("POST /api/presets", s.handleAPISavePreset)
	s.mux.HandleFunc("POST /api/presets/reorder", s.handleAPIReorderPresets)
	s.mux.HandleFunc("PUT /api/presets/{name}", s.handleAPIUpdatePreset)
	s.mux.HandleFunc("DELETE /api/presets/{name}", s.handleAPIDeletePreset)
	s.mux.HandleFunc("POST /api/presets/{name}/load", s.handleAPILoadPreset)

	// Lighting cues
	s.mux.HandleFunc("GET /api/cues", s.handleAPIListCues)
	s.mux.HandleFunc("POST /api/cues", s.handleAPIAddCue)
	s.mux.HandleFunc("POST /api/cues/generate", s.handleAPIGenerateCue)
	s.mux.HandleFunc("POST /api/cues/{name}/trigger", s.handleAPITriggerCue)

	// Visualizer themes
	s.mux.HandleFunc("GET /api/themes", s.handleAPIListThemes)
	s.mux.HandleFunc("POST /api/themes", s.handleAPIAddTheme)
	s.mux.HandleFunc("POST /api/themes/generate", s.handleAPIGenerateTheme)
	s.mux.HandleFunc("POST /api/themes/{key}/select", s.handleAPISelectTheme)

	// Notifications
	s.mux.HandleFunc("GET /api/notifications", s.handleAPIListNotifications)
	s.mux.HandleFunc("DELETE /api/notifications/{id}", s.handleAPIDismissNotification)

	// Script
	s.mux.HandleFunc("GET /api/script", s.handleAPIListScript)
	s.mux.HandleFunc("POST /api/script", s.handleAPIAddScriptItem)
	s.mux.HandleFunc("POST /api/script/generate", s.handleAPIGenerateAnnouncement)
	s.mux.HandleFunc("POST /api/script/regenerate", s.handleAPIRegenerateScript)
	s.mux.HandleFunc("POST /api/script/stop", s.handleAPIStopPlayback)
	s.mux.HandleFunc("PUT /api/script/{id}", s.handleAPISetScriptText)
	s.mux.HandleFunc("DELETE /api/script/{id}", s.handleAPIDeleteScriptItem)
	s.mux.HandleFunc("PUT /api/script/{id}/cue", s.handleAPILinkCue)
	s.mux.HandleFunc("POST /api/script/{id}/play", s.handleAPIPlayScriptItem)
	s.mux.HandleFunc("POST /api/script/{id}/improve", s.handleAPIImproveAnnouncement)

	// Event status and voice
	s.mux.HandleFunc("GET /api/status", s.handleAPIGetEventStatus)
	s.mux.HandleFunc("PUT /api/status", s.handleAPISetEventStatus)
	s.mux.HandleFunc("POST /api/status/suggest", s.handleAPISuggestStatus)
	s.mux.HandleFunc("GET /api/voice", s.handleAPIGetVoice)
	s.mux.HandleFunc("PUT /api/voice", s.handleAPISetVoice)

	// Automations
	s.mux.HandleFunc("GET /api/automations", s.handleAPIListAutomations)
	s.mux.HandleFunc("GET /api/automations/{id}", s.handleAPIGetAutomation)
	s.mux.HandleFunc("POST /api/automations", s.handleAPICreateAutomation)
	s.mux.HandleFunc("PUT /api/automations/{id}", s.handleAPIUpdateAutomation)
	s.mux.HandleFunc("DELETE /api/automations/{id}", s.handleAPIDeleteAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/toggle", s.handleAPIToggleAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/run", s.handleAPIRunAutomation)

	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler, applying CORS and API key checks.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && len(s.allowedOrigins) > 0 {
		if !s.handleCORS(w, r, origin) {
			return
		}
	}

	// The WebSocket upgrade cannot carry custom headers, so only /api/ is keyed.
	if s.apiKey != "" && strings.HasPrefix(r.URL.Path, "/api/") {
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

// handleCORS answers preflights and rejects mutating requests from unknown
// origins. It reports whether the request should continue.
func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request, origin string) bool {
	allowed := s.isOriginAllowed(origin)
	switch {
	case r.Method == http.MethodOptions:
		if !allowed {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return false
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		w.Header().Set("Access-Control-Max-Age", "3600")
		w.WriteHeader(http.StatusNoContent)
		return false
	case r.Method != http.MethodGet:
		if !allowed {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return false
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	return true
}

// decodeOptionalBody is decodeBody for endpoints whose body may be omitted.
// An empty body leaves v untouched, whatever the declared length.
func (s *Server) decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func (s *Server) isOriginAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) snapshot() stateView {
	return stateView{
		Equipment:      s.show.Equipment(),
		Presets:        s.show.Presets(),
		Cues:           s.show.Cues(),
		Themes:         s.show.Themes(),
		ActiveTheme:    s.show.ActiveTheme(),
		Notifications:  s.show.Notifications(),
		Script:         s.show.Script(),
		ActiveScriptID: s.show.ActiveScriptID(),
		EventStatus:    s.show.EventStatus(),
		Voice:          s.show.Voice(),
	}
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleAPIState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, show.ErrValidation), errors.Is(err, automation.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, show.ErrNotFound), errors.Is(err, automation.ErrScriptNotFound):
		return http.StatusNotFound
	case errors.Is(err, show.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, show.ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, show.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal server error"
	}
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) notFound(w http.ResponseWriter, what string) {
	s.writeJSON(w, http.StatusNotFound, map[string]string{"error": what + " not found"})
}

// decodeBody reads a JSON request body into v, answering 400 itself on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}
