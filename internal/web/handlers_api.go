package web

import (
	"net/http"

	"stage-command-center/internal/show"
)

func (s *Server) handleAPIListEquipment(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.show.Equipment())
}

func (s *Server) handleAPIGetEquipment(w http.ResponseWriter, r *http.Request) {
	it, ok := s.show.Device(r.PathValue("id"))
	if !ok {
		s.notFound(w, "equipment")
		return
	}
	s.writeJSON(w, http.StatusOK, it)
}

type toggleRequest struct {
	// Expected is the on state the client saw. Without it the stored state is flipped.
	Expected *bool `json:"expected"`
}

func (s *Server) handleAPIToggleEquipment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req toggleRequest
	if !s.decodeOptionalBody(w, r, &req) {
		return
	}

	var applied bool
	if req.Expected != nil {
		applied = s.show.Toggle(id, *req.Expected)
	} else {
		applied = s.show.Flip(id)
	}

	it, ok := s.show.Device(id)
	if !ok {
		s.notFound(w, "equipment")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"applied": applied, "equipment": it})
}

type setStatusRequest struct {
	Status show.Status `json:"status"`
}

func (s *Server) handleAPISetEquipmentStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if err := s.show.SetStatus(id, req.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	it, _ := s.show.Device(id)
	s.writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleAPISimulateFailure(w http.ResponseWriter, r *http.Request) {
	failed, reset := s.show.SimulateFailure()
	s.writeJSON(w, http.StatusOK, map[string]any{"failed": failed, "reset": reset})
}

func (s *Server) handleAPITroubleshoot(w http.ResponseWriter, r *http.Request) {
	steps, err := s.show.Troubleshoot(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"steps": steps})
}

// Presets

type presetRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleAPIListPresets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.show.Presets())
}

func (s *Server) handleAPISavePreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	p, err := s.show.SavePreset(req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleAPIUpdatePreset(w http.ResponseWriter, r *http.Request) {
	if !s.show.UpdatePreset(r.PathValue("name")) {
		s.notFound(w, "preset")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIDeletePreset(w http.ResponseWriter, r *http.Request) {
	if !s.show.DeletePreset(r.PathValue("name")) {
		s.notFound(w, "preset")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPILoadPreset(w http.ResponseWriter, r *http.Request) {
	if !s.show.LoadPreset(r.PathValue("name")) {
		s.notFound(w, "preset")
		return
	}
	s.writeJSON(w, http.StatusOK, s.show.Equipment())
}

type reorderRequest struct {
	Names []string `json:"names"`
}

func (s *Server) handleAPIReorderPresets(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.show.ReorderPresets(req.Names); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.show.Presets())
}

// Lighting cues

func (s *Server) handleAPIListCues(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.show.Cues())
}

func (s *Server) handleAPIAddCue(w http.ResponseWriter, r *http.Request) {
	var cue show.LightingCue
	if !s.decodeBody(w, r, &cue) {
		return
	}
	cue.IsAIGenerated = false
	stored, err := s.show.AddCue(cue)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleAPITriggerCue(w http.ResponseWriter, r *http.Request) {
	if !s.show.TriggerCue(r.PathValue("name")) {
		s.notFound(w, "cue")
		return
	}
	s.writeJSON(w, http.StatusOK, s.show.Equipment())
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleAPIGenerateCue(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	cue, err := s.show.GenerateCue(r.Context(), req.Prompt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, cue)
}

// Visualizer themes

func (s *Server) handleAPIListThemes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"themes": s.show.Themes(), "active": s.show.ActiveTheme()})
}

func (s *Server) handleAPIAddTheme(w http.ResponseWriter, r *http.Request) {
	var theme show.VisualizerTheme
	if !s.decodeBody(w, r, &theme) {
		return
	}
	theme.IsAIGenerated = false
	stored, err := s.show.AddTheme(theme)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleAPIGenerateTheme(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	theme, err := s.show.GenerateTheme(r.Context(), req.Prompt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, theme)
}

func (s *Server) handleAPISelectTheme(w http.ResponseWriter, r *http.Request) {
	if err := s.show.SelectTheme(r.PathValue("key")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"active": r.PathValue("key")})
}

// Notifications

func (s *Server) handleAPIListNotifications(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.show.Notifications())
}

func (s *Server) handleAPIDismissNotification(w http.ResponseWriter, r *http.Request) {
	if !s.show.DismissNotification(r.PathValue("id")) {
		s.notFound(w, "notification")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Event status and voice

type eventStatusRequest struct {
	Status show.EventStatus `json:"status"`
}

func (s *Server) handleAPIGetEventStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, eventStatusRequest{Status: s.show.EventStatus()})
}

func (s *Server) handleAPISetEventStatus(w http.ResponseWriter, r *http.Request) {
	var req eventStatusRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.show.SetEventStatus(req.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleAPISuggestStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.show.SuggestNextStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, eventStatusRequest{Status: st})
}

func (s *Server) handleAPIGetVoice(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.show.Voice())
}

func (s *Server) handleAPISetVoice(w http.ResponseWriter, r *http.Request) {
	v := s.show.Voice()
	if !s.decodeBody(w, r, &v) {
		return
	}
	if err := s.show.SetVoice(v); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.show.Voice())
}
