package web

import (
	"fmt"
	"net/http"
	"strconv"

	"stage-command-center/internal/show"
)

// speechMIMEType describes the raw audio returned by the speech model.
const speechMIMEType = "audio/L16;rate=24000"

func (s *Server) scriptID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("script item id %q: %w", r.PathValue("id"), show.ErrValidation))
		return 0, false
	}
	return id, true
}

type scriptTextRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAPIListScript(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"items":     s.show.Script(),
		"active_id": s.show.ActiveScriptID(),
	})
}

func (s *Server) handleAPIAddScriptItem(w http.ResponseWriter, r *http.Request) {
	var req scriptTextRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusCreated, s.show.AddScriptItem(req.Text))
}

func (s *Server) handleAPISetScriptText(w http.ResponseWriter, r *http.Request) {
	id, ok := s.scriptID(w, r)
	if !ok {
		return
	}
	var req scriptTextRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.show.SetScriptText(id, req.Text); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIDeleteScriptItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.scriptID(w, r)
	if !ok {
		return
	}
	if !s.show.DeleteScriptItem(id) {
		s.notFound(w, "script item")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type linkCueRequest struct {
	Cue string `json:"cue"`
}

func (s *Server) handleAPILinkCue(w http.ResponseWriter, r *http.Request) {
	id, ok := s.scriptID(w, r)
	if !ok {
		return
	}
	var req linkCueRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.show.LinkCue(id, req.Cue); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type playResponse struct {
	ActiveID int64  `json:"active_id"`
	Audio    []byte `json:"audio,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

func (s *Server) handleAPIPlayScriptItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.scriptID(w, r)
	if !ok {
		return
	}
	audio, err := s.show.PlayScriptItem(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := playResponse{ActiveID: id, Audio: audio}
	if len(audio) > 0 {
		resp.MIMEType = speechMIMEType
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIStopPlayback(w http.ResponseWriter, r *http.Request) {
	s.show.StopPlayback()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIGenerateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	it, err := s.show.GenerateAnnouncement(r.Context(), req.Prompt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, it)
}

type improveRequest struct {
	Instruction string `json:"instruction"`
}

func (s *Server) handleAPIImproveAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, ok := s.scriptID(w, r)
	if !ok {
		return
	}
	var req improveRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	it, err := s.show.ImproveAnnouncement(r.Context(), id, req.Instruction)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleAPIRegenerateScript(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	items, err := s.show.RegenerateScript(r.Context(), req.Prompt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}
