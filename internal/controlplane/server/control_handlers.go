package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/betbot/botdash/internal/controlapi"
)

const flagBotStatus = "bot_status"

func (s *Server) handleControlStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	v, err := s.controlFlag(ctx, flagBotStatus, controlapi.StatusStopped)
	if err != nil {
		writeJSON(w, http.StatusOK, controlapi.ControlStatusResponse{Status: "ERROR", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, controlapi.ControlStatusResponse{Status: v})
}

// handleControlSet records the flag and drives the engine to match it.
func (s *Server) handleControlSet(w http.ResponseWriter, r *http.Request) {
	var req controlapi.ControlSetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	target := strings.ToUpper(strings.TrimSpace(req.Status))
	if target != controlapi.StatusRunning && target != controlapi.StatusStopped {
		writeError(w, http.StatusBadRequest, "status must be RUNNING or STOPPED")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.setControlFlag(ctx, flagBotStatus, target, s.now().Format(tsLayout)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if target == controlapi.StatusRunning {
		s.engine.Start()
	} else {
		_, _ = s.engine.Stop()
	}
	log.WithField("state", target).Info("control flag set")
	writeJSON(w, http.StatusOK, controlapi.ControlResult{Status: "success", NewState: target})
}

func (s *Server) handleControlStart(w http.ResponseWriter, r *http.Request) {
	msg := s.engine.Start()
	s.recordFlag(r.Context(), controlapi.StatusRunning)
	writeJSON(w, http.StatusOK, controlapi.ControlResult{Status: "success", Message: msg})
}

func (s *Server) handleControlStop(w http.ResponseWriter, r *http.Request) {
	msg, err := s.engine.Stop()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.recordFlag(r.Context(), controlapi.StatusStopped)
	writeJSON(w, http.StatusOK, controlapi.ControlResult{Status: "success", Message: msg})
}

func (s *Server) recordFlag(parent context.Context, v string) {
	ctx, cancel := context.WithTimeout(parent, 3*time.Second)
	defer cancel()
	if err := s.setControlFlag(ctx, flagBotStatus, v, s.now().Format(tsLayout)); err != nil {
		log.WithError(err).Warn("record control flag")
	}
}
