package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/dexguard/dexguard/internal/engine"
	"github.com/dexguard/dexguard/internal/protocol"
)

func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"system_status": s.engine.Status(),
		"timestamp":     time.Now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Registry().Snapshots())
}

func (s *Server) handleBreaker(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b, ok := s.engine.Registry().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown breaker "+id)
		return
	}
	writeJSON(w, http.StatusOK, b.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.History().Recent(limitParam(r, 100)))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Notifier().History(limitParam(r, 100)))
}

func (s *Server) handleTriggerBreaker(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		// Body is optional; a bare POST trips with the default reason.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	err := s.engine.TriggerBreaker(id, body.Reason)
	switch {
	case errors.Is(err, engine.ErrUnknownBreaker):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"breaker": id, "result": "triggered"})
}

func (s *Server) handleExecuteProtocol(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	rec, err := s.engine.ExecuteProtocol(r.Context(), name)
	switch {
	case errors.Is(err, protocol.ErrUnknownProtocol):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, protocol.ErrProtocolDisabled):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSetRule(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"enabled\": bool}")
		return
	}

	if err := s.engine.SetRuleEnabled(name, body.Enabled); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rule": name, "enabled": body.Enabled})
}

func (s *Server) handleSetChannel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"enabled\": bool}")
		return
	}

	if err := s.engine.SetChannelEnabled(name, body.Enabled); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": name, "enabled": body.Enabled})
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.engine.Notifier().Acknowledge(id) {
		writeError(w, http.StatusNotFound, "unknown alert "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"alert": id, "result": "acknowledged"})
}
