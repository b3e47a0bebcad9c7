package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.Start(r.Context()); err != nil {
		s.logger.Error("Start request failed", zap.Error(err))
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.Stop(r.Context()); err != nil {
		s.logger.Error("Stop request failed", zap.Error(err))
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	persisted, err := s.statusRepo.GetBotStatus(r.Context())
	if err != nil {
		s.logger.Error("Failed to load bot status", zap.Error(err))
		http.Error(w, "Failed to load bot status", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"orchestrator": s.orchestrator.Status(),
		"persisted":    persisted,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledger.Snapshot())
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	signals, err := s.signalRepo.ListSignals(r.Context(), queryLimit(r, 50))
	if err != nil {
		s.logger.Error("Failed to list signals", zap.Error(err))
		http.Error(w, "Failed to list signals", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, signals)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.tradeRepo.ListTrades(r.Context(), queryLimit(r, 50))
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		http.Error(w, "Failed to list trades", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 1000 {
		return def
	}
	return limit
}
