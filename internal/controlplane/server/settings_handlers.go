package server

import (
	"net/http"
	"strings"

	"github.com/betbot/botdash/internal/controlapi"
)

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Snapshot())
}

func (s *Server) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.settings.Merge(patch); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, controlapi.ControlResult{Status: "success", Message: "Settings updated"})
}

func (s *Server) handleStocksList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Stocks())
}

func (s *Server) handleStocksSave(w http.ResponseWriter, r *http.Request) {
	var st controlapi.StockConfig
	if err := decodeBody(r, &st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(st.Symbol) == "" {
		writeError(w, http.StatusBadRequest, "Symbol is required")
		return
	}
	if err := s.settings.SaveStock(st); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, controlapi.ControlResult{Status: "success", Message: "Stock saved"})
}

func (s *Server) handleStocksDelete(w http.ResponseWriter, r *http.Request) {
	found, err := s.settings.DeleteStock(pathParam(r, "symbol"), r.URL.Query().Get("exchange"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Stock not found")
		return
	}
	writeJSON(w, http.StatusOK, controlapi.ControlResult{Status: "success", Message: "Stock removed"})
}
