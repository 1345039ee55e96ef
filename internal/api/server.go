// Package api provides the read-only HTTP API for observing a run: live
// sector state plus stored period reports.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/firmsim/internal/persistence"
	"github.com/talgya/firmsim/internal/sector"
	"github.com/talgya/firmsim/internal/sim"
)

// Server serves sector state over HTTP. All endpoints are GET and read-only.
type Server struct {
	Sector *sector.Sector
	Clock  *sim.Clock
	DB     *persistence.DB
	Port   int
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	seriesLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/firms", s.handleFirms)
	mux.HandleFunc("/api/v1/firm/", s.handleFirmDetail)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/series/", RateLimitMiddleware(seriesLimiter, s.handleSeries))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

// handleStatus returns the clock and population headline.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	firms := s.Sector.Firms()
	var debt, equity int64
	for _, f := range firms {
		debt += f.Finance().OutstandingDebt()
		equity += f.Equity()
	}
	writeJSON(w, map[string]any{
		"period":       s.Clock.Period(),
		"firms":        len(firms),
		"total_debt":   debt,
		"total_equity": equity,
	})
}

// handleFirms returns the latest snapshot of every firm.
func (s *Server) handleFirms(w http.ResponseWriter, r *http.Request) {
	firms := s.Sector.Firms()
	out := make([]map[string]any, 0, len(firms))
	for _, f := range firms {
		out = append(out, map[string]any{
			"id":     f.ID(),
			"report": f.Report(),
		})
	}
	writeJSON(w, out)
}

// handleFirmDetail returns one firm's latest snapshot: GET /api/v1/firm/:id.
func (s *Server) handleFirmDetail(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/firm/")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		http.Error(w, "bad firm id", http.StatusBadRequest)
		return
	}
	for _, f := range s.Sector.Firms() {
		if f.ID() == id {
			writeJSON(w, map[string]any{
				"id":      f.ID(),
				"quality": f.Finance().Quality().String(),
				"report":  f.Report(),
			})
			return
		}
	}
	http.Error(w, "firm not found", http.StatusNotFound)
}

// handleEvents returns recent sector events from the store.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeJSON(w, []sector.Event{})
		return
	}
	events, err := s.DB.RecentEvents(100)
	if err != nil {
		http.Error(w, "event query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

// handleSeries returns a stored report series: GET /api/v1/series/:id/:key.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "no report store attached", http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/series/"), "/")
	if len(parts) != 2 {
		http.Error(w, "want /api/v1/series/:firm/:key", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "bad firm id", http.StatusBadRequest)
		return
	}
	values, err := s.DB.FirmSeries(id, parts[1])
	if err != nil {
		http.Error(w, "series query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"firm": id, "key": parts[1], "values": values})
}
