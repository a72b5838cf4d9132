package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/learnpath/gamify/internal/domain"
	"github.com/learnpath/gamify/internal/infra/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleLeague serves both /leaderboard and /leaderboard/{league}. Without
// a league the caller's own league is shown.
func (s *Server) handleLeague(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "league")
	if name == "" {
		name = r.URL.Query().Get("league")
	}
	res, err := s.league.League(r.Context(), strings.TrimSpace(name), userID(r, ""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleLeagueUserStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.league.UserStatus(r.Context(), userID(r, ""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleLeagueUserHistory(w http.ResponseWriter, r *http.Request) {
	res, err := s.league.UserHistory(r.Context(), userID(r, ""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleOptOut(w http.ResponseWriter, r *http.Request) {
	var req optInRequest
	if err := decodeBody(r, &req); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) && ve.Field == "optIn" {
			err = domain.ErrOptInRequired
		}
		s.writeError(w, r, err)
		return
	}
	if req.OptIn == nil {
		s.writeError(w, r, domain.ErrOptInRequired)
		return
	}
	res, err := s.league.SetOptIn(r.Context(), userID(r, req.UserID), *req.OptIn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleLeagueXP(w http.ResponseWriter, r *http.Request) {
	var req leagueXPRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.league.AddWeeklyXP(r.Context(), userID(r, req.UserID), *req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

// ─── Admin ──────────────────────────────────────────────────────────────────

func (s *Server) handleLeagueSummary(w http.ResponseWriter, r *http.Request) {
	res, err := s.league.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

// handleRollover forces the weekly rollover. A week that was already
// processed answers 200 with success=false.
func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	res, err := s.league.Rollover(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !res.Processed {
		writeJSON(w, http.StatusOK, envelope{Success: false, Data: res, Message: res.Message})
		return
	}
	writeData(w, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, res, err := export.Build(r.Context(), s.league)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="standings-%s.xlsx"`, res.WeekID))
	if _, err := f.WriteTo(w); err != nil {
		s.logger.Error("export write failed", "week", res.WeekID, "error", err)
	}
}
