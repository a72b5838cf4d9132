package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/learnpath/gamify/internal/app/engagement"
)

// ─── XP & Levels ────────────────────────────────────────────────────────────

func (s *Server) handleXPStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.engagement.XPStatus(r.Context(), userID(r, ""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request) {
	var req awardXPRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engagement.AwardXP(r.Context(), userID(r, req.UserID), *req.Amount, req.Source, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleXPHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := engagement.HistoryFilter{
		Source: strings.TrimSpace(q.Get("source")),
		From:   strings.TrimSpace(q.Get("from")),
		To:     strings.TrimSpace(q.Get("to")),
	}
	var err error
	if f.Limit, err = queryInt(r, "limit", 0); err != nil {
		s.writeError(w, r, err)
		return
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.engagement.XPHistory(r.Context(), userID(r, ""), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, page)
}

func (s *Server) handleLevelCheck(w http.ResponseWriter, r *http.Request) {
	var req levelCheckRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engagement.CheckLevel(r.Context(), userID(r, req.UserID), *req.XPToAdd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleDailyLogin(w http.ResponseWriter, r *http.Request) {
	var req userBody
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engagement.DailyLogin(r.Context(), userID(r, req.UserID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

// ─── Streaks ────────────────────────────────────────────────────────────────

func (s *Server) handleStreakStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.engagement.StreakStatus(r.Context(), userID(r, ""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleStreakActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engagement.RecordActivity(r.Context(), userID(r, req.UserID), strings.TrimSpace(req.ActivityType))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleStreakFreeze(w http.ResponseWriter, r *http.Request) {
	var req userBody
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engagement.UseFreeze(r.Context(), userID(r, req.UserID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleStreakCheck(w http.ResponseWriter, r *http.Request) {
	var req userBody
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engagement.CheckStreak(r.Context(), userID(r, req.UserID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleStreakMilestones(w http.ResponseWriter, r *http.Request) {
	res, err := s.engagement.Milestones(r.Context(), userID(r, ""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, map[string]any{"milestones": res})
}

// ─── Daily Goals ────────────────────────────────────────────────────────────

func (s *Server) handleGoalStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.engagement.GoalStatus(r.Context(), userID(r, ""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engagement.SetDailyGoal(r.Context(), userID(r, req.UserID), engagement.GoalUpdate{
		DailyGoal:      req.DailyGoal,
		TimeCommitment: req.TimeCommitment,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engagement.CompleteLesson(r.Context(), userID(r, req.UserID), strings.TrimSpace(req.LessonID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleGoalHistory(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 7)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engagement.GoalHistory(r.Context(), userID(r, ""), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleGoalStreak(w http.ResponseWriter, r *http.Request) {
	res, err := s.engagement.GoalStreak(r.Context(), userID(r, ""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

// ─── Badges ─────────────────────────────────────────────────────────────────

// handleBadgeCatalogue lists every visible badge; userId is optional.
func (s *Server) handleBadgeCatalogue(w http.ResponseWriter, r *http.Request) {
	res, err := s.engagement.Catalogue(r.Context(), userID(r, ""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, map[string]any{"badges": res, "total": len(res)})
}

func (s *Server) handleUserBadges(w http.ResponseWriter, r *http.Request) {
	res, err := s.engagement.UserBadges(r.Context(), userID(r, ""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, map[string]any{"unlockedBadges": res, "count": len(res)})
}

func (s *Server) handleUnlockBadge(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engagement.UnlockBadge(r.Context(), userID(r, req.UserID), strings.TrimSpace(req.BadgeID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleBadgeStats(w http.ResponseWriter, r *http.Request) {
	res, err := s.engagement.BadgeStats(r.Context(), userID(r, ""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleBadgeProgress(w http.ResponseWriter, r *http.Request) {
	res, err := s.engagement.BadgeProgress(r.Context(), userID(r, ""), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, res)
}
