package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"racebot/internal/daily"
	"racebot/internal/metrics"
	"racebot/internal/racetime"
)

type dailyRequest struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	ChallengeID   *int64 `json:"challengeId"` // nil means resolve from the participant's state
	Result        string `json:"result"`      // "[m]:ss.hh" or "death [Z-F]"
	Comment       string `json:"comment"`
	Override      bool   `json:"override"`
	Overwrite     bool   `json:"overwrite"`
}

func (s *Server) requireDaily(w http.ResponseWriter) bool {
	if s.Daily == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "daily challenge requires a database"})
		return false
	}
	return true
}

func decodeDaily(w http.ResponseWriter, r *http.Request) (dailyRequest, bool) {
	var req dailyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return req, false
	}
	if req.ParticipantID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "participantId is required"})
		return req, false
	}
	return req, true
}

func (s *Server) handleDailyInfo(w http.ResponseWriter, r *http.Request) {
	if !s.requireDaily(w) {
		return
	}
	cur := s.Daily.CurrentChallengeID()
	writeJSON(w, http.StatusOK, map[string]any{
		"challengeId":    cur,
		"opensAt":        s.Daily.OpensAt(cur),
		"nextRotationIn": s.Daily.TimeUntilRotation().String(),
		"graceRemaining": s.Daily.GraceRemaining().String(),
		"previousIsOpen": s.Daily.IsOpen(cur - 1),
	})
}

func (s *Server) handleDailyRegister(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:DailyRegister] Request Received")
	if !s.requireDaily(w) {
		return
	}
	req, ok := decodeDaily(w, r)
	if !ok {
		return
	}

	challengeID, seed, err := s.Daily.Register(req.ParticipantID, req.Override)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"challengeId": challengeID,
		"seed":        seed,
	})
}

func (s *Server) handleDailySubmit(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:DailySubmit] Request Received")
	if !s.requireDaily(w) {
		return
	}
	req, ok := decodeDaily(w, r)
	if !ok {
		return
	}

	challengeID, err := s.dailyChallengeFor(req, s.Daily.RegisteredChallenge)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := daily.ParseResult(strings.Fields(req.Result))
	if err != nil {
		writeError(w, err)
		return
	}
	res.Comment = req.Comment

	if err := s.Daily.Submit(challengeID, req.ParticipantID, req.Name, res, req.Overwrite); err != nil {
		writeError(w, err)
		return
	}
	metrics.DailySubmissions.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"challengeId": challengeID,
		"result":      renderResult(res.Time, res.Level),
	})
}

func (s *Server) handleDailyUnsubmit(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:DailyUnsubmit] Request Received")
	if !s.requireDaily(w) {
		return
	}
	req, ok := decodeDaily(w, r)
	if !ok {
		return
	}

	challengeID, err := s.dailyChallengeFor(req, s.Daily.SubmittedChallenge)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Daily.Unsubmit(challengeID, req.ParticipantID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challengeId": challengeID})
}

// dailyChallengeFor picks the challenge a command applies to: the explicit id
// from the request, or the one derived from the participant's state.
func (s *Server) dailyChallengeFor(req dailyRequest, resolve func(string) (int64, error)) (int64, error) {
	if req.ChallengeID != nil {
		return *req.ChallengeID, nil
	}
	return resolve(req.ParticipantID)
}

func (s *Server) handleDailyStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireDaily(w) {
		return
	}
	participantID := r.PathValue("participant")
	st, err := s.Daily.ParticipantStatus(participantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"challengeId":    st.ChallengeID,
		"registered":     st.Registered,
		"submitted":      st.Submitted,
		"previousOpen":   st.PreviousOpen,
		"nextRotationIn": st.TimeUntilRotation.String(),
		"graceRemaining": st.GraceRemaining.String(),
	})
}

type leaderboardEntry struct {
	Rank    int    `json:"rank"`
	Name    string `json:"name"`
	Result  string `json:"result"`
	Comment string `json:"comment,omitempty"`
}

func (s *Server) handleDailyLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "daily challenge requires a database"})
		return
	}
	challengeID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad challenge id"})
		return
	}

	lbRows, err := s.DB.ListLeaderboard(challengeID)
	if err != nil {
		writeError(w, err)
		return
	}
	entries := make([]leaderboardEntry, 0, len(lbRows))
	for _, row := range lbRows {
		entries = append(entries, leaderboardEntry{
			Rank:    row.Rank,
			Name:    row.Name,
			Result:  renderResult(row.Time, row.Level),
			Comment: row.Comment,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"challengeId": challengeID,
		"entries":     entries,
	})
}

// renderResult formats a stored result for display: a finish time, or a death
// with the level when known.
func renderResult(time, level int) string {
	if level == racetime.LevelFinished {
		return racetime.ToString(time)
	}
	if lvl := racetime.LevelString(level); lvl != "" {
		return "death (" + lvl + ")"
	}
	return "death"
}
