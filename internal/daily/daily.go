// Package daily manages the rotating single-attempt challenge: a
// time-derived challenge id, a registration/submission window with a grace
// period for the previous day, and an idempotent leaderboard.
package daily

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"racebot/internal/racetime"
)

var (
	ErrClosed           = errors.New("challenge window is closed")
	ErrAlreadySubmitted = errors.New("already submitted for this challenge")
	ErrNoSubmission     = errors.New("no submission to retract")
	ErrNotRegistered    = errors.New("not registered for a challenge")
	ErrPendingPrevious  = errors.New("previous challenge is still open and unsubmitted")
)

// ParseError marks malformed submission text, distinct from window or
// precondition rejections so the caller can answer with format guidance.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse submission %q: %s", e.Input, e.Reason)
}

// Registration records which challenge a participant drew the seed for.
// Only the latest registration gates submission.
type Registration struct {
	ParticipantID string
	ChallengeID   int64
	RegisteredAt  time.Time
}

// Submission is one participant's result for one challenge. Time and IGT are
// hundredths of a second or unset; Level carries the death/finished sentinel.
type Submission struct {
	ChallengeID   int64
	ParticipantID string
	Name          string
	Time          int
	IGT           int
	Level         int
	Comment       string
	SubmittedAt   time.Time
}

// LeaderboardRow is one derived standing, recomputed from the submission set.
type LeaderboardRow struct {
	ChallengeID   int64
	Rank          int
	ParticipantID string
	Name          string
	Time          int
	Level         int
	Comment       string
}

// Store is the persistence collaborator. Submission rows are unique per
// (challengeID, participantID); GetRegistration returns the latest
// registration or nil.
type Store interface {
	GetRegistration(participantID string) (*Registration, error)
	UpsertRegistration(reg Registration) error
	GetSubmission(challengeID int64, participantID string) (*Submission, error)
	UpsertSubmission(sub Submission) error
	DeleteSubmission(challengeID int64, participantID string) error
	ListSubmissions(challengeID int64) ([]Submission, error)
	ReplaceLeaderboard(challengeID int64, rows []LeaderboardRow) error
	GetSeed(challengeID int64) (int64, bool, error)
	SetSeed(challengeID int64, seed int64) error
}

// SeedSource generates a fresh seed; called once per challenge id.
type SeedSource interface {
	NewSeed() (int64, error)
}

type Config struct {
	Epoch    time.Time
	Rotation time.Duration
	Grace    time.Duration
	Now      func() time.Time // nil means time.Now
}

// Scheduler computes challenge state from the clock; nothing advances a
// stored counter, so two calls at the same instant always agree.
type Scheduler struct {
	mu       sync.Mutex
	store    Store
	seeds    SeedSource
	epoch    time.Time
	rotation time.Duration
	grace    time.Duration
	now      func() time.Time
}

func New(store Store, seeds SeedSource, cfg Config) *Scheduler {
	s := &Scheduler{
		store:    store,
		seeds:    seeds,
		epoch:    cfg.Epoch,
		rotation: cfg.Rotation,
		grace:    cfg.Grace,
		now:      cfg.Now,
	}
	if s.rotation <= 0 {
		s.rotation = 24 * time.Hour
	}
	if s.grace <= 0 {
		s.grace = time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CurrentChallengeID is a pure function of wall-clock time.
func (s *Scheduler) CurrentChallengeID() int64 {
	return int64(s.now().Sub(s.epoch) / s.rotation)
}

// OpensAt is the instant the given challenge rotation began.
func (s *Scheduler) OpensAt(challengeID int64) time.Time {
	return s.epoch.Add(time.Duration(challengeID) * s.rotation)
}

// IsOpen reports whether the challenge still accepts submissions: the
// current challenge always, the previous one only within the grace period
// after rotation, anything older never.
func (s *Scheduler) IsOpen(challengeID int64) bool {
	cur := s.CurrentChallengeID()
	if challengeID == cur {
		return true
	}
	if challengeID == cur-1 {
		return s.now().Before(s.OpensAt(cur).Add(s.grace))
	}
	return false
}

// TimeUntilRotation is the time left before the next challenge opens.
func (s *Scheduler) TimeUntilRotation() time.Duration {
	return s.OpensAt(s.CurrentChallengeID() + 1).Sub(s.now())
}

// GraceRemaining is the time the previous challenge stays submittable, zero
// once the grace window has passed.
func (s *Scheduler) GraceRemaining() time.Duration {
	left := s.OpensAt(s.CurrentChallengeID()).Add(s.grace).Sub(s.now())
	if left < 0 {
		return 0
	}
	return left
}

// Seed returns the challenge's seed, drawing it from the seed source exactly
// once and memoizing through the store so every participant sees the same
// value.
func (s *Scheduler) Seed(challengeID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seedLocked(challengeID)
}

func (s *Scheduler) seedLocked(challengeID int64) (int64, error) {
	seed, found, err := s.store.GetSeed(challengeID)
	if err != nil {
		return 0, fmt.Errorf("loading seed: %w", err)
	}
	if found {
		return seed, nil
	}
	seed, err = s.seeds.NewSeed()
	if err != nil {
		return 0, fmt.Errorf("drawing seed: %w", err)
	}
	if err := s.store.SetSeed(challengeID, seed); err != nil {
		return 0, fmt.Errorf("storing seed: %w", err)
	}
	return seed, nil
}

// Register records the participant against the current challenge and returns
// its id and seed. Re-registering for the same challenge is a no-op. If the
// previous challenge is still in its grace window with no submission from
// this participant, registration is refused with ErrPendingPrevious unless
// override is set, since drawing today's seed forfeits yesterday's run.
func (s *Scheduler) Register(participantID string, override bool) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.CurrentChallengeID()
	reg, err := s.store.GetRegistration(participantID)
	if err != nil {
		return 0, 0, fmt.Errorf("loading registration: %w", err)
	}
	if reg != nil && reg.ChallengeID == cur {
		seed, err := s.seedLocked(cur)
		return cur, seed, err
	}

	if !override && reg != nil && reg.ChallengeID == cur-1 && s.IsOpen(cur-1) {
		sub, err := s.store.GetSubmission(cur-1, participantID)
		if err != nil {
			return 0, 0, fmt.Errorf("loading previous submission: %w", err)
		}
		if sub == nil {
			return 0, 0, ErrPendingPrevious
		}
	}

	if err := s.store.UpsertRegistration(Registration{
		ParticipantID: participantID,
		ChallengeID:   cur,
		RegisteredAt:  s.now(),
	}); err != nil {
		return 0, 0, fmt.Errorf("storing registration: %w", err)
	}
	seed, err := s.seedLocked(cur)
	return cur, seed, err
}

// RegisteredChallenge returns the challenge the participant most recently
// registered for.
func (s *Scheduler) RegisteredChallenge(participantID string) (int64, error) {
	reg, err := s.store.GetRegistration(participantID)
	if err != nil {
		return 0, fmt.Errorf("loading registration: %w", err)
	}
	if reg == nil {
		return 0, ErrNotRegistered
	}
	return reg.ChallengeID, nil
}

// SubmittedChallenge returns the most recent still-open challenge the
// participant has a submission for.
func (s *Scheduler) SubmittedChallenge(participantID string) (int64, error) {
	cur := s.CurrentChallengeID()
	for _, id := range []int64{cur, cur - 1} {
		sub, err := s.store.GetSubmission(id, participantID)
		if err != nil {
			return 0, fmt.Errorf("loading submission: %w", err)
		}
		if sub != nil {
			return id, nil
		}
	}
	return 0, ErrNoSubmission
}

// Result is a parsed submission: a finish time, or a death with an optional
// level.
type Result struct {
	Time    int
	IGT     int
	Level   int
	Comment string
}

// ParseResult reads either a finish time in [m]:ss.hh form or "death",
// optionally followed by a zone-floor level such as 4-4.
func ParseResult(args []string) (Result, error) {
	res := Result{Time: racetime.FieldUnset, IGT: racetime.FieldUnset, Level: racetime.FieldUnset}
	if len(args) == 0 {
		return res, &ParseError{Input: "", Reason: "empty submission"}
	}

	if args[0] == "death" {
		res.Level = racetime.LevelUnknownDeath
		if len(args) > 2 {
			return res, &ParseError{Input: fmt.Sprint(args), Reason: "too many fields"}
		}
		if len(args) == 2 {
			level, err := racetime.ParseLevel(args[1])
			if err != nil {
				return res, &ParseError{Input: args[1], Reason: "bad level identifier"}
			}
			res.Level = level
		}
		return res, nil
	}

	if len(args) != 1 {
		return res, &ParseError{Input: fmt.Sprint(args), Reason: "too many fields"}
	}
	t, err := racetime.Parse(args[0])
	if err != nil {
		return res, &ParseError{Input: args[0], Reason: "bad time, use [m]:ss.hh"}
	}
	res.Time = t
	res.Level = racetime.LevelFinished
	return res, nil
}

// Submit stores the participant's result for the challenge and recomputes
// the leaderboard. A closed window fails with ErrClosed; an existing
// submission fails with ErrAlreadySubmitted unless overwrite is set.
func (s *Scheduler) Submit(challengeID int64, participantID, name string, res Result, overwrite bool) error {
	if !s.IsOpen(challengeID) {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.GetSubmission(challengeID, participantID)
	if err != nil {
		return fmt.Errorf("loading submission: %w", err)
	}
	if existing != nil && !overwrite {
		return ErrAlreadySubmitted
	}

	if err := s.store.UpsertSubmission(Submission{
		ChallengeID:   challengeID,
		ParticipantID: participantID,
		Name:          name,
		Time:          res.Time,
		IGT:           res.IGT,
		Level:         res.Level,
		Comment:       res.Comment,
		SubmittedAt:   s.now(),
	}); err != nil {
		return fmt.Errorf("storing submission: %w", err)
	}
	return s.updateLeaderboardLocked(challengeID)
}

// Unsubmit deletes the participant's submission while the window is open and
// recomputes the leaderboard.
func (s *Scheduler) Unsubmit(challengeID int64, participantID string) error {
	if !s.IsOpen(challengeID) {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.GetSubmission(challengeID, participantID)
	if err != nil {
		return fmt.Errorf("loading submission: %w", err)
	}
	if existing == nil {
		return ErrNoSubmission
	}
	if err := s.store.DeleteSubmission(challengeID, participantID); err != nil {
		return fmt.Errorf("deleting submission: %w", err)
	}
	return s.updateLeaderboardLocked(challengeID)
}

// UpdateLeaderboard rebuilds the challenge's leaderboard from the current
// submission set. Idempotent; safe to re-run after a collaborator failure.
func (s *Scheduler) UpdateLeaderboard(challengeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLeaderboardLocked(challengeID)
}

func (s *Scheduler) updateLeaderboardLocked(challengeID int64) error {
	subs, err := s.store.ListSubmissions(challengeID)
	if err != nil {
		return fmt.Errorf("listing submissions: %w", err)
	}

	// Finishers first by time, then deaths by depth; earlier submission
	// breaks ties.
	sort.SliceStable(subs, func(i, j int) bool {
		fi, fj := subs[i].Level == racetime.LevelFinished, subs[j].Level == racetime.LevelFinished
		if fi != fj {
			return fi
		}
		if fi {
			return subs[i].Time < subs[j].Time
		}
		return subs[i].Level > subs[j].Level
	})

	rows := make([]LeaderboardRow, 0, len(subs))
	for i, sub := range subs {
		rows = append(rows, LeaderboardRow{
			ChallengeID:   challengeID,
			Rank:          i + 1,
			ParticipantID: sub.ParticipantID,
			Name:          sub.Name,
			Time:          sub.Time,
			Level:         sub.Level,
			Comment:       sub.Comment,
		})
	}
	if err := s.store.ReplaceLeaderboard(challengeID, rows); err != nil {
		return fmt.Errorf("replacing leaderboard: %w", err)
	}
	return nil
}

// Status summarizes one participant's standing for the status command.
type Status struct {
	ChallengeID       int64
	Registered        bool
	Submitted         bool
	PreviousOpen      bool // registered for the previous challenge, which is still submittable
	TimeUntilRotation time.Duration
	GraceRemaining    time.Duration
}

func (s *Scheduler) ParticipantStatus(participantID string) (Status, error) {
	cur := s.CurrentChallengeID()
	st := Status{
		ChallengeID:       cur,
		TimeUntilRotation: s.TimeUntilRotation(),
		GraceRemaining:    s.GraceRemaining(),
	}

	reg, err := s.store.GetRegistration(participantID)
	if err != nil {
		return st, fmt.Errorf("loading registration: %w", err)
	}
	if reg == nil {
		return st, nil
	}

	switch reg.ChallengeID {
	case cur:
		st.Registered = true
		sub, err := s.store.GetSubmission(cur, participantID)
		if err != nil {
			return st, fmt.Errorf("loading submission: %w", err)
		}
		st.Submitted = sub != nil
	case cur - 1:
		if s.IsOpen(cur - 1) {
			sub, err := s.store.GetSubmission(cur-1, participantID)
			if err != nil {
				return st, fmt.Errorf("loading submission: %w", err)
			}
			st.PreviousOpen = sub == nil
		}
	}
	return st, nil
}
