package daily

import (
	"errors"
	"testing"
	"time"

	"racebot/internal/racetime"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	registrations map[string]Registration
	submissions   map[int64]map[string]Submission
	leaderboards  map[int64][]LeaderboardRow
	seeds         map[int64]int64
}

func newMemStore() *memStore {
	return &memStore{
		registrations: make(map[string]Registration),
		submissions:   make(map[int64]map[string]Submission),
		leaderboards:  make(map[int64][]LeaderboardRow),
		seeds:         make(map[int64]int64),
	}
}

func (m *memStore) GetRegistration(participantID string) (*Registration, error) {
	if reg, ok := m.registrations[participantID]; ok {
		return &reg, nil
	}
	return nil, nil
}

func (m *memStore) UpsertRegistration(reg Registration) error {
	m.registrations[reg.ParticipantID] = reg
	return nil
}

func (m *memStore) GetSubmission(challengeID int64, participantID string) (*Submission, error) {
	if sub, ok := m.submissions[challengeID][participantID]; ok {
		return &sub, nil
	}
	return nil, nil
}

func (m *memStore) UpsertSubmission(sub Submission) error {
	if m.submissions[sub.ChallengeID] == nil {
		m.submissions[sub.ChallengeID] = make(map[string]Submission)
	}
	m.submissions[sub.ChallengeID][sub.ParticipantID] = sub
	return nil
}

func (m *memStore) DeleteSubmission(challengeID int64, participantID string) error {
	delete(m.submissions[challengeID], participantID)
	return nil
}

func (m *memStore) ListSubmissions(challengeID int64) ([]Submission, error) {
	subs := make([]Submission, 0, len(m.submissions[challengeID]))
	for _, sub := range m.submissions[challengeID] {
		subs = append(subs, sub)
	}
	return subs, nil
}

func (m *memStore) ReplaceLeaderboard(challengeID int64, rows []LeaderboardRow) error {
	m.leaderboards[challengeID] = rows
	return nil
}

func (m *memStore) GetSeed(challengeID int64) (int64, bool, error) {
	seed, ok := m.seeds[challengeID]
	return seed, ok, nil
}

func (m *memStore) SetSeed(challengeID int64, seed int64) error {
	m.seeds[challengeID] = seed
	return nil
}

// countingSeeds counts how often the generator is consulted.
type countingSeeds struct {
	calls int
	next  int64
}

func (c *countingSeeds) NewSeed() (int64, error) {
	c.calls++
	c.next++
	return c.next, nil
}

// fakeClock starts at epoch + offset and can be moved.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) Set(t time.Time)         { c.t = t }

var epoch = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

func newTestScheduler(clock *fakeClock) (*Scheduler, *memStore, *countingSeeds) {
	store := newMemStore()
	seeds := &countingSeeds{}
	s := New(store, seeds, Config{
		Epoch:    epoch,
		Rotation: 24 * time.Hour,
		Grace:    time.Hour,
		Now:      clock.Now,
	})
	return s, store, seeds
}

func TestCurrentChallengeID(t *testing.T) {
	clock := &fakeClock{t: epoch}
	s, _, _ := newTestScheduler(clock)

	if got := s.CurrentChallengeID(); got != 0 {
		t.Errorf("id at epoch = %d, want 0", got)
	}

	// Pure: two calls at the same instant agree.
	if s.CurrentChallengeID() != s.CurrentChallengeID() {
		t.Error("CurrentChallengeID should be a pure function of the clock")
	}

	clock.Set(epoch.Add(5*24*time.Hour + 13*time.Hour))
	if got := s.CurrentChallengeID(); got != 5 {
		t.Errorf("id on day 5 = %d, want 5", got)
	}

	// Strictly increasing with time.
	prev := s.CurrentChallengeID()
	for i := 0; i < 10; i++ {
		clock.Advance(24 * time.Hour)
		cur := s.CurrentChallengeID()
		if cur != prev+1 {
			t.Fatalf("id advanced from %d to %d, want +1 per rotation", prev, cur)
		}
		prev = cur
	}
}

func TestIsOpen_GraceBoundaries(t *testing.T) {
	clock := &fakeClock{}
	s, _, _ := newTestScheduler(clock)

	day5 := epoch.Add(5 * 24 * time.Hour)

	// One second before rotation: 4 is current, 3 closed.
	clock.Set(day5.Add(-time.Second))
	if !s.IsOpen(4) {
		t.Error("current challenge should be open before rotation")
	}
	if s.IsOpen(3) {
		t.Error("challenge 3 should be closed before day 5")
	}

	// One second after rotation: 5 current, 4 in grace, 3 closed.
	clock.Set(day5.Add(time.Second))
	if !s.IsOpen(5) {
		t.Error("current challenge should be open")
	}
	if !s.IsOpen(4) {
		t.Error("previous challenge should be open during the grace window")
	}
	if s.IsOpen(3) {
		t.Error("challenges older than previous are never open")
	}

	// At grace expiry the previous challenge closes.
	clock.Set(day5.Add(time.Hour))
	if s.IsOpen(4) {
		t.Error("previous challenge should close at grace expiry")
	}
	clock.Set(day5.Add(time.Hour - time.Second))
	if !s.IsOpen(4) {
		t.Error("previous challenge should still be open just inside the grace window")
	}
}

func TestSeed_MemoizedOncePerChallenge(t *testing.T) {
	clock := &fakeClock{t: epoch}
	s, _, seeds := newTestScheduler(clock)

	first, err := s.Seed(0)
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.Seed(0)
	if err != nil {
		t.Fatal(err)
	}
	if first != again {
		t.Errorf("seed changed between calls: %d vs %d", first, again)
	}
	if seeds.calls != 1 {
		t.Errorf("seed source called %d times, want 1", seeds.calls)
	}

	if _, err := s.Seed(1); err != nil {
		t.Fatal(err)
	}
	if seeds.calls != 2 {
		t.Errorf("seed source called %d times for two challenges, want 2", seeds.calls)
	}
}

func TestRegister(t *testing.T) {
	clock := &fakeClock{t: epoch.Add(5 * 24 * time.Hour)}
	s, store, seeds := newTestScheduler(clock)

	id, seed, err := s.Register("alice", false)
	if err != nil {
		t.Fatal(err)
	}
	if id != 5 {
		t.Errorf("registered challenge = %d, want 5", id)
	}

	// Idempotent re-registration: same challenge, same seed, no new draw.
	id2, seed2, err := s.Register("alice", false)
	if err != nil {
		t.Fatal(err)
	}
	if id2 != id || seed2 != seed {
		t.Error("re-registration should return the same challenge and seed")
	}
	if seeds.calls != 1 {
		t.Errorf("seed drawn %d times, want 1", seeds.calls)
	}

	// A different participant the same day gets the identical seed.
	_, bobSeed, err := s.Register("bob", false)
	if err != nil {
		t.Fatal(err)
	}
	if bobSeed != seed {
		t.Error("all participants of one challenge must get the same seed")
	}

	reg, _ := store.GetRegistration("alice")
	if reg.ChallengeID != 5 {
		t.Errorf("stored registration = %d, want 5", reg.ChallengeID)
	}
}

func TestRegister_PendingPrevious(t *testing.T) {
	clock := &fakeClock{t: epoch.Add(4 * 24 * time.Hour)}
	s, _, _ := newTestScheduler(clock)

	if _, _, err := s.Register("alice", false); err != nil {
		t.Fatal(err)
	}

	// Day rolls over; alice never submitted for 4 and it is still in grace.
	clock.Advance(24*time.Hour + time.Minute)
	if _, _, err := s.Register("alice", false); !errors.Is(err, ErrPendingPrevious) {
		t.Errorf("error = %v, want ErrPendingPrevious", err)
	}

	// Override forfeits yesterday and registers for today.
	id, _, err := s.Register("alice", true)
	if err != nil {
		t.Fatal(err)
	}
	if id != 5 {
		t.Errorf("registered challenge = %d, want 5", id)
	}

	// After the grace window there is nothing to warn about.
	clock.Advance(2 * time.Hour)
	if _, _, err := s.Register("bob", false); err != nil {
		t.Errorf("register after grace should succeed: %v", err)
	}
}

func TestSubmit(t *testing.T) {
	clock := &fakeClock{t: epoch.Add(5 * 24 * time.Hour)}
	s, store, _ := newTestScheduler(clock)

	res, err := ParseResult([]string{"12:34.56"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Submit(5, "alice", "Alice", res, false); err != nil {
		t.Fatal(err)
	}

	// Duplicate without overwrite is rejected and leaves the row unchanged.
	res2, _ := ParseResult([]string{"1:00.00"})
	if err := s.Submit(5, "alice", "Alice", res2, false); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("error = %v, want ErrAlreadySubmitted", err)
	}
	sub, _ := store.GetSubmission(5, "alice")
	if sub.Time != 74456 {
		t.Errorf("stored time = %d, want original 74456", sub.Time)
	}

	// Overwrite replaces the result.
	if err := s.Submit(5, "alice", "Alice", res2, true); err != nil {
		t.Fatal(err)
	}
	sub, _ = store.GetSubmission(5, "alice")
	if sub.Time != 6000 {
		t.Errorf("stored time = %d, want 6000", sub.Time)
	}

	// Closed window is a distinct rejection.
	if err := s.Submit(3, "alice", "Alice", res, false); !errors.Is(err, ErrClosed) {
		t.Errorf("error = %v, want ErrClosed", err)
	}
}

func TestSubmit_GraceWindowScenario(t *testing.T) {
	clock := &fakeClock{t: epoch.Add(5 * 24 * time.Hour)}
	s, _, _ := newTestScheduler(clock)

	// Registered for challenge 5, did not submit; day rolls to 6.
	if _, _, err := s.Register("alice", false); err != nil {
		t.Fatal(err)
	}
	clock.Advance(24*time.Hour + 30*time.Minute)
	if s.CurrentChallengeID() != 6 {
		t.Fatalf("challenge = %d, want 6", s.CurrentChallengeID())
	}

	res, _ := ParseResult([]string{"death", "4-4"})
	if err := s.Submit(5, "alice", "Alice", res, false); err != nil {
		t.Errorf("submit during grace window should succeed: %v", err)
	}

	// After grace expiry the same submission is refused.
	if err := s.Unsubmit(5, "alice"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	if err := s.Submit(5, "alice", "Alice", res, false); !errors.Is(err, ErrClosed) {
		t.Errorf("error = %v, want ErrClosed after grace expiry", err)
	}
}

func TestUnsubmit(t *testing.T) {
	clock := &fakeClock{t: epoch.Add(5 * 24 * time.Hour)}
	s, store, _ := newTestScheduler(clock)

	if err := s.Unsubmit(5, "alice"); !errors.Is(err, ErrNoSubmission) {
		t.Errorf("error = %v, want ErrNoSubmission", err)
	}

	res, _ := ParseResult([]string{"1:30.00"})
	if err := s.Submit(5, "alice", "Alice", res, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Unsubmit(5, "alice"); err != nil {
		t.Fatal(err)
	}
	if sub, _ := store.GetSubmission(5, "alice"); sub != nil {
		t.Error("submission should be deleted")
	}
	if len(store.leaderboards[5]) != 0 {
		t.Error("leaderboard should be empty after the only submission is retracted")
	}
}

func TestLeaderboard_OrderAndIdempotence(t *testing.T) {
	clock := &fakeClock{t: epoch.Add(5 * 24 * time.Hour)}
	s, store, _ := newTestScheduler(clock)

	finish := func(t string) Result {
		r, _ := ParseResult([]string{t})
		return r
	}
	death := func(lvl ...string) Result {
		r, _ := ParseResult(append([]string{"death"}, lvl...))
		return r
	}

	s.Submit(5, "carol", "Carol", death("4-4"), false)
	s.Submit(5, "alice", "Alice", finish("2:00.00"), false)
	s.Submit(5, "bob", "Bob", finish("1:30.00"), false)
	s.Submit(5, "dave", "Dave", death("1-2"), false)
	s.Submit(5, "erin", "Erin", death(), false)

	rows := store.leaderboards[5]
	want := []string{"bob", "alice", "carol", "dave", "erin"}
	if len(rows) != len(want) {
		t.Fatalf("leaderboard has %d rows, want %d", len(rows), len(want))
	}
	for i, id := range want {
		if rows[i].ParticipantID != id {
			t.Errorf("rank %d = %s, want %s", i+1, rows[i].ParticipantID, id)
		}
		if rows[i].Rank != i+1 {
			t.Errorf("row %d rank = %d", i, rows[i].Rank)
		}
	}

	// Resubmitting the identical result with overwrite leaves the
	// leaderboard unchanged; no duplicate rows accumulate.
	if err := s.Submit(5, "bob", "Bob", finish("1:30.00"), true); err != nil {
		t.Fatal(err)
	}
	again := store.leaderboards[5]
	if len(again) != len(rows) {
		t.Fatalf("leaderboard grew to %d rows after idempotent resubmit", len(again))
	}
	for i := range rows {
		if again[i] != rows[i] {
			t.Errorf("row %d changed after idempotent resubmit", i)
		}
	}

	if err := s.UpdateLeaderboard(5); err != nil {
		t.Fatal(err)
	}
	if len(store.leaderboards[5]) != len(rows) {
		t.Error("explicit recompute should be idempotent")
	}
}

func TestParseResult(t *testing.T) {
	res, err := ParseResult([]string{"12:34.56"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Time != 74456 || res.Level != racetime.LevelFinished {
		t.Errorf("finish result = %+v", res)
	}

	res, err = ParseResult([]string{"death"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Level != racetime.LevelUnknownDeath || res.Time != racetime.FieldUnset {
		t.Errorf("death result = %+v", res)
	}

	res, err = ParseResult([]string{"death", "4-4"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Level != 19 {
		t.Errorf("death level = %d, want 19", res.Level)
	}
}

func TestParseResult_ParseErrorsAreDistinct(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"garbage"},
		{"death", "zone4"},
		{"death", "4-4", "extra"},
		{"12:34.56", "extra"},
	} {
		_, err := ParseResult(args)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("ParseResult(%v) error = %v, want *ParseError", args, err)
		}
		if errors.Is(err, ErrClosed) || errors.Is(err, ErrAlreadySubmitted) {
			t.Errorf("parse failure must not be a window/precondition error")
		}
	}
}

func TestParticipantStatus(t *testing.T) {
	clock := &fakeClock{t: epoch.Add(4 * 24 * time.Hour)}
	s, _, _ := newTestScheduler(clock)

	st, err := s.ParticipantStatus("alice")
	if err != nil {
		t.Fatal(err)
	}
	if st.Registered || st.Submitted || st.PreviousOpen {
		t.Errorf("unregistered status = %+v", st)
	}

	s.Register("alice", false)
	st, _ = s.ParticipantStatus("alice")
	if !st.Registered || st.Submitted {
		t.Errorf("registered status = %+v", st)
	}

	res, _ := ParseResult([]string{"1:00.00"})
	s.Submit(4, "alice", "Alice", res, false)
	st, _ = s.ParticipantStatus("alice")
	if !st.Submitted {
		t.Errorf("submitted status = %+v", st)
	}

	// bob registered yesterday, never submitted, new day within grace.
	s.Register("bob", false)
	s.Unsubmit(4, "alice")
	clock.Advance(24*time.Hour + time.Minute)
	st, _ = s.ParticipantStatus("bob")
	if st.Registered {
		t.Error("bob is not registered for the current challenge")
	}
	if !st.PreviousOpen {
		t.Error("bob should be able to submit for yesterday during grace")
	}
}
