package race

import (
	"errors"
	"sync"
	"time"

	"racebot/internal/racer"
)

// Phase is the room-wide lifecycle state, derived from the racer set.
type Phase int

const (
	PhaseOpen Phase = iota + 1
	PhaseCountdown
	PhaseRacing
	PhaseComplete
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseCountdown:
		return "countdown"
	case PhaseRacing:
		return "racing"
	case PhaseComplete:
		return "complete"
	case PhaseCancelled:
		return "cancelled"
	}
	return "unknown"
}

var (
	ErrNotOpen       = errors.New("race is no longer open to joins")
	ErrAlreadyJoined = errors.New("racer already joined")
	ErrRacerNotFound = errors.New("racer not found")
	ErrBadTransition = errors.New("racer is not in a valid state for that")
	ErrNotAllReady   = errors.New("not all racers are ready")
	ErrWrongPhase    = errors.New("race is not in a valid phase for that")
)

// Change reports room-level consequences of a racer-level operation.
type Change struct {
	CountdownCancelled bool
	Complete           bool
}

// Race combines the racer set into room-wide phase transitions. All methods
// take the aggregate lock, so the phase field doubles as the authoritative
// flag that decides countdown-cancel vs. countdown-fire races.
type Race struct {
	mu                sync.Mutex
	phase             Phase
	racers            map[string]*racer.Racer
	order             []string
	countdownDeadline time.Time
	startedAt         time.Time
}

func New() *Race {
	return &Race{
		phase:  PhaseOpen,
		racers: make(map[string]*racer.Racer),
	}
}

// AddRacer creates an unready racer. Racers may not join once the countdown
// has started.
func (r *Race) AddRacer(id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseOpen {
		return ErrNotOpen
	}
	if _, exists := r.racers[id]; exists {
		return ErrAlreadyJoined
	}
	r.racers[id] = racer.New(id, name)
	r.order = append(r.order, id)
	return nil
}

// RemoveRacer drops a racer from the room. A departure during the countdown
// cancels it; a departure while racing can complete the race if everyone
// remaining is done.
func (r *Race) RemoveRacer(id string) (Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.racers[id]; !exists {
		return Change{}, ErrRacerNotFound
	}
	delete(r.racers, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	var ch Change
	if r.phase == PhaseCountdown {
		r.phase = PhaseOpen
		r.countdownDeadline = time.Time{}
		ch.CountdownCancelled = true
	}
	if r.phase == PhaseRacing && r.allDoneLocked() {
		r.phase = PhaseComplete
		ch.Complete = true
	}
	return ch, nil
}

// SetReady marks a racer ready and reports whether the whole room is now
// ready, which is the coordinator's cue to start the countdown.
func (r *Race) SetReady(id string) (allReady bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, exists := r.racers[id]
	if !exists {
		return false, ErrRacerNotFound
	}
	if !rc.Ready() {
		return false, ErrBadTransition
	}
	return r.allReadyLocked(), nil
}

// SetUnready marks a racer unready. A race cannot start with an unready
// participant, so during the countdown this cancels it.
func (r *Race) SetUnready(id string) (countdownCancelled bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, exists := r.racers[id]
	if !exists {
		return false, ErrRacerNotFound
	}
	if !rc.Unready() {
		return false, ErrBadTransition
	}
	if r.phase == PhaseCountdown {
		r.phase = PhaseOpen
		r.countdownDeadline = time.Time{}
		return true, nil
	}
	return false, nil
}

func (r *Race) AllReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allReadyLocked()
}

func (r *Race) allReadyLocked() bool {
	if len(r.racers) == 0 {
		return false
	}
	for _, rc := range r.racers {
		if !rc.IsReady() {
			return false
		}
	}
	return true
}

func (r *Race) allDoneLocked() bool {
	if len(r.racers) == 0 {
		return true
	}
	for _, rc := range r.racers {
		if !rc.IsDoneRacing() {
			return false
		}
	}
	return true
}

// StartCountdown moves open -> countdown once everyone is ready.
func (r *Race) StartCountdown(deadline time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseOpen {
		return ErrWrongPhase
	}
	if !r.allReadyLocked() {
		return ErrNotAllReady
	}
	r.phase = PhaseCountdown
	r.countdownDeadline = deadline
	return nil
}

// CancelCountdown moves countdown -> open.
func (r *Race) CancelCountdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseCountdown {
		return ErrWrongPhase
	}
	r.phase = PhaseOpen
	r.countdownDeadline = time.Time{}
	return nil
}

// Begin moves countdown -> racing and starts every racer. Called by the
// countdown timer; returns ErrWrongPhase if a cancellation won the race.
func (r *Race) Begin(start time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseCountdown {
		return ErrWrongPhase
	}
	r.phase = PhaseRacing
	r.countdownDeadline = time.Time{}
	r.startedAt = start
	for _, rc := range r.racers {
		rc.BeginRace()
	}
	return nil
}

// Cancel aborts the race from any non-terminal phase.
func (r *Race) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhaseComplete || r.phase == PhaseCancelled {
		return ErrWrongPhase
	}
	r.phase = PhaseCancelled
	r.countdownDeadline = time.Time{}
	return nil
}

// Finish records a racer's finish and reports whether the room is complete.
func (r *Race) Finish(id string, time int) (Change, error) {
	return r.terminal(id, func(rc *racer.Racer) bool { return rc.Finish(time) })
}

// Forfeit records a racer's forfeit and reports whether the room is complete.
func (r *Race) Forfeit(id string, time int) (Change, error) {
	return r.terminal(id, func(rc *racer.Racer) bool { return rc.Forfeit(time) })
}

func (r *Race) terminal(id string, op func(*racer.Racer) bool) (Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, exists := r.racers[id]
	if !exists {
		return Change{}, ErrRacerNotFound
	}
	if r.phase != PhaseRacing {
		return Change{}, ErrWrongPhase
	}
	if !op(rc) {
		return Change{}, ErrBadTransition
	}
	if r.allDoneLocked() {
		r.phase = PhaseComplete
		return Change{Complete: true}, nil
	}
	return Change{}, nil
}

// Unfinish reverts a racer's finish. Only available while the room is still
// racing; once complete, the race is settled.
func (r *Race) Unfinish(id string) error {
	return r.undo(id, (*racer.Racer).Unfinish)
}

// Unforfeit reverts a racer's forfeit under the same rules as Unfinish.
func (r *Race) Unforfeit(id string) error {
	return r.undo(id, (*racer.Racer).Unforfeit)
}

func (r *Race) undo(id string, op func(*racer.Racer) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, exists := r.racers[id]
	if !exists {
		return ErrRacerNotFound
	}
	if r.phase != PhaseRacing {
		return ErrWrongPhase
	}
	if !op(rc) {
		return ErrBadTransition
	}
	return nil
}

// SetDeathLevel annotates a forfeited racer with the level of death.
func (r *Race) SetDeathLevel(id string, level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, exists := r.racers[id]
	if !exists {
		return ErrRacerNotFound
	}
	if !rc.SetDeathLevel(level) {
		return ErrBadTransition
	}
	return nil
}

// SetIGT records a racer's in-game time.
func (r *Race) SetIGT(id string, igt int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, exists := r.racers[id]
	if !exists {
		return ErrRacerNotFound
	}
	if !rc.SetIGT(igt) {
		return ErrBadTransition
	}
	return nil
}

// AddComment attaches a comment to a racer, valid in any phase.
func (r *Race) AddComment(id, comment string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, exists := r.racers[id]
	if !exists {
		return ErrRacerNotFound
	}
	rc.AddComment(comment)
	return nil
}

func (r *Race) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// ElapsedHundredths is the race clock reading at now, for stamping finishes
// and forfeits.
func (r *Race) ElapsedHundredths(now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startedAt.IsZero() {
		return 0, ErrWrongPhase
	}
	return int(now.Sub(r.startedAt).Milliseconds() / 10), nil
}

// Snapshot is a consistent copy of the room for display; racers appear in
// join order.
type Snapshot struct {
	Phase             Phase
	CountdownDeadline time.Time
	StartedAt         time.Time
	Racers            []racer.Racer
}

func (r *Race) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{
		Phase:             r.phase,
		CountdownDeadline: r.countdownDeadline,
		StartedAt:         r.startedAt,
		Racers:            make([]racer.Racer, 0, len(r.order)),
	}
	for _, id := range r.order {
		snap.Racers = append(snap.Racers, *r.racers[id])
	}
	return snap
}
