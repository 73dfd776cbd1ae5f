package rooms

import (
	"sort"
	"sync"
	"time"

	"racebot/internal/broadcast"
	"racebot/internal/events"
	"racebot/internal/metrics"
	"racebot/internal/race"
	"racebot/internal/racer"
	"racebot/internal/wshub"
)

// RacerPayload is the structured per-racer view carried in notifications.
type RacerPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// RoomPayload accompanies room-level phase change notifications.
type RoomPayload struct {
	RoomCode          string         `json:"roomCode"`
	Phase             string         `json:"phase"`
	CountdownDeadline *time.Time     `json:"countdownDeadline,omitempty"`
	Racers            []RacerPayload `json:"racers,omitempty"`
}

// Room is one race room: the aggregate plus its countdown timer and
// notification plumbing. Every command runs under one room lock (single
// writer per room), so a phase transition and the timer work it implies are
// one atomic step. The timer callback carries the generation it was created
// for and gives up if a cancellation or restart has bumped it since.
type Room struct {
	Code        string
	HostID      string
	Race        *race.Race
	Bus         *events.Bus
	Broadcaster *broadcast.Broadcaster
	Hub         *wshub.Hub
	CreatedAt   time.Time

	countdown time.Duration

	mu           sync.Mutex
	timer        *time.Timer
	countdownGen uint64
	settledAt    time.Time
}

// Join adds a racer to the room.
func (r *Room) Join(id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Race.AddRacer(id, name); err != nil {
		return err
	}
	r.publishRacer(events.KindRacerJoined, id, name)
	return nil
}

// Leave removes a racer. Departure during the countdown cancels it; a
// departure that leaves everyone remaining terminal completes the race.
func (r *Room) Leave(id string) (race.Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, err := r.Race.RemoveRacer(id)
	if err != nil {
		return ch, err
	}
	r.Bus.Publish(events.RoomEvent{Kind: events.KindRacerLeft, RoomCode: r.Code, Payload: RacerPayload{ID: id}})
	if ch.CountdownCancelled {
		r.cancelCountdownLocked()
	}
	if ch.Complete {
		r.completedLocked()
	}
	return ch, nil
}

// Ready marks a racer ready; once everyone is, the countdown starts. The
// phase transition and the timer creation happen under the same lock, and
// any prior timer is stopped before being replaced.
func (r *Room) Ready(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	allReady, err := r.Race.SetReady(id)
	if err != nil {
		return err
	}
	r.publishUpdate(id)
	if !allReady {
		return nil
	}

	deadline := time.Now().Add(r.countdown)
	if err := r.Race.StartCountdown(deadline); err != nil {
		return nil
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.countdownGen++
	gen := r.countdownGen
	r.timer = time.AfterFunc(r.countdown, func() { r.fire(gen) })

	r.Bus.Publish(events.RoomEvent{
		Kind:     events.KindCountdownStarted,
		RoomCode: r.Code,
		Payload:  r.roomPayload(),
	})
	return nil
}

// Unready marks a racer unready, cancelling the countdown if one is running.
func (r *Room) Unready(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancelled, err := r.Race.SetUnready(id)
	if err != nil {
		return err
	}
	r.publishUpdate(id)
	if cancelled {
		r.cancelCountdownLocked()
	}
	return nil
}

// fire is the countdown timer callback. A stale generation means this
// countdown was cancelled or superseded after the timer was armed; Begin
// additionally refuses unless the room is still counting down.
func (r *Room) fire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.countdownGen {
		return
	}
	r.timer = nil
	if err := r.Race.Begin(time.Now()); err != nil {
		return
	}
	metrics.RacesStarted.Inc()
	r.Bus.Publish(events.RoomEvent{
		Kind:     events.KindRaceStarted,
		RoomCode: r.Code,
		Payload:  r.roomPayload(),
	})
}

// Finish records a finish stamped with the race clock.
func (r *Room) Finish(id string) (race.Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminalLocked(id, r.Race.Finish)
}

// Forfeit records a forfeit stamped with the race clock.
func (r *Room) Forfeit(id string) (race.Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminalLocked(id, r.Race.Forfeit)
}

func (r *Room) terminalLocked(id string, op func(string, int) (race.Change, error)) (race.Change, error) {
	elapsed, err := r.Race.ElapsedHundredths(time.Now())
	if err != nil {
		return race.Change{}, err
	}
	ch, err := op(id, elapsed)
	if err != nil {
		return ch, err
	}
	r.publishUpdate(id)
	if ch.Complete {
		r.completedLocked()
	}
	return ch, nil
}

func (r *Room) Unfinish(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Race.Unfinish(id); err != nil {
		return err
	}
	r.publishUpdate(id)
	return nil
}

func (r *Room) Unforfeit(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Race.Unforfeit(id); err != nil {
		return err
	}
	r.publishUpdate(id)
	return nil
}

func (r *Room) SetDeathLevel(id string, level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Race.SetDeathLevel(id, level); err != nil {
		return err
	}
	r.publishUpdate(id)
	return nil
}

func (r *Room) SetIGT(id string, igt int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Race.SetIGT(id, igt); err != nil {
		return err
	}
	r.publishUpdate(id)
	return nil
}

func (r *Room) Comment(id, comment string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Race.AddComment(id, comment); err != nil {
		return err
	}
	r.publishUpdate(id)
	return nil
}

// Cancel aborts the race at any non-terminal phase, bypassing completion
// notification.
func (r *Room) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Race.Cancel(); err != nil {
		return err
	}
	r.stopTimerLocked()
	metrics.RacesCancelled.Inc()
	r.settledAt = time.Now()
	r.Bus.Publish(events.RoomEvent{
		Kind:     events.KindRaceCancelled,
		RoomCode: r.Code,
		Payload:  r.roomPayload(),
	})
	return nil
}

// Close tears down the room's notification plumbing: the bus stops accepting
// events (ending the broadcaster goroutine) and every hub client is
// disconnected. Called by the store on delete and stale sweep.
func (r *Room) Close() {
	r.mu.Lock()
	r.stopTimerLocked()
	if r.settledAt.IsZero() {
		r.settledAt = time.Now()
	}
	r.mu.Unlock()
	r.Bus.Close()
	r.Hub.Close()
}

// Settled reports whether the room has finished its lifecycle and may be
// torn down.
func (r *Room) Settled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.settledAt.IsZero()
}

// Standings returns the racers ranked: finishers by time, then forfeits in
// join order.
func (r *Room) Standings() []racer.Racer {
	snap := r.Race.Snapshot()
	ranked := snap.Racers
	sort.SliceStable(ranked, func(i, j int) bool {
		fi, fj := ranked[i].IsFinished(), ranked[j].IsFinished()
		if fi != fj {
			return fi
		}
		if fi {
			return ranked[i].Time < ranked[j].Time
		}
		return false
	})
	return ranked
}

// Payload is the full room view for status queries, racers in join order.
func (r *Room) Payload() RoomPayload {
	snap := r.Race.Snapshot()
	p := RoomPayload{
		RoomCode: r.Code,
		Phase:    snap.Phase.String(),
		Racers:   racerPayloads(snap.Racers),
	}
	if !snap.CountdownDeadline.IsZero() {
		d := snap.CountdownDeadline
		p.CountdownDeadline = &d
	}
	return p
}

func (r *Room) cancelCountdownLocked() {
	r.stopTimerLocked()
	metrics.CountdownsCancelled.Inc()
	r.Bus.Publish(events.RoomEvent{
		Kind:     events.KindCountdownCancelled,
		RoomCode: r.Code,
		Payload:  r.roomPayload(),
	})
}

func (r *Room) completedLocked() {
	metrics.RacesCompleted.Inc()
	r.settledAt = time.Now()
	payload := r.roomPayload()
	payload.Racers = racerPayloads(r.Standings())
	r.Bus.Publish(events.RoomEvent{
		Kind:     events.KindRaceComplete,
		RoomCode: r.Code,
		Payload:  payload,
	})
}

// stopTimerLocked stops any pending countdown timer and invalidates its
// generation, so a callback already past Stop cannot begin the race.
func (r *Room) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.countdownGen++
}

func (r *Room) publishRacer(kind events.Kind, id, name string) {
	r.Bus.Publish(events.RoomEvent{
		Kind:     kind,
		RoomCode: r.Code,
		Payload:  RacerPayload{ID: id, Name: name, Status: racer.StatusUnready.String()},
	})
}

func (r *Room) publishUpdate(id string) {
	snap := r.Race.Snapshot()
	for _, rc := range snap.Racers {
		if rc.ID != id {
			continue
		}
		p := RacerPayload{
			ID:     rc.ID,
			Name:   rc.Name,
			Status: rc.ShortStatusString(),
			Detail: rc.StatusString(),
		}
		r.Bus.Publish(events.RoomEvent{Kind: events.KindRacerUpdate, RoomCode: r.Code, Payload: p})
		r.Hub.Broadcast(wshub.ServerMessage{
			Type:     string(events.KindRacerUpdate),
			RoomCode: r.Code,
			RacerID:  rc.ID,
			Name:     rc.Name,
			Status:   p.Status,
			Detail:   p.Detail,
		})
		return
	}
}

func (r *Room) roomPayload() RoomPayload {
	snap := r.Race.Snapshot()
	p := RoomPayload{
		RoomCode: r.Code,
		Phase:    snap.Phase.String(),
	}
	if !snap.CountdownDeadline.IsZero() {
		d := snap.CountdownDeadline
		p.CountdownDeadline = &d
	}
	return p
}

func racerPayloads(list []racer.Racer) []RacerPayload {
	payloads := make([]RacerPayload, 0, len(list))
	for _, rc := range list {
		payloads = append(payloads, RacerPayload{
			ID:     rc.ID,
			Name:   rc.Name,
			Status: rc.ShortStatusString(),
			Detail: rc.StatusString(),
		})
	}
	return payloads
}
