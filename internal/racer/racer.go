package racer

import (
	"racebot/internal/racetime"
)

// Status is the per-racer phase within a race.
//
// Allowed transitions:
//
//	unready <--> ready      (Ready / Unready)
//	ready    --> racing     (BeginRace)
//	racing  <--> forfeit    (Forfeit / Unforfeit)
//	racing  <--> finished   (Finish / Unfinish)
//	finished --> forfeit    (Forfeit, correcting an erroneous finish)
//	forfeit  --> finished   (Finish, correcting an erroneous forfeit)
type Status int

const (
	StatusUnready Status = iota + 1
	StatusReady
	StatusRacing
	StatusForfeit
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusUnready:
		return "Not ready."
	case StatusReady:
		return "Ready!"
	case StatusRacing:
		return "Racing!"
	case StatusForfeit:
		return "Forfeit!"
	case StatusFinished:
		return "Finished"
	}
	return "Unknown"
}

// Racer holds one participant's ephemeral state for a single race.
// Time and IGT are in hundredths of a second. It is not safe for concurrent
// use; the owning race aggregate serializes access.
type Racer struct {
	ID      string
	Name    string
	status  Status
	Time    int
	IGT     int
	Level   int
	Comment string
}

func New(id, name string) *Racer {
	return &Racer{
		ID:     id,
		Name:   name,
		status: StatusUnready,
		Time:   racetime.FieldUnset,
		IGT:    racetime.FieldUnset,
		Level:  racetime.FieldUnset,
	}
}

func (r *Racer) Status() Status   { return r.status }
func (r *Racer) IsReady() bool    { return r.status == StatusReady }
func (r *Racer) HasBegun() bool   { return r.status > StatusReady }
func (r *Racer) IsRacing() bool   { return r.status == StatusRacing }
func (r *Racer) IsForfeit() bool  { return r.status == StatusForfeit }
func (r *Racer) IsFinished() bool { return r.status == StatusFinished }

// IsDoneRacing reports whether the racer has reached a terminal outcome.
func (r *Racer) IsDoneRacing() bool { return r.status > StatusRacing }

// Ready moves unready -> ready. Returns false (and changes nothing)
// from any other status; the same failure contract holds for every
// transition method below.
func (r *Racer) Ready() bool {
	if r.status == StatusUnready {
		r.status = StatusReady
		return true
	}
	return false
}

// Unready moves ready -> unready.
func (r *Racer) Unready() bool {
	if r.status == StatusReady {
		r.status = StatusUnready
		return true
	}
	return false
}

// BeginRace moves ready -> racing. Called by the owning aggregate when the
// room countdown elapses.
func (r *Racer) BeginRace() bool {
	if r.status == StatusReady {
		r.status = StatusRacing
		return true
	}
	return false
}

// Forfeit records a forfeit at the given race time. Also legal from
// finished, so an erroneous finish can be corrected without undoing first.
func (r *Racer) Forfeit(time int) bool {
	if r.status == StatusRacing || r.status == StatusFinished {
		r.status = StatusForfeit
		r.Time = time
		r.Level = racetime.LevelUnknownDeath
		r.IGT = racetime.FieldUnset
		return true
	}
	return false
}

// Unforfeit moves forfeit -> racing, clearing all result fields.
func (r *Racer) Unforfeit() bool {
	if r.status == StatusForfeit {
		r.status = StatusRacing
		r.clearResult()
		return true
	}
	return false
}

// Finish records a finish at the given race time. Also legal from forfeit.
func (r *Racer) Finish(time int) bool {
	if r.status == StatusRacing || r.status == StatusForfeit {
		r.status = StatusFinished
		r.Time = time
		r.Level = racetime.LevelFinished
		return true
	}
	return false
}

// Unfinish moves finished -> racing, clearing all result fields.
func (r *Racer) Unfinish() bool {
	if r.status == StatusFinished {
		r.status = StatusRacing
		r.clearResult()
		return true
	}
	return false
}

// SetDeathLevel annotates a forfeit with the level of death.
func (r *Racer) SetDeathLevel(level int) bool {
	if r.status != StatusForfeit {
		return false
	}
	r.Level = level
	return true
}

// SetIGT records in-game time; only meaningful once the racer is done.
func (r *Racer) SetIGT(igt int) bool {
	if !r.IsDoneRacing() {
		return false
	}
	r.IGT = igt
	return true
}

// AddComment attaches free text regardless of status.
func (r *Racer) AddComment(comment string) {
	r.Comment = comment
}

func (r *Racer) clearResult() {
	r.Time = racetime.FieldUnset
	r.IGT = racetime.FieldUnset
	r.Level = racetime.FieldUnset
}

// TimeString renders the recorded race time.
func (r *Racer) TimeString() string {
	return racetime.ToString(r.Time)
}

// StatusString is the long-form status line: finish/forfeit details plus any
// comment.
func (r *Racer) StatusString() string {
	return r.statusString(false)
}

// ShortStatusString is the inline form without detail fields.
func (r *Racer) ShortStatusString() string {
	return r.statusString(true)
}

func (r *Racer) statusString(short bool) string {
	status := ""
	if r.status == StatusFinished {
		status += racetime.ToString(r.Time)
		if r.IGT != racetime.FieldUnset && !short {
			status += " (igt " + racetime.ToString(r.IGT) + ")"
		}
	} else {
		status += r.status.String()
		if r.status == StatusForfeit && !short {
			status += " (rta " + racetime.ToString(r.Time)
			if lvl := racetime.LevelString(r.Level); lvl != "" {
				status += ", " + lvl
			}
			if r.IGT != racetime.FieldUnset {
				status += ", igt " + racetime.ToString(r.IGT)
			}
			status += ")"
		}
	}

	if r.Comment != "" && !short {
		status += ": " + r.Comment
	}
	return status
}
