package db

import (
	"fmt"
	"time"
)

type RaceRecord struct {
	ID          string
	RoomCode    string
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// CreateRace archives a completed race and returns its id.
func (d *DB) CreateRace(roomCode string, startedAt time.Time) (string, error) {
	var id string
	err := d.conn.QueryRow(`
		INSERT INTO races (room_code, started_at, completed_at)
		VALUES ($1, $2, now())
		RETURNING id
	`, roomCode, startedAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("creating race: %w", err)
	}
	return id, nil
}

// ListRaces returns the most recently archived races, newest first.
func (d *DB) ListRaces(limit int) ([]RaceRecord, error) {
	rows, err := d.conn.Query(`
		SELECT id, room_code, started_at, completed_at, created_at
		FROM races ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing races: %w", err)
	}
	defer rows.Close()

	var races []RaceRecord
	for rows.Next() {
		var rec RaceRecord
		if err := rows.Scan(&rec.ID, &rec.RoomCode, &rec.StartedAt, &rec.CompletedAt, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning race: %w", err)
		}
		races = append(races, rec)
	}
	return races, rows.Err()
}

// AddRaceResult records one racer's final standing in an archived race.
func (d *DB) AddRaceResult(raceID, participantID, name string, place, timeHundredths, igtHundredths, deathLevel int, comment string) error {
	_, err := d.conn.Exec(`
		INSERT INTO race_results (race_id, participant_id, name, place, time_hundredths, igt_hundredths, death_level, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (race_id, participant_id)
		DO UPDATE SET place = $4, time_hundredths = $5, igt_hundredths = $6, death_level = $7, comment = $8
	`, raceID, participantID, name, place, timeHundredths, igtHundredths, deathLevel, comment)
	if err != nil {
		return fmt.Errorf("adding race result: %w", err)
	}
	return nil
}
