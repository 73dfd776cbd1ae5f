package db

import (
	"database/sql"
	"errors"
	"fmt"

	"racebot/internal/daily"
)

// DB implements daily.Store.

func (d *DB) GetRegistration(participantID string) (*daily.Registration, error) {
	var reg daily.Registration
	err := d.conn.QueryRow(`
		SELECT participant_id, challenge_id, registered_at
		FROM daily_registrations WHERE participant_id = $1
	`, participantID).Scan(&reg.ParticipantID, &reg.ChallengeID, &reg.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting registration: %w", err)
	}
	return &reg, nil
}

func (d *DB) UpsertRegistration(reg daily.Registration) error {
	_, err := d.conn.Exec(`
		INSERT INTO daily_registrations (participant_id, challenge_id, registered_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (participant_id) DO UPDATE SET challenge_id = $2, registered_at = $3
	`, reg.ParticipantID, reg.ChallengeID, reg.RegisteredAt)
	if err != nil {
		return fmt.Errorf("upserting registration: %w", err)
	}
	return nil
}

func (d *DB) GetSubmission(challengeID int64, participantID string) (*daily.Submission, error) {
	var sub daily.Submission
	err := d.conn.QueryRow(`
		SELECT challenge_id, participant_id, name, time_hundredths, igt_hundredths, death_level, comment, submitted_at
		FROM daily_submissions WHERE challenge_id = $1 AND participant_id = $2
	`, challengeID, participantID).Scan(
		&sub.ChallengeID, &sub.ParticipantID, &sub.Name,
		&sub.Time, &sub.IGT, &sub.Level, &sub.Comment, &sub.SubmittedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting submission: %w", err)
	}
	return &sub, nil
}

func (d *DB) UpsertSubmission(sub daily.Submission) error {
	_, err := d.conn.Exec(`
		INSERT INTO daily_submissions (challenge_id, participant_id, name, time_hundredths, igt_hundredths, death_level, comment, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (challenge_id, participant_id)
		DO UPDATE SET name = $3, time_hundredths = $4, igt_hundredths = $5, death_level = $6, comment = $7, submitted_at = $8
	`, sub.ChallengeID, sub.ParticipantID, sub.Name, sub.Time, sub.IGT, sub.Level, sub.Comment, sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("upserting submission: %w", err)
	}
	return nil
}

func (d *DB) DeleteSubmission(challengeID int64, participantID string) error {
	_, err := d.conn.Exec(`
		DELETE FROM daily_submissions WHERE challenge_id = $1 AND participant_id = $2
	`, challengeID, participantID)
	if err != nil {
		return fmt.Errorf("deleting submission: %w", err)
	}
	return nil
}

func (d *DB) ListSubmissions(challengeID int64) ([]daily.Submission, error) {
	rows, err := d.conn.Query(`
		SELECT challenge_id, participant_id, name, time_hundredths, igt_hundredths, death_level, comment, submitted_at
		FROM daily_submissions WHERE challenge_id = $1
		ORDER BY submitted_at
	`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var subs []daily.Submission
	for rows.Next() {
		var sub daily.Submission
		if err := rows.Scan(
			&sub.ChallengeID, &sub.ParticipantID, &sub.Name,
			&sub.Time, &sub.IGT, &sub.Level, &sub.Comment, &sub.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ReplaceLeaderboard swaps the challenge's leaderboard rows in one
// transaction, so recomputation never accumulates duplicates.
func (d *DB) ReplaceLeaderboard(challengeID int64, lbRows []daily.LeaderboardRow) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM daily_leaderboard WHERE challenge_id = $1`, challengeID); err != nil {
		return fmt.Errorf("clearing leaderboard: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO daily_leaderboard (challenge_id, rank, participant_id, name, time_hundredths, death_level, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range lbRows {
		if _, err := stmt.Exec(row.ChallengeID, row.Rank, row.ParticipantID, row.Name, row.Time, row.Level, row.Comment); err != nil {
			return fmt.Errorf("inserting leaderboard row: %w", err)
		}
	}
	return tx.Commit()
}

func (d *DB) GetSeed(challengeID int64) (int64, bool, error) {
	var seed int64
	err := d.conn.QueryRow(`
		SELECT seed FROM daily_seeds WHERE challenge_id = $1
	`, challengeID).Scan(&seed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("getting seed: %w", err)
	}
	return seed, true, nil
}

func (d *DB) SetSeed(challengeID int64, seed int64) error {
	_, err := d.conn.Exec(`
		INSERT INTO daily_seeds (challenge_id, seed)
		VALUES ($1, $2)
		ON CONFLICT (challenge_id) DO NOTHING
	`, challengeID, seed)
	if err != nil {
		return fmt.Errorf("setting seed: %w", err)
	}
	return nil
}

// ListLeaderboard reads back the stored standings for a challenge.
func (d *DB) ListLeaderboard(challengeID int64) ([]daily.LeaderboardRow, error) {
	rows, err := d.conn.Query(`
		SELECT challenge_id, rank, participant_id, name, time_hundredths, death_level, comment
		FROM daily_leaderboard WHERE challenge_id = $1
		ORDER BY rank
	`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("listing leaderboard: %w", err)
	}
	defer rows.Close()

	var lb []daily.LeaderboardRow
	for rows.Next() {
		var row daily.LeaderboardRow
		if err := rows.Scan(&row.ChallengeID, &row.Rank, &row.ParticipantID, &row.Name, &row.Time, &row.Level, &row.Comment); err != nil {
			return nil, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		lb = append(lb, row)
	}
	return lb, rows.Err()
}
