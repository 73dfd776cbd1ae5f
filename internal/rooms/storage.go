package rooms

import (
	"fmt"
	"sync"
	"time"

	"racebot/internal/broadcast"
	"racebot/internal/events"
	"racebot/internal/race"
	"racebot/internal/wshub"
)

type Config struct {
	Countdown time.Duration
	StaleTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Countdown: 10 * time.Second,
		StaleTTL:  2 * time.Hour,
	}
}

type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room
	cfg   Config
}

func NewStore(cfg Config) *Store {
	s := &Store{
		rooms: make(map[string]*Room),
		cfg:   cfg,
	}
	go s.sweepStale()
	return s
}

func (s *Store) Create(hostID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Try up to 10 times to generate a unique code
	for range 10 {
		code, err := GenerateCode()
		if err != nil {
			return nil, fmt.Errorf("generating room code: %w", err)
		}
		if _, exists := s.rooms[code]; exists {
			continue
		}

		bus := events.NewBus()
		room := &Room{
			Code:        code,
			HostID:      hostID,
			Race:        race.New(),
			Bus:         bus,
			Broadcaster: broadcast.NewBroadcaster(bus),
			Hub:         wshub.NewHub(),
			CreatedAt:   time.Now(),
			countdown:   s.cfg.Countdown,
		}
		s.rooms[code] = room
		return room, nil
	}
	return nil, fmt.Errorf("failed to generate unique room code after 10 attempts")
}

func (s *Store) Get(code string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[code]
}

func (s *Store) Delete(code string) {
	s.mu.Lock()
	room := s.rooms[code]
	delete(s.rooms, code)
	s.mu.Unlock()
	if room != nil {
		room.Close()
	}
}

func (s *Store) List() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		list = append(list, r)
	}
	return list
}

// sweepStale tears down settled rooms and rooms past the stale TTL.
func (s *Store) sweepStale() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		var torn []*Room
		s.mu.Lock()
		now := time.Now()
		for code, room := range s.rooms {
			if room.Settled() || now.Sub(room.CreatedAt) > s.cfg.StaleTTL {
				delete(s.rooms, code)
				torn = append(torn, room)
			}
		}
		s.mu.Unlock()
		for _, room := range torn {
			room.Close()
		}
	}
}
