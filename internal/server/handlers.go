package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"racebot/internal/daily"
	"racebot/internal/db"
	"racebot/internal/race"
	"racebot/internal/racetime"
	"racebot/internal/rooms"
	"racebot/internal/wshub"
)

// RaceArchiver persists completed races; *db.DB implements it.
type RaceArchiver interface {
	CreateRace(roomCode string, startedAt time.Time) (string, error)
	AddRaceResult(raceID, participantID, name string, place, timeHundredths, igtHundredths, deathLevel int, comment string) error
}

type Server struct {
	Rooms   *rooms.Store
	Daily   *daily.Scheduler // nil if no database configured
	DB      *db.DB           // nil if no database configured
	Archive RaceArchiver     // nil if no database configured
}

// roomResponse is a room view plus an optional durability warning: when a
// race completes but archiving its results fails, the command itself has
// still succeeded and the caller is told the results may not be durable.
type roomResponse struct {
	rooms.RoomPayload
	Warning string `json:"warning,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Handle] Encode error: %v\n", err)
	}
}

// writeError maps the domain's sentinel errors onto HTTP statuses: missing
// things are 404, rejected transitions and preconditions are 409, a closed
// challenge window is 410, and malformed submissions are 422.
func writeError(w http.ResponseWriter, err error) {
	var parseErr *daily.ParseError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, race.ErrRacerNotFound),
		errors.Is(err, daily.ErrNoSubmission),
		errors.Is(err, daily.ErrNotRegistered):
		status = http.StatusNotFound
	case errors.Is(err, race.ErrNotOpen),
		errors.Is(err, race.ErrAlreadyJoined),
		errors.Is(err, race.ErrBadTransition),
		errors.Is(err, race.ErrNotAllReady),
		errors.Is(err, race.ErrWrongPhase),
		errors.Is(err, daily.ErrAlreadySubmitted),
		errors.Is(err, daily.ErrPendingPrevious):
		status = http.StatusConflict
	case errors.Is(err, daily.ErrClosed):
		status = http.StatusGone
	case errors.As(err, &parseErr):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// roomCommand is the request body shared by the racer-level room endpoints.
type roomCommand struct {
	RacerID string `json:"racerId"`
	Name    string `json:"name"`
	Comment string `json:"comment"`
	Level   string `json:"level"` // zone-floor, e.g. 4-1
	IGT     string `json:"igt"`   // [m]:ss.hh
}

func decodeCommand(w http.ResponseWriter, r *http.Request) (roomCommand, bool) {
	var cmd roomCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return cmd, false
	}
	return cmd, true
}

// getRoom resolves the room from the {code} path segment.
func (s *Server) getRoom(r *http.Request) *rooms.Room {
	code := strings.ToUpper(r.PathValue("code"))
	return s.Rooms.Get(code)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:CreateRoom] Request Received")

	hostID := uuid.New().String()
	room, err := s.Rooms.Create(hostID)
	if err != nil {
		log.Println(err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to create room"})
		return
	}

	fmt.Printf("[Handle:CreateRoom] Created room %s\n", room.Code)
	writeJSON(w, http.StatusCreated, map[string]string{
		"roomCode": room.Code,
		"hostId":   hostID,
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	list := s.Rooms.List()
	payloads := make([]rooms.RoomPayload, 0, len(list))
	for _, room := range list {
		payloads = append(payloads, room.Payload())
	}
	writeJSON(w, http.StatusOK, payloads)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room := s.getRoom(r)
	if room == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}
	writeJSON(w, http.StatusOK, room.Payload())
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:Join] Request Received")
	room := s.getRoom(r)
	if room == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}
	cmd, ok := decodeCommand(w, r)
	if !ok {
		return
	}
	if cmd.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}
	if cmd.RacerID == "" {
		cmd.RacerID = uuid.New().String()
	}

	if err := room.Join(cmd.RacerID, cmd.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"roomCode": room.Code,
		"racerId":  cmd.RacerID,
	})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	room := s.getRoom(r)
	if room == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}
	cmd, ok := decodeCommand(w, r)
	if !ok {
		return
	}
	ch, err := room.Leave(cmd.RacerID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := roomResponse{RoomPayload: room.Payload()}
	if ch.Complete {
		if err := s.archiveRace(room); err != nil {
			log.Printf("[DB] Archive error: %v\n", err)
			resp.Warning = "race complete, but archiving results failed: " + err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:Ready] Request Received")
	s.racerCommand(w, r, func(room *rooms.Room, cmd roomCommand) error {
		return room.Ready(cmd.RacerID)
	})
}

func (s *Server) handleUnready(w http.ResponseWriter, r *http.Request) {
	s.racerCommand(w, r, func(room *rooms.Room, cmd roomCommand) error {
		return room.Unready(cmd.RacerID)
	})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	s.terminalCommand(w, r, (*rooms.Room).Finish)
}

func (s *Server) handleForfeit(w http.ResponseWriter, r *http.Request) {
	s.terminalCommand(w, r, (*rooms.Room).Forfeit)
}

func (s *Server) handleUnfinish(w http.ResponseWriter, r *http.Request) {
	s.racerCommand(w, r, func(room *rooms.Room, cmd roomCommand) error {
		return room.Unfinish(cmd.RacerID)
	})
}

func (s *Server) handleUnforfeit(w http.ResponseWriter, r *http.Request) {
	s.racerCommand(w, r, func(room *rooms.Room, cmd roomCommand) error {
		return room.Unforfeit(cmd.RacerID)
	})
}

func (s *Server) handleDeathLevel(w http.ResponseWriter, r *http.Request) {
	room := s.getRoom(r)
	if room == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}
	cmd, ok := decodeCommand(w, r)
	if !ok {
		return
	}
	level, err := racetime.ParseLevel(cmd.Level)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	if err := room.SetDeathLevel(cmd.RacerID, level); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room.Payload())
}

func (s *Server) handleIGT(w http.ResponseWriter, r *http.Request) {
	room := s.getRoom(r)
	if room == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}
	cmd, ok := decodeCommand(w, r)
	if !ok {
		return
	}
	igt, err := racetime.Parse(cmd.IGT)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	if err := room.SetIGT(cmd.RacerID, igt); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room.Payload())
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	s.racerCommand(w, r, func(room *rooms.Room, cmd roomCommand) error {
		return room.Comment(cmd.RacerID, cmd.Comment)
	})
}

// racerCommand factors the decode / run / respond shape shared by the simple
// racer-level endpoints.
func (s *Server) racerCommand(w http.ResponseWriter, r *http.Request, op func(*rooms.Room, roomCommand) error) {
	room := s.getRoom(r)
	if room == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}
	cmd, ok := decodeCommand(w, r)
	if !ok {
		return
	}
	if err := op(room, cmd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room.Payload())
}

// terminalCommand handles finish and forfeit, which can complete the race and
// trigger archiving.
func (s *Server) terminalCommand(w http.ResponseWriter, r *http.Request, op func(*rooms.Room, string) (race.Change, error)) {
	room := s.getRoom(r)
	if room == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}
	cmd, ok := decodeCommand(w, r)
	if !ok {
		return
	}
	ch, err := op(room, cmd.RacerID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := roomResponse{RoomPayload: room.Payload()}
	if ch.Complete {
		if err := s.archiveRace(room); err != nil {
			log.Printf("[DB] Archive error: %v\n", err)
			resp.Warning = "race complete, but archiving results failed: " + err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:Cancel] Request Received")
	room := s.getRoom(r)
	if room == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}
	if err := room.Cancel(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room.Payload())
}

// archiveRace persists the final standings of a completed race. The error is
// reported to the caller; in-memory room state is not rolled back, and the
// archive can be retried since result rows upsert.
func (s *Server) archiveRace(room *rooms.Room) error {
	if s.Archive == nil {
		return nil
	}
	snap := room.Race.Snapshot()
	raceID, err := s.Archive.CreateRace(room.Code, snap.StartedAt)
	if err != nil {
		return fmt.Errorf("creating race record: %w", err)
	}
	for i, rc := range room.Standings() {
		if err := s.Archive.AddRaceResult(raceID, rc.ID, rc.Name, i+1, rc.Time, rc.IGT, rc.Level, rc.Comment); err != nil {
			return fmt.Errorf("recording result for %s: %w", rc.ID, err)
		}
	}
	return nil
}

// handleRaces lists the most recently archived races.
func (s *Server) handleRaces(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "race archive requires a database"})
		return
	}
	races, err := s.DB.ListRaces(50)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, races)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	room := s.getRoom(r)
	if room == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	msgChan := room.Broadcaster.Subscribe()
	defer room.Broadcaster.Unsubscribe(msgChan)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-msgChan:
			fmt.Fprintf(w, "event: %s\n", msg.Event)
			for _, line := range strings.Split(msg.Data, "\n") {
				fmt.Fprintf(w, "data: %s\n", line)
			}
			fmt.Fprint(w, "\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	room := s.getRoom(r)
	if room == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}
	racerID := r.URL.Query().Get("racerId")
	if racerID == "" {
		racerID = uuid.New().String()
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("[Handle:WS] Accept error: %v\n", err)
		return
	}

	client := &wshub.Client{
		RacerID: racerID,
		Conn:    conn,
		Send:    make(chan []byte, 16),
	}
	room.Hub.Register(client)
	defer room.Hub.UnregisterClient(client)

	ctx := conn.CloseRead(r.Context())
	client.WritePump(ctx)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.DB != nil {
		if err := s.DB.Ping(); err != nil {
			status = "db_error"
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"%s","error":"%s"}`, status, err.Error())
			return
		}
	}
	fmt.Fprintf(w, `{"status":"%s"}`, status)
}
