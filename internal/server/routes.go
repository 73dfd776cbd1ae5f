package server

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"racebot/internal/config"
	"racebot/internal/daily"
	"racebot/internal/db"
	"racebot/internal/metrics"
	"racebot/internal/rooms"
	"racebot/internal/seedgen"
)

func Run() error {
	cfg := config.Load()

	roomStore := rooms.NewStore(rooms.Config{
		Countdown: time.Duration(cfg.CountdownSecs) * time.Second,
		StaleTTL:  time.Duration(cfg.RoomTTLMinutes) * time.Minute,
	})

	srv := &Server{
		Rooms: roomStore,
	}

	// Optional database connection; the daily challenge needs one.
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Printf("[DB] Failed to connect: %v (running without database)\n", err)
		} else {
			if err := database.Migrate(); err != nil {
				log.Printf("[DB] Migration failed: %v\n", err)
			}
			srv.DB = database
			srv.Archive = database
			srv.Daily = daily.New(database, seedgen.New(), daily.Config{
				Epoch:    cfg.DailyEpoch,
				Rotation: cfg.DailyRotation,
				Grace:    cfg.DailyGrace,
			})
			log.Println("[DB] Database connected and migrations applied")
		}
	} else {
		log.Println("[DB] DATABASE_URL not set, running without database")
	}

	mux := newMux(srv)

	addr := "0.0.0.0:" + cfg.Port
	fmt.Printf("Server listening on http://localhost:%s\n", cfg.Port)
	return http.ListenAndServe(addr, mux)
}

func newMux(srv *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rooms", srv.handleCreateRoom)
	mux.HandleFunc("GET /rooms", srv.handleListRooms)
	mux.HandleFunc("GET /rooms/{code}", srv.handleGetRoom)
	mux.HandleFunc("POST /rooms/{code}/join", srv.handleJoin)
	mux.HandleFunc("POST /rooms/{code}/leave", srv.handleLeave)
	mux.HandleFunc("POST /rooms/{code}/ready", srv.handleReady)
	mux.HandleFunc("POST /rooms/{code}/unready", srv.handleUnready)
	mux.HandleFunc("POST /rooms/{code}/finish", srv.handleFinish)
	mux.HandleFunc("POST /rooms/{code}/forfeit", srv.handleForfeit)
	mux.HandleFunc("POST /rooms/{code}/unfinish", srv.handleUnfinish)
	mux.HandleFunc("POST /rooms/{code}/unforfeit", srv.handleUnforfeit)
	mux.HandleFunc("POST /rooms/{code}/death", srv.handleDeathLevel)
	mux.HandleFunc("POST /rooms/{code}/igt", srv.handleIGT)
	mux.HandleFunc("POST /rooms/{code}/comment", srv.handleComment)
	mux.HandleFunc("POST /rooms/{code}/cancel", srv.handleCancel)
	mux.HandleFunc("GET /rooms/{code}/events", srv.handleEvents)
	mux.HandleFunc("GET /rooms/{code}/ws", srv.handleWS)
	mux.HandleFunc("GET /races", srv.handleRaces)
	mux.HandleFunc("GET /daily", srv.handleDailyInfo)
	mux.HandleFunc("POST /daily/register", srv.handleDailyRegister)
	mux.HandleFunc("POST /daily/submit", srv.handleDailySubmit)
	mux.HandleFunc("POST /daily/unsubmit", srv.handleDailyUnsubmit)
	mux.HandleFunc("GET /daily/status/{participant}", srv.handleDailyStatus)
	mux.HandleFunc("GET /daily/leaderboard/{id}", srv.handleDailyLeaderboard)
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}
