package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RacesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "racebot_races_started_total",
		Help: "Races whose countdown elapsed and began.",
	})
	RacesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "racebot_races_completed_total",
		Help: "Races in which every racer reached a terminal state.",
	})
	RacesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "racebot_races_cancelled_total",
		Help: "Races cancelled before completion.",
	})
	CountdownsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "racebot_countdowns_cancelled_total",
		Help: "Countdowns aborted by a readiness regression.",
	})
	DailySubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "racebot_daily_submissions_total",
		Help: "Daily challenge submissions accepted (including resubmissions).",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
