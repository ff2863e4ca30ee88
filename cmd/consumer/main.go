package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-share/internal/events"
	"github.com/example/ride-share/internal/leaderboard"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total ride events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	boardUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_leaderboard_updates_total",
		Help: "Total successful leaderboard updates",
	})
	boardErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_leaderboard_errors_total",
		Help: "Total leaderboard update errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, boardUpdates, boardErrors)
}

func main() {
	// allow some flags for local runs
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	if brokersEnv == "" {
		brokersEnv = os.Getenv("KAFKA_BROKER")
	}
	brokers := []string{}
	if brokersEnv != "" {
		for _, b := range strings.Split(brokersEnv, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	} else {
		brokers = []string{"localhost:9092"}
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "ride-events"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "ride-share-consumer"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	key := os.Getenv("REDIS_LEADERBOARD_KEY")
	if key == "" {
		key = "driver_leaderboard"
	}
	lb := leaderboard.NewRedis(redisAddr, os.Getenv("REDIS_PASSWORD"), key)

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			// readiness: check redis connectivity
			if err := lb.Ping(r.Context()); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = lb.Close()
	}()

	log.Printf("consumer listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down consumer")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		var evt events.Event
		if err := json.Unmarshal(m.Value, &evt); err != nil {
			msgsInvalid.Inc()
			log.Printf("invalid message: %v", err)
			continue
		}
		// only settlements move the leaderboard
		if evt.Type != events.TypeSettled {
			continue
		}

		if err := recordWithRetry(ctx, lb, evt, 3, 200*time.Millisecond); err != nil {
			boardErrors.Inc()
			log.Printf("leaderboard update failed for driver=%s: %v", evt.DriverID, err)
			continue
		}
		boardUpdates.Inc()
	}
}

// ScoreRecorder is the small subset of leaderboard operations we need for
// tests and production.
type ScoreRecorder interface {
	Record(ctx context.Context, driverID string, points int) error
}

// recordWithRetry updates the leaderboard with retry/backoff.
func recordWithRetry(ctx context.Context, rec ScoreRecorder, evt events.Event, attempts int, delay time.Duration) error {
	for i := 0; i < attempts; i++ {
		err := rec.Record(ctx, evt.DriverID, evt.Points)
		if err == nil {
			return nil
		}
		if i == attempts-1 {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return nil
}
