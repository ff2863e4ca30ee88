package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-share/internal/apperror"
	"github.com/example/ride-share/internal/auth"
	"github.com/example/ride-share/internal/board"
	"github.com/example/ride-share/internal/config"
	"github.com/example/ride-share/internal/events"
	"github.com/example/ride-share/internal/leaderboard"
	"github.com/example/ride-share/internal/listing"
	"github.com/example/ride-share/internal/matching"
	"github.com/example/ride-share/internal/models"
	"github.com/example/ride-share/internal/notify"
	"github.com/example/ride-share/internal/payments"
	"github.com/example/ride-share/internal/settlement"
	"github.com/example/ride-share/internal/storage"
)

type Server struct {
	Ledger      storage.Ledger
	Auth        *auth.Service
	Matcher     *matching.Engine
	Settlement  *settlement.Protocol
	Board       *board.Service
	Listing     *listing.Service
	Kafka       *events.KafkaProducer
	WSReg       *notify.WSRegistry
	Leaderboard *leaderboard.Redis
	Stripe      *payments.StripeClient

	cfg    config.ServerConfig
	logger *slog.Logger
	mux    *mux.Router

	topupMu sync.Mutex
	topups  map[string]pendingTopUp
}

// pendingTopUp ties a held PaymentIntent to the purchase it will credit.
type pendingTopUp struct {
	userID string
	points int
}

// NewServer wires the full service from config. Postgres, Kafka and Redis are
// optional: without them the server falls back to the in-memory ledger and
// skips event publishing and the leaderboard.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	var ledger storage.Ledger
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresLedger(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		ledger = pg
	} else {
		logger.Warn("PG_DSN not set, using in-memory ledger")
		ledger = storage.NewMemoryLedger()
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	var kp *events.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	var lb *leaderboard.Redis
	if cfg.RedisAddr != "" {
		lb = leaderboard.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisLeaderboardKey)
	}

	s := &Server{
		Ledger:      ledger,
		Auth:        auth.NewService(ledger, tokens, auth.NewPasswordService()),
		Matcher:     matching.NewEngine(ledger),
		Settlement:  settlement.NewProtocol(ledger),
		Board:       board.NewService(ledger),
		Listing:     listing.NewService(ledger),
		Kafka:       kp,
		WSReg:       notify.NewWSRegistry(logger),
		Leaderboard: lb,
		Stripe:      payments.NewStripeClient(),
		cfg:         cfg,
		logger:      logger,
		mux:         mux.NewRouter(),
		topups:      make(map[string]pendingTopUp),
	}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.HandleFunc("/api/v1/auth/register", s.handleRegister).Methods("POST")
	s.mux.HandleFunc("/api/v1/auth/login", s.handleLogin).Methods("POST")
	s.mux.HandleFunc("/api/v1/leaderboard", s.handleLeaderboard).Methods("GET")
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.Auth.Middleware)
	api.HandleFunc("/users/me", s.handleMe).Methods("GET")

	api.HandleFunc("/offers", s.handleListOffers).Methods("GET")
	api.HandleFunc("/offers", s.handlePostOffer).Methods("POST")
	api.HandleFunc("/offers/{id}", s.handleUpdateOffer).Methods("PUT")
	api.HandleFunc("/offers/{id}", s.handleDeleteOffer).Methods("DELETE")
	api.HandleFunc("/offers/{id}/accept", s.handleAcceptOffer).Methods("POST")

	api.HandleFunc("/requests", s.handleListRequests).Methods("GET")
	api.HandleFunc("/requests", s.handlePostRequest).Methods("POST")
	api.HandleFunc("/requests/{id}", s.handleUpdateRequest).Methods("PUT")
	api.HandleFunc("/requests/{id}", s.handleDeleteRequest).Methods("DELETE")
	api.HandleFunc("/requests/{id}/accept", s.handleAcceptRequest).Methods("POST")

	api.HandleFunc("/rides", s.handleListRides).Methods("GET")
	api.HandleFunc("/rides/{id}/confirm", s.handleConfirmRide).Methods("POST")

	api.HandleFunc("/points/topup", s.handleTopUp).Methods("POST")
	api.HandleFunc("/points/topup/{id}/capture", s.handleTopUpCapture).Methods("POST")
	api.HandleFunc("/points/topup/{id}/cancel", s.handleTopUpCancel).Methods("POST")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.writeError(w, apperror.Validation(err.Error()))
		return
	}
	sess, err := s.Auth.Register(r.Context(), c.Email, c.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.writeError(w, apperror.Validation(err.Error()))
		return
	}
	sess, err := s.Auth.Login(r.Context(), c.Email, c.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.Auth.UserByID(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := s.Listing.AvailableOffers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, offers)
}

func (s *Server) handlePostOffer(w http.ResponseWriter, r *http.Request) {
	var l board.Listing
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		s.writeError(w, apperror.Validation(err.Error()))
		return
	}
	user, err := s.Auth.UserByID(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	offer, err := s.Board.PostOffer(r.Context(), user.ID, user.Email, l)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, offer)
}

func (s *Server) handleUpdateOffer(w http.ResponseWriter, r *http.Request) {
	var l board.Listing
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		s.writeError(w, apperror.Validation(err.Error()))
		return
	}
	offer, err := s.Board.UpdateOffer(r.Context(), mux.Vars(r)["id"], auth.UserIDFromContext(r.Context()), l)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, offer)
}

func (s *Server) handleDeleteOffer(w http.ResponseWriter, r *http.Request) {
	if err := s.Board.DeleteOffer(r.Context(), mux.Vars(r)["id"], auth.UserIDFromContext(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	user, err := s.Auth.UserByID(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	ride, err := s.Matcher.AcceptOffer(r.Context(), mux.Vars(r)["id"], user.ID, user.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.announce(events.TypeAccepted, ride)
	s.writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.Listing.AvailableRequests(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) handlePostRequest(w http.ResponseWriter, r *http.Request) {
	var l board.Listing
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		s.writeError(w, apperror.Validation(err.Error()))
		return
	}
	user, err := s.Auth.UserByID(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	req, err := s.Board.PostRequest(r.Context(), user.ID, user.Email, l)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleUpdateRequest(w http.ResponseWriter, r *http.Request) {
	var l board.Listing
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		s.writeError(w, apperror.Validation(err.Error()))
		return
	}
	req, err := s.Board.UpdateRequest(r.Context(), mux.Vars(r)["id"], auth.UserIDFromContext(r.Context()), l)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.Board.DeleteRequest(r.Context(), mux.Vars(r)["id"], auth.UserIDFromContext(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	user, err := s.Auth.UserByID(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	ride, err := s.Matcher.AcceptRequest(r.Context(), mux.Vars(r)["id"], user.ID, user.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.announce(events.TypeAccepted, ride)
	s.writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleListRides(w http.ResponseWriter, r *http.Request) {
	rides, err := s.Listing.RidesForUser(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleConfirmRide(w http.ResponseWriter, r *http.Request) {
	out, err := s.Settlement.ConfirmBy(r.Context(), mux.Vars(r)["id"], auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if out.Settled {
		s.announce(events.TypeSettled, out.Ride)
	} else {
		s.announce(events.TypeConfirmed, out.Ride)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.Leaderboard == nil {
		s.writeError(w, apperror.StoreUnavailable(errors.New("leaderboard not configured")))
		return
	}
	entries, err := s.Leaderboard.Top(r.Context(), s.cfg.LeaderboardSize)
	if err != nil {
		s.writeError(w, apperror.StoreUnavailable(err))
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

type topUpRequest struct {
	Points int `json:"points"`
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	var t topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		s.writeError(w, apperror.Validation(err.Error()))
		return
	}
	if t.Points <= 0 {
		s.writeError(w, apperror.Validation("points must be > 0"))
		return
	}
	userID := auth.UserIDFromContext(r.Context())
	intentID, err := s.Stripe.Hold(r.Context(), t.Points, "usd", "")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.topupMu.Lock()
	s.topups[intentID] = pendingTopUp{userID: userID, points: t.Points}
	s.topupMu.Unlock()
	s.writeJSON(w, http.StatusCreated, map[string]any{"payment_intent_id": intentID, "points": t.Points})
}

func (s *Server) handleTopUpCapture(w http.ResponseWriter, r *http.Request) {
	intentID := mux.Vars(r)["id"]
	s.topupMu.Lock()
	pending, ok := s.topups[intentID]
	s.topupMu.Unlock()
	if !ok || pending.userID != auth.UserIDFromContext(r.Context()) {
		s.writeError(w, apperror.NotFound("top-up", intentID))
		return
	}
	if err := s.Stripe.Capture(r.Context(), intentID); err != nil {
		s.writeError(w, err)
		return
	}
	var user *models.User
	err := s.Ledger.Update(r.Context(), func(tx storage.Tx) error {
		var err error
		user, err = tx.GetUser(pending.userID)
		if err != nil {
			return err
		}
		user.Points += pending.points
		return tx.PutUser(user)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.topupMu.Lock()
	delete(s.topups, intentID)
	s.topupMu.Unlock()
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleTopUpCancel(w http.ResponseWriter, r *http.Request) {
	intentID := mux.Vars(r)["id"]
	s.topupMu.Lock()
	pending, ok := s.topups[intentID]
	s.topupMu.Unlock()
	if !ok || pending.userID != auth.UserIDFromContext(r.Context()) {
		s.writeError(w, apperror.NotFound("top-up", intentID))
		return
	}
	if err := s.Stripe.Cancel(r.Context(), intentID); err != nil {
		s.writeError(w, err)
		return
	}
	s.topupMu.Lock()
	delete(s.topups, intentID)
	s.topupMu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		s.logger.Warn("ws upgrade failed", "user_id", id, "error", err)
		return
	}
	s.WSReg.Add(id, conn)
}

// announce fans a lifecycle event out to Kafka and to both parties' websocket
// sessions. Best effort on every leg.
func (s *Server) announce(eventType string, ride *models.AcceptedRide) {
	evt := events.Event{
		Type:     eventType,
		RideID:   ride.ID,
		DriverID: ride.DriverID,
		RiderID:  ride.RiderID,
		Points:   ride.Points,
		At:       time.Now(),
	}
	if s.Kafka != nil {
		if err := s.Kafka.Publish(evt); err != nil {
			s.logger.Warn("kafka publish failed", "type", eventType, "ride_id", ride.ID, "error", err)
		}
	}
	_ = s.WSReg.Notify(ride.DriverID, evt)
	_ = s.WSReg.Notify(ride.RiderID, evt)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, apperror.ErrInsufficientPoints):
		status = http.StatusPaymentRequired
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperror.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
