package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/scythe504/voting-rooms/internal"
	"github.com/scythe504/voting-rooms/internal/session"
)

const (
	queryTimeout        = 2 * time.Second
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.ServeWS)
	r.HandleFunc("/rooms/{code}", s.GetRoomStatus).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{code}/rounds", s.GetRoundHistory).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	return c.Handler(r)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now().UnixMilli()
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	// the dispatch loop answering is the liveness signal
	if err := s.hub.Query(ctx, func() {}); err != nil {
		s.writeResponse(w, startTime, http.StatusServiceUnavailable, "dispatch loop unavailable")
		return
	}
	s.writeResponse(w, startTime, http.StatusOK, "ok")
}

// GetRoomStatus reports a room's public state without membership details.
func (s *Server) GetRoomStatus(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now().UnixMilli()
	code := mux.Vars(r)["code"]

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	var (
		status internal.RoomStatus
		err    error
	)
	if qerr := s.hub.Query(ctx, func() { status, err = s.store.Status(code) }); qerr != nil {
		s.log.Warnf("[GetRoomStatus] query failed: %v", qerr)
		s.writeResponse(w, startTime, http.StatusServiceUnavailable, "dispatch loop unavailable")
		return
	}
	if errors.Is(err, session.ErrRoomNotFound) {
		s.writeResponse(w, startTime, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		s.writeResponse(w, startTime, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeResponse(w, startTime, http.StatusOK, status)
}

// GetRoundHistory lists archived rounds of a room, newest first.
func (s *Server) GetRoundHistory(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now().UnixMilli()
	if s.history == nil {
		s.writeResponse(w, startTime, http.StatusNotFound, "round archive is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeResponse(w, startTime, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	rounds, err := s.history.RecentRounds(r.Context(), mux.Vars(r)["code"], limit)
	if err != nil {
		s.log.Errorf("[GetRoundHistory] %v", err)
		s.writeResponse(w, startTime, http.StatusInternalServerError, "failed to read round history")
		return
	}
	if rounds == nil {
		rounds = []internal.RoundResult{}
	}
	s.writeResponse(w, startTime, http.StatusOK, rounds)
}

func (s *Server) writeResponse(w http.ResponseWriter, startTime int64, statusCode int, data any) {
	endTime := time.Now().UnixMilli()
	resp := internal.Response{
		StatusCode:    statusCode,
		RespStartTime: startTime,
		RespEndTime:   endTime,
		NetRespTime:   endTime - startTime,
		Data:          data,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Errorf("Error encoding response: %v", err)
	}
}
