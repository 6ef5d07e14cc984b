// Package server exposes the progression engine over HTTP: the event
// surface external features post completions to, the read-only view-model
// endpoints the UI polls, and a websocket feed for unlock pushes.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skillsprint/backend/internal/progression"
	"github.com/skillsprint/backend/internal/ws"
)

type Server struct {
	tracker        *progression.Tracker
	gateway        progression.Gateway
	broadcaster    *ws.Broadcaster
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	now            func() time.Time
}

func New(tracker *progression.Tracker, gateway progression.Gateway, broadcaster *ws.Broadcaster, allowedOrigins []string) *Server {
	s := &Server{
		tracker:        tracker,
		gateway:        gateway,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		now:            time.Now,
	}
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/events/task", s.handleTaskEvent)
	mux.HandleFunc("/api/events/week", s.handleWeekEvent)
	mux.HandleFunc("/api/events/plan", s.handlePlanEvent)
	mux.HandleFunc("/api/plans/", s.handlePlanRoutes)
	mux.HandleFunc("/api/progress", s.handleProgress)
	mux.HandleFunc("/api/certificates", s.handleCertificates)
	mux.HandleFunc("/api/achievements", s.handleAchievements)
	mux.HandleFunc("/api/activity", s.handleActivity)
}

// userID extracts the learner id from the X-User-ID header (or the user
// query parameter for websocket clients). Authentication itself is the
// hosting application's concern.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("user")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"wsClients": s.broadcaster.ClientCount(),
	})
}

type taskEventRequest struct {
	Hour          *int   `json:"hour,omitempty"`
	SkillCategory string `json:"skillCategory,omitempty"`
	Practice      bool   `json:"practice,omitempty"`
}

type weekEventRequest struct {
	Perfect bool `json:"perfect,omitempty"`
}

// eventResponse is returned synchronously from the in-memory result of an
// event, before the debounced save runs, so the caller can show progress
// immediately.
type eventResponse struct {
	Unlocks  []progression.Unlock     `json:"unlocks"`
	Progress progression.ProgressView `json:"progress"`
}

func (s *Server) handleTaskEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}

	var req taskEventRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
	}

	ev := progression.TaskEvent{
		Hour:          s.now().Hour(),
		SkillCategory: req.SkillCategory,
		Practice:      req.Practice,
	}
	if req.Hour != nil {
		ev.Hour = *req.Hour
	}

	unlocks, err := s.tracker.OnTaskCompleted(r.Context(), uid, ev)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeEventResponse(w, r, uid, unlocks)
}

func (s *Server) handleWeekEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}

	var req weekEventRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
	}

	unlocks, err := s.tracker.OnWeekCompleted(r.Context(), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Perfect {
		more, err := s.tracker.OnPerfectWeek(r.Context(), uid)
		if err != nil {
			s.writeError(w, err)
			return
		}
		unlocks = append(unlocks, more...)
	}
	s.writeEventResponse(w, r, uid, unlocks)
}

func (s *Server) handlePlanEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}

	unlocks, err := s.tracker.OnPlanCompleted(r.Context(), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeEventResponse(w, r, uid, unlocks)
}

type examRequest struct {
	Score    int        `json:"score"`
	MaxScore int        `json:"maxScore"`
	Passed   bool       `json:"passed"`
	TakenAt  *time.Time `json:"takenAt,omitempty"`
}

type diplomaRequest struct {
	Title    string     `json:"title"`
	IssuedAt *time.Time `json:"issuedAt,omitempty"`
}

// handlePlanRoutes dispatches /api/plans/{planID}/exam and
// /api/plans/{planID}/diploma.
func (s *Server) handlePlanRoutes(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/plans/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	planID, resource := parts[0], parts[1]

	switch {
	case resource == "exam" && r.Method == http.MethodPut:
		var req examRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		rec := progression.ExamRecord{
			PlanID:   planID,
			Score:    req.Score,
			MaxScore: req.MaxScore,
			Passed:   req.Passed,
			TakenAt:  s.now().UTC(),
		}
		if req.TakenAt != nil {
			rec.TakenAt = *req.TakenAt
		}
		if err := s.tracker.OnExamUpdated(r.Context(), uid, rec); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case resource == "exam" && r.Method == http.MethodGet:
		recs, err := s.gateway.Exams(r.Context(), uid)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, filterExams(recs, planID))

	case resource == "diploma" && r.Method == http.MethodPut:
		var req diplomaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		rec := progression.DiplomaRecord{
			PlanID:   planID,
			Title:    req.Title,
			IssuedAt: s.now().UTC(),
		}
		if req.IssuedAt != nil {
			rec.IssuedAt = *req.IssuedAt
		}
		if err := s.tracker.OnDiplomaIssued(r.Context(), uid, rec); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case resource == "diploma" && r.Method == http.MethodGet:
		recs, err := s.gateway.Diplomas(r.Context(), uid)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, filterDiplomas(recs, planID))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}
	view, err := s.tracker.Progress(r.Context(), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCertificates(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}
	views, err := s.tracker.Certificates(r.Context(), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}
	views, err := s.tracker.Achievements(r.Context(), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}
	entries, err := s.tracker.Activity(r.Context(), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket client connected: %s (user %s)", r.RemoteAddr, uid)
	c := s.broadcaster.AddClient(conn, uid)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// checkOrigin allows origin-less clients, any explicitly configured
// origin, and browsers on the exact same host. The origin is parsed and
// its host compared exactly; substring matching would let a registerable
// lookalike domain through.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}
	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	return false
}

func (s *Server) writeEventResponse(w http.ResponseWriter, r *http.Request, uid string, unlocks []progression.Unlock) {
	view, err := s.tracker.Progress(r.Context(), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if unlocks == nil {
		unlocks = []progression.Unlock{}
	}
	writeJSON(w, http.StatusOK, eventResponse{Unlocks: unlocks, Progress: view})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *progression.ValidationError
	if errors.As(err, &verr) {
		http.Error(w, verr.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("request failed: %v", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func filterExams(recs []progression.ExamRecord, planID string) []progression.ExamRecord {
	out := []progression.ExamRecord{}
	for _, rec := range recs {
		if rec.PlanID == planID {
			out = append(out, rec)
		}
	}
	return out
}

func filterDiplomas(recs []progression.DiplomaRecord, planID string) []progression.DiplomaRecord {
	out := []progression.DiplomaRecord{}
	for _, rec := range recs {
		if rec.PlanID == planID {
			out = append(out, rec)
		}
	}
	return out
}

// ListenAndServe starts the HTTP server on host:port.
func ListenAndServe(host string, port int, handler http.Handler) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("Listening on http://%s", addr)
	return http.ListenAndServe(addr, handler)
}
