// Package demo serves an in-memory stand-in for the remote calendar API so the
// widget can be exercised end to end without external accounts.
package demo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/convo-widget/internal/schedule"
	"github.com/wolfman30/convo-widget/internal/widgetcfg"
	"github.com/wolfman30/convo-widget/pkg/logging"
)

const (
	suggestionStep  = 30 * time.Minute
	suggestionTries = 5
)

type booking struct {
	Start   time.Time
	End     time.Time
	Name    string
	Email   string
	Purpose string
	Link    string
}

// SummaryRecord is one transcript posted to /summary.
type SummaryRecord struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	ChatLog  string `json:"chat_log"`
}

// ConfigSource resolves clients that were not registered with AddClient.
type ConfigSource interface {
	Get(ctx context.Context, clientID string) (*widgetcfg.Widget, error)
}

// Calendar is a process-local calendar API. Bookings live until restart.
type Calendar struct {
	logger  *logging.Logger
	now     func() time.Time
	configs ConfigSource

	mu        sync.Mutex
	clients   map[string]*widgetcfg.Widget
	bookings  map[string][]booking
	summaries []SummaryRecord
}

// NewCalendar builds an empty calendar.
func NewCalendar(logger *logging.Logger) *Calendar {
	if logger == nil {
		logger = logging.Default()
	}
	return &Calendar{
		logger:   logger,
		now:      time.Now,
		clients:  make(map[string]*widgetcfg.Widget),
		bookings: make(map[string][]booking),
	}
}

// WithConfigs makes unregistered clients resolve through source, so hours and
// tokens match what the widget itself uses.
func (c *Calendar) WithConfigs(source ConfigSource) *Calendar {
	c.configs = source
	return c
}

// AddClient registers a widget config served by /configs and used for hours checks.
func (c *Calendar) AddClient(w *widgetcfg.Widget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[w.Config.ClientID] = w
}

// Summaries returns the transcripts received so far.
func (c *Calendar) Summaries() []SummaryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SummaryRecord(nil), c.summaries...)
}

// Routes mounts the calendar API.
func (c *Calendar) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/availability/{clientID}", c.HandleAvailability)
	r.Post("/book", c.HandleBook)
	r.Post("/summary", c.HandleSummary)
	r.Post("/chat", c.HandleChat)
	r.Get("/configs/{file}", c.HandleConfig)
	return r
}

func (c *Calendar) client(ctx context.Context, id string) (*widgetcfg.Widget, error) {
	c.mu.Lock()
	w, ok := c.clients[id]
	c.mu.Unlock()
	if ok {
		return w, nil
	}
	if c.configs != nil {
		return c.configs.Get(ctx, id)
	}
	return widgetcfg.Build(widgetcfg.ClientConfig{}, id, time.UTC)
}

// HandleAvailability answers with both the busy intervals and the open slots
// for the requested day.
func (c *Calendar) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	cfg, err := c.client(r.Context(), clientID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	day, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("date"), cfg.Location)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "date must be YYYY-MM-DD"})
		return
	}
	if !c.authorized(cfg, r.URL.Query().Get("token")) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token"})
		return
	}

	dayEnd := day.AddDate(0, 0, 1)
	c.mu.Lock()
	var busy []schedule.BusyInterval
	for _, b := range c.bookings[clientID] {
		if b.Start.Before(dayEnd) && day.Before(b.End) {
			busy = append(busy, schedule.BusyInterval{Start: b.Start, End: b.End})
		}
	}
	c.mu.Unlock()

	type interval struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	resp := struct {
		Busy  []interval `json:"busy"`
		Slots []string   `json:"slots"`
	}{Busy: []interval{}, Slots: []string{}}
	for _, b := range busy {
		resp.Busy = append(resp.Busy, interval{Start: b.Start.UTC().Format(time.RFC3339), End: b.End.UTC().Format(time.RFC3339)})
	}
	for _, s := range schedule.ComputeSlots(day, busy, cfg.Policy) {
		resp.Slots = append(resp.Slots, s.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, resp)
}

type bookRequest struct {
	ClientID        string `json:"client_id"`
	Token           string `json:"token"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Datetime        string `json:"datetime"`
	Timezone        string `json:"timezone"`
	Purpose         string `json:"purpose"`
	BookingProvider string `json:"bookingProvider"`
}

// HandleBook accepts a booking when it is in the future, inside the
// client's hours and free. Conflicts answer 409 with a nearby suggestion.
func (c *Calendar) HandleBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	cfg, err := c.client(r.Context(), req.ClientID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	if !c.authorized(cfg, req.Token) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token"})
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and email are required"})
		return
	}
	start, err := time.Parse(time.RFC3339, req.Datetime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]string{"message": "datetime must be RFC 3339"}})
		return
	}

	loc := cfg.Location
	if req.Timezone != "" {
		if l, err := time.LoadLocation(req.Timezone); err == nil {
			loc = l
		}
	}
	start = start.In(loc)
	end := start.Add(cfg.Policy.Duration())

	if !start.After(c.now()) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Cannot book a time in the past."})
		return
	}
	if err := cfg.Policy.CheckHours(start); err != nil {
		var violation *schedule.PolicyViolation
		if errors.As(err, &violation) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "Requested time is outside available hours."})
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conflicts(req.ClientID, start, end) {
		detail := map[string]string{"error": "The selected time is not available."}
		if s, ok := c.suggest(req.ClientID, cfg, start); ok {
			detail["suggested"] = s.UTC().Format(time.RFC3339)
		}
		writeJSON(w, http.StatusConflict, map[string]any{"detail": detail})
		return
	}

	provider := req.BookingProvider
	if provider == "" {
		provider = cfg.Config.BookingProvider
	}
	link := fmt.Sprintf("https://%s.demo.invalid/meet/%s", provider, uuid.NewString())
	c.bookings[req.ClientID] = append(c.bookings[req.ClientID], booking{
		Start:   start,
		End:     end,
		Name:    req.Name,
		Email:   req.Email,
		Purpose: req.Purpose,
		Link:    link,
	})
	c.logger.Info("demo booking created", "client_id", req.ClientID, "start", start.UTC().Format(time.RFC3339))
	writeJSON(w, http.StatusOK, map[string]string{"confirmation_link": link})
}

// conflicts must be called with c.mu held.
func (c *Calendar) conflicts(clientID string, start, end time.Time) bool {
	for _, b := range c.bookings[clientID] {
		if (schedule.BusyInterval{Start: b.Start, End: b.End}).Overlaps(start, end) {
			return true
		}
	}
	return false
}

// suggest steps forward from start looking for a free in-hours slot. It must
// be called with c.mu held.
func (c *Calendar) suggest(clientID string, cfg *widgetcfg.Widget, start time.Time) (time.Time, bool) {
	for i := 1; i <= suggestionTries; i++ {
		candidate := start.Add(time.Duration(i) * suggestionStep)
		if cfg.Policy.CheckHours(candidate) != nil {
			continue
		}
		if !c.conflicts(clientID, candidate, candidate.Add(cfg.Policy.Duration())) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// HandleSummary stores a session transcript.
func (c *Calendar) HandleSummary(w http.ResponseWriter, r *http.Request) {
	var rec SummaryRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(rec.ChatLog) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "chat_log is required"})
		return
	}
	c.mu.Lock()
	c.summaries = append(c.summaries, rec)
	c.mu.Unlock()
	c.logger.Info("demo summary received", "client_id", rec.ClientID, "bytes", len(rec.ChatLog))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleChat answers every question with a canned reply.
func (c *Calendar) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "question is required"})
		return
	}
	cfg, err := c.client(r.Context(), req.ClientID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	answer := fmt.Sprintf("Thanks for asking about %q. Someone from %s will follow up by email.", req.Question, cfg.Config.BrandName)
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// HandleConfig serves a registered widget config as <clientID>.json.
func (c *Calendar) HandleConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(chi.URLParam(r, "file"), ".json")
	if !ok {
		http.NotFound(w, r)
		return
	}
	c.mu.Lock()
	cfg, found := c.clients[id]
	c.mu.Unlock()
	if !found {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Config)
}

func (c *Calendar) authorized(cfg *widgetcfg.Widget, token string) bool {
	return cfg.Config.Token == "" || cfg.Config.Token == token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
