package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/convo-widget/internal/calendar"
	"github.com/wolfman30/convo-widget/internal/dialogue"
	"github.com/wolfman30/convo-widget/internal/negotiator"
	"github.com/wolfman30/convo-widget/internal/observability/metrics"
	"github.com/wolfman30/convo-widget/internal/ratelimit"
	"github.com/wolfman30/convo-widget/internal/schedule"
	"github.com/wolfman30/convo-widget/internal/widget"
	"github.com/wolfman30/convo-widget/internal/widgetcfg"
	"github.com/wolfman30/convo-widget/pkg/logging"
)

const (
	msgSlowDown      = "Too many messages. Please slow down."
	msgBusy          = "Still working on your last message."
	msgUnknownClient = "Unknown widget client."
)

// ConfigSource resolves the widget configuration for a client.
type ConfigSource interface {
	Get(ctx context.Context, clientID string) (*widgetcfg.Widget, error)
}

// SlotLister reads open slots from the calendar service.
type SlotLister interface {
	FetchSlots(ctx context.Context, acct calendar.Account, date time.Time) []time.Time
	FetchBusy(ctx context.Context, acct calendar.Account, date time.Time) []schedule.BusyInterval
}

// Options wires a Handler.
type Options struct {
	Configs         ConfigSource
	Calendar        widget.CalendarAPI
	Archiver        widget.TranscriptArchiver
	Slots           SlotLister
	Parser          negotiator.TimeParser
	Limiter         ratelimit.Limiter
	Metrics         *metrics.BookingMetrics
	Logger          *logging.Logger
	DefaultClientID string
	HistoryTurns    int
	SummaryTimeout  time.Duration
	Now             func() time.Time
}

// Handler hosts one widget controller per WebSocket connection.
type Handler struct {
	opts   Options
	logger *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*wsConn // sessionID -> active connection
}

type wsConn struct {
	conn       *websocket.Conn
	controller *widget.Controller
	loc        *time.Location
	now        func() time.Time
	writeMu    sync.Mutex
	done       chan struct{}
}

// NewHandler creates a web chat handler.
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*wsConn),
	}
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and runs a widget session until the
// visitor disconnects.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		clientID = h.opts.DefaultClientID
	}
	cfg, err := h.opts.Configs.Get(r.Context(), clientID)
	if err != nil {
		h.logger.Warn("webchat: client config unavailable", "client_id", clientID, "error", err)
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: msgUnknownClient})
		return
	}

	sessionID := generateSessionID()
	loc := widget.ResolveLocation(r.URL.Query().Get("tz"), cfg.Location)

	wsc := &wsConn{conn: conn, loc: loc, now: h.opts.Now, done: make(chan struct{})}
	_ = wsc.write(OutboundMessage{Type: "session", SessionID: sessionID, Timezone: loc.String()})

	wsc.controller = widget.New(widget.Config{
		Session:        widget.NewSession(sessionID, cfg.Config.ClientID, loc, h.opts.HistoryTurns),
		Widget:         cfg,
		Parser:         h.opts.Parser,
		Calendar:       h.opts.Calendar,
		Sender:         wsc,
		Archiver:       h.opts.Archiver,
		Logger:         h.logger,
		Metrics:        h.opts.Metrics,
		SummaryTimeout: h.opts.SummaryTimeout,
		Now:            h.opts.Now,
	})

	h.mu.Lock()
	h.sessions[sessionID] = wsc
	h.mu.Unlock()
	h.opts.Metrics.SessionOpened()

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := startLoop(ctx, wsc.controller.Run, wsc.close)

	defer func() {
		cancel()
		if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Warn("webchat: session loop ended", "session_id", sessionID, "error", err)
		}
		wsc.controller.Close()

		h.mu.Lock()
		if h.sessions[sessionID] == wsc {
			delete(h.sessions, sessionID)
		}
		h.mu.Unlock()
		close(wsc.done)
		h.opts.Metrics.SessionClosed()
		h.logger.Info("webchat: connection closed", "client_id", clientID, "session_id", sessionID)
	}()

	h.logger.Info("webchat: connection opened", "client_id", clientID, "session_id", sessionID, "timezone", loc.String())

	key := "ws:" + clientKey(r)
	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: receive ended", "session_id", sessionID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = wsc.write(OutboundMessage{Type: "pong"})
			continue
		}
		if !h.allow(r.Context(), key) {
			_ = wsc.write(OutboundMessage{Type: "error", Text: msgSlowDown})
			continue
		}
		h.deliver(wsc, msg)
	}
}

func (h *Handler) allow(ctx context.Context, key string) bool {
	if h.opts.Limiter == nil {
		return true
	}
	decision, err := h.opts.Limiter.Allow(ctx, key)
	if err != nil {
		h.logger.Warn("webchat: rate limiter error", "error", err)
		return true
	}
	if !decision.Allowed {
		h.opts.Metrics.ObserveRateLimited()
	}
	return decision.Allowed
}

// deliver hands a frame to the session inbox. Malformed frames are dropped
// with an error frame back to the widget.
func (h *Handler) deliver(wsc *wsConn, msg InboundMessage) error {
	in, err := toInput(msg, wsc.loc)
	if err != nil {
		h.logger.Debug("webchat: dropped frame", "error", err)
		_ = wsc.write(OutboundMessage{Type: "error", Text: err.Error()})
		return err
	}
	if in.Kind == dialogue.InputMessage && strings.TrimSpace(in.Text) == "" {
		return nil
	}
	if err := wsc.controller.Inbox().Deliver(in); err != nil {
		_ = wsc.write(OutboundMessage{Type: "error", Text: msgBusy})
		return err
	}
	return nil
}

// Send implements widget.Sender.
func (c *wsConn) Send(ctx context.Context, msg dialogue.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(fromMessage(msg, c.loc, c.now()))
}

func (c *wsConn) write(msg OutboundMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if msg.Timestamp == "" && msg.Type != "pong" {
		msg.Timestamp = c.now().UTC().Format(time.RFC3339)
	}
	return websocket.JSON.Send(c.conn, msg)
}

// close unblocks the reader when the session loop ends on its own.
func (c *wsConn) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.Close()
}

// startLoop runs the session loop in its own goroutine. A loop that exits
// before ctx is cancelled (a failed send) closes the connection so the
// pending Receive returns.
func startLoop(ctx context.Context, run func(context.Context) error, closeConn func()) <-chan error {
	done := make(chan error, 1)
	go func() {
		err := run(ctx)
		if ctx.Err() == nil {
			closeConn()
		}
		done <- err
	}()
	return done
}

// ActiveSessions reports how many WebSocket sessions are live.
func (h *Handler) ActiveSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HandleMessage is the HTTP fallback for sending a frame to a live session.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = "message"
	}

	h.mu.RLock()
	wsc, ok := h.sessions[req.SessionID]
	h.mu.RUnlock()
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	if err := h.deliver(wsc, req); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, dialogue.ErrInboxFull) {
			status = http.StatusTooManyRequests
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":     "delivered",
		"session_id": req.SessionID,
	})
}

// HandleSlots lists open slots for a client and day so the widget can render
// a date picker before a booking starts. Server-computed slots are used when
// the calendar service returns them; otherwise they are computed from busy
// intervals and the client's hours. Past slots are dropped.
func (h *Handler) HandleSlots(w http.ResponseWriter, r *http.Request) {
	if h.opts.Slots == nil {
		http.Error(w, "slot listing not configured", http.StatusNotImplemented)
		return
	}
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		clientID = h.opts.DefaultClientID
	}
	cfg, err := h.opts.Configs.Get(r.Context(), clientID)
	if err != nil {
		http.Error(w, "unknown client", http.StatusNotFound)
		return
	}
	loc := widget.ResolveLocation(r.URL.Query().Get("tz"), cfg.Location)
	day, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("date"), loc)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	acct := calendar.Account{ClientID: cfg.Config.ClientID, Token: cfg.Config.Token}
	slots := h.opts.Slots.FetchSlots(r.Context(), acct, day)
	source := "calendar"
	if len(slots) == 0 {
		slots = schedule.ComputeSlots(day, h.opts.Slots.FetchBusy(r.Context(), acct, day), cfg.Policy)
		source = "computed"
	}

	now := h.opts.Now()
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if s.Before(now) {
			continue
		}
		out = append(out, s.In(loc).Format(time.RFC3339))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"date":     day.Format("2006-01-02"),
		"timezone": loc.String(),
		"source":   source,
		"slots":    out,
	})
}

// clientKey identifies the visitor for rate limiting.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
