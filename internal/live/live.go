// Package live drives a mounted homepage over a WebSocket: the browser reports its
// viewport width and hover state, the server answers with layout mode changes, the
// assembled featured plan and carousel image changes.
package live

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/carousel"
	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/commerce"
	"finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/observability"
	"finitefield.org/storefront/internal/sections"
	"finitefield.org/storefront/internal/viewport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1024
	sendBuffer     = 64
)

// Message types exchanged over the channel.
const (
	TypeViewport = "viewport"
	TypeHover    = "hover"
	TypeMode     = "mode"
	TypePlan     = "plan"
	TypeImage    = "image"
)

// Inbound is a client to server message. A viewport message with a null width means the
// viewport cannot be measured.
type Inbound struct {
	Type   string   `json:"type"`
	Width  *float64 `json:"width,omitempty"`
	Key    string   `json:"key,omitempty"`
	Active bool     `json:"active,omitempty"`
}

// Message is a server to client message.
type Message struct {
	Type     string        `json:"type"`
	Session  string        `json:"session,omitempty"`
	Mode     viewport.Mode `json:"mode,omitempty"`
	Featured []PlanEntry   `json:"featured,omitempty"`
	Key      string        `json:"key,omitempty"`
	Index    *int          `json:"index,omitempty"`
	URL      string        `json:"url,omitempty"`
}

// PlanEntry describes one featured card of the current plan.
type PlanEntry struct {
	Key      string `json:"key"`
	Variant  string `json:"variant"`
	Carousel string `json:"carousel"`
}

// Options configures the live handler.
type Options struct {
	Storefront commerce.Storefront
	Interval   time.Duration
	// OriginAllowed validates the Origin header; nil allows same-host origins only.
	OriginAllowed func(origin string, r *http.Request) bool
	// Ticker overrides the carousel ticker source.
	Ticker carousel.TickerFunc
}

// Handler upgrades GET /live/home and runs one page mount per connection.
type Handler struct {
	opts     Options
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// NewHandler builds the live channel handler.
func NewHandler(opts Options) *Handler {
	if opts.Interval <= 0 {
		opts.Interval = carousel.DefaultInterval
	}
	h := &Handler{opts: opts, sessions: map[string]*session{}}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  maxMessageSize,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if opts.OriginAllowed != nil {
				return opts.OriginAllowed(origin, r)
			}
			return sameHost(origin, r.Host)
		},
	}
	return h
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

// Active returns the number of mounted pages.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close unmounts every page and refuses new connections.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	open := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()
	for _, s := range open {
		s.unmount()
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	lang := middleware.Lang(r)
	cols, err := h.opts.Storefront.Collections(r.Context(), lang)
	if err != nil {
		logger.Warn("live: load collections", zap.Error(err))
		http.Error(w, "catalog unavailable", http.StatusBadGateway)
		return
	}
	width, measured := viewport.ParseWidth(r.URL.Query().Get("w"))
	if !measured {
		width, measured = middleware.Viewport(r)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered the client
		logger.Warn("live: upgrade failed", zap.Error(err))
		return
	}

	s := &session{
		id:         uuid.NewString(),
		conn:       conn,
		home:       catalog.SplitHomepage(cols),
		classifier: viewport.NewClassifierFromHint(width, measured),
		interval:   h.opts.Interval,
		ticker:     h.opts.Ticker,
		send:       make(chan Message, sendBuffer),
		carousels:  map[string]*carousel.Carousel{},
	}
	s.logger = logger.With(zap.String("live_session", s.id))
	s.ctx, s.cancel = context.WithCancel(context.Background())

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, s.id)
		h.mu.Unlock()
	}()

	s.run()
}

// session is one mounted page.
type session struct {
	id         string
	conn       *websocket.Conn
	home       catalog.Homepage
	classifier *viewport.Classifier
	interval   time.Duration
	ticker     carousel.TickerFunc
	logger     *zap.Logger
	send       chan Message

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	carousels   map[string]*carousel.Carousel
	unsubscribe func()
	unmounted   bool
	writerDone  chan struct{}
	unmountOnce sync.Once
}

func (s *session) run() {
	s.writerDone = make(chan struct{})
	go s.writePump()
	unsubscribe := s.classifier.Subscribe(s.onMode)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	s.readPump()
	s.unmount()
}

// onMode remounts the featured carousels for a new layout mode.
func (s *session) onMode(mode viewport.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unmounted {
		return
	}
	s.stopCarouselsLocked()
	s.enqueue(Message{Type: TypeMode, Session: s.id, Mode: mode})

	plan := sections.Assemble(s.home.Featured, s.home.NewArrivals, s.home.Rest, mode)
	msg := Message{Type: TypePlan, Mode: mode, Featured: []PlanEntry{}}
	if fs, ok := plan.Section(sections.KindFeatured); ok {
		for _, e := range fs.Entries {
			if e.Product == nil {
				continue
			}
			key := e.Key()
			msg.Featured = append(msg.Featured, PlanEntry{Key: key, Variant: string(e.Variant), Carousel: string(e.Carousel)})
			opts := []carousel.Option{carousel.WithInterval(s.interval), carousel.OnChange(s.onImage)}
			if s.ticker != nil {
				opts = append(opts, carousel.WithTicker(s.ticker))
			}
			s.carousels[key] = carousel.New(key, e.Product.DisplayImages(), e.Carousel, opts...)
		}
	}
	s.enqueue(msg)
	for _, c := range s.carousels {
		c.Start(s.ctx)
	}
}

// onImage runs under the carousel lock; it only queues.
func (s *session) onImage(ev carousel.Event) {
	idx := ev.Index
	s.enqueue(Message{Type: TypeImage, Key: ev.Key, Index: &idx, URL: ev.Image.URL})
}

// enqueue never blocks. A full buffer drops image events, which the next index change
// supersedes; losing a mode or plan message would leave the page on a stale layout, so
// the session ends instead and the client remounts.
func (s *session) enqueue(m Message) {
	if s.ctx.Err() != nil {
		return
	}
	select {
	case s.send <- m:
		return
	default:
	}
	if m.Type == TypeImage {
		s.logger.Debug("live: send buffer full, dropping image", zap.String("key", m.Key))
		return
	}
	s.logger.Warn("live: send buffer full, ending session", zap.String("type", m.Type))
	s.cancel()
}

func (s *session) stopCarouselsLocked() {
	for key, c := range s.carousels {
		c.Stop()
		delete(s.carousels, key)
	}
}

func (s *session) hover(key string, active bool) {
	s.mu.Lock()
	c, ok := s.carousels[key]
	s.mu.Unlock()
	if ok {
		c.SetHover(active)
	}
}

func (s *session) handle(raw []byte) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		s.logger.Debug("live: malformed message", zap.Error(err))
		return
	}
	switch in.Type {
	case TypeViewport:
		if in.Width == nil || math.IsNaN(*in.Width) || *in.Width <= 0 {
			s.classifier.Unmeasured()
			return
		}
		s.classifier.Observe(int(math.Floor(*in.Width)))
	case TypeHover:
		s.hover(in.Key, in.Active)
	default:
		s.logger.Debug("live: unknown message type", zap.String("type", in.Type))
	}
}

func (s *session) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Info("live: connection closed", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.handle(raw)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(s.writerDone)
	}()
	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			// unblocks the read pump when the session ends from this side
			_ = s.conn.Close()
			return
		case m := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(m); err != nil {
				s.logger.Debug("live: write failed", zap.Error(err))
				s.cancel()
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				_ = s.conn.Close()
				return
			}
		}
	}
}

// unmount detaches the page: no mode callbacks and no image events after it returns.
func (s *session) unmount() {
	s.unmountOnce.Do(func() {
		s.mu.Lock()
		unsubscribe := s.unsubscribe
		s.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		s.mu.Lock()
		s.unmounted = true
		s.stopCarouselsLocked()
		s.mu.Unlock()
		s.cancel()
		if s.writerDone != nil {
			<-s.writerDone
		}
		_ = s.conn.Close()
	})
}
