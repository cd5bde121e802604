package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"blockwars.gg/internal/protocol"
	"blockwars.gg/internal/sim/game"
)

const (
	defaultQueue = 64
	pingEvery    = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
)

// Hub pushes engine events to websocket subscribers. It implements game.Notifier.
// A subscriber that falls behind loses its oldest queued events; the engine never waits.
type Hub struct {
	log     *log.Logger
	welcome func() protocol.WelcomeMsg
	queue   int

	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	dropped atomic.Uint64
	sent    atomic.Uint64
}

type subscriber struct {
	out      chan []byte
	types    map[string]bool
	playerID string
}

// wants reports whether the subscriber asked for this event.
// A player filter keeps events that involve the player plus arena spawns.
func (s *subscriber) wants(ev game.Event) bool {
	if len(s.types) > 0 && !s.types[ev.Type] {
		return false
	}
	if s.playerID == "" || ev.Type == game.EventBlocksSpawned {
		return true
	}
	return ev.PlayerID == s.playerID || ev.TargetID == s.playerID
}

func NewHub(logger *log.Logger, welcome func() protocol.WelcomeMsg) *Hub {
	return &Hub{
		log:     logger,
		welcome: welcome,
		queue:   defaultQueue,
		subs:    map[*subscriber]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (h *Hub) Notify(ev game.Event) error {
	b, err := json.Marshal(ev.Wire())
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !s.wants(ev) {
			continue
		}
		if !sendLatest(s.out, b) {
			h.dropped.Add(1)
		}
		h.sent.Add(1)
	}
	return nil
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts events discarded because a subscriber queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) Sent() uint64 { return h.sent.Load() }

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Handler serves GET /v1/events?types=A,B&playerId=X.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		sub := &subscriber{
			out:      make(chan []byte, h.queue),
			playerID: strings.TrimSpace(r.URL.Query().Get("playerId")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("types")); raw != "" {
			sub.types = map[string]bool{}
			for _, t := range strings.Split(raw, ",") {
				if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
					sub.types[t] = true
				}
			}
		}

		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if h.welcome != nil {
			if err := writeJSON(conn, h.welcome()); err != nil {
				return
			}
		}
		h.add(sub)
		defer h.remove(sub)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			ping := time.NewTicker(pingEvery)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
						cancel()
						return
					}
				case b := <-sub.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: subscribers only talk control frames; anything else is ignored.
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		if h.log != nil {
			h.log.Printf("events subscriber left: %s", r.RemoteAddr)
		}
	}
}

// sendLatest enqueues b, evicting the oldest message when the queue is full.
// It reports false when something was dropped.
func sendLatest(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
	return false
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
