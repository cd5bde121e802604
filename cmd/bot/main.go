package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"blockwars.gg/internal/client"
	"blockwars.gg/internal/protocol"
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:8080", "server base url")
		name    = flag.String("name", "bot", "player id prefix")
		n       = flag.Int("n", 1, "number of racing players")
		sell    = flag.Bool("sell", true, "sell the cheapest block when the collection is full")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	api, err := client.New(*baseURL, nil)
	if err != nil {
		logger.Fatalf("client: %v", err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	caches := make([]*client.Cache, 0, *n)
	for i := 0; i < *n; i++ {
		id := *name
		if *n > 1 {
			id = fmt.Sprintf("%s-%d", *name, i+1)
		}
		if _, err := api.Profile(ctx, id); err != nil {
			logger.Fatalf("profile %s: %v", id, err)
		}
		c := client.NewCache(api, id)
		if err := c.Refresh(ctx); err != nil {
			logger.Fatalf("refresh %s: %v", id, err)
		}
		caches = append(caches, c)
	}

	wsURL, err := eventsURL(*baseURL)
	if err != nil {
		logger.Fatalf("events url: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME protocol=%s catalog=%s", w.ProtocolVersion, w.CatalogDigest)

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			for _, c := range caches {
				c.ApplyEvent(ev)
			}
			if ev.Event != protocol.EventBlocksSpawned {
				continue
			}
			for _, r := range race(ctx, caches, ev.Blocks, *sell) {
				logger.Printf("%s", r)
			}
		}
	}
}

// eventsURL maps the HTTP base url to the notification stream, spawns only.
func eventsURL(base string) (string, error) {
	base = strings.TrimSpace(base)
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/events"
	u.RawQuery = url.Values{"types": {protocol.EventBlocksSpawned}}.Encode()
	return u.String(), nil
}

type outcome struct {
	PlayerID string
	BlockID  string
	Won      bool
	Err      error
}

func (o outcome) String() string {
	switch {
	case o.Won:
		return fmt.Sprintf("%s claimed %s", o.PlayerID, o.BlockID)
	case client.IsCode(o.Err, protocol.ErrAlreadyClaimed):
		return fmt.Sprintf("%s lost %s", o.PlayerID, o.BlockID)
	default:
		return fmt.Sprintf("%s claim %s: %v", o.PlayerID, o.BlockID, o.Err)
	}
}

// race has every player try every spawned block at once, highest value first.
func race(ctx context.Context, players []*client.Cache, blocks []protocol.Block, sellWhenFull bool) []outcome {
	ordered := append([]protocol.Block(nil), blocks...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Value > ordered[j].Value })

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var (
		mu  sync.Mutex
		out []outcome
		wg  sync.WaitGroup
	)
	for _, c := range players {
		wg.Add(1)
		go func(c *client.Cache) {
			defer wg.Done()
			for _, b := range ordered {
				if sellWhenFull {
					makeRoom(ctx, c)
				}
				_, err := c.Claim(ctx, b.ID)
				mu.Lock()
				out = append(out, outcome{PlayerID: c.PlayerID(), BlockID: b.ID, Won: err == nil, Err: err})
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	return out
}

// makeRoom sells the least valuable block when the collection is at the cap.
func makeRoom(ctx context.Context, c *client.Cache) {
	p := c.Player()
	if len(p.OwnedBlocks) < 12 {
		return
	}
	cheapest := p.OwnedBlocks[0]
	for _, b := range p.OwnedBlocks[1:] {
		if b.Value < cheapest.Value {
			cheapest = b
		}
	}
	_, _ = c.Sell(ctx, cheapest.ID, 0)
}
