// Package api serves the game/* HTTP endpoints over the engine.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"blockwars.gg/internal/protocol"
	"blockwars.gg/internal/sim/game"
	"blockwars.gg/internal/sim/model"
)

const maxBodyBytes = 64 * 1024

type Server struct {
	eng     *game.Engine
	log     *log.Logger
	limiter *Limiter
}

func NewServer(eng *game.Engine, logger *log.Logger) *Server {
	rl := eng.Tuning().RateLimits
	return &Server{
		eng:     eng,
		log:     logger,
		limiter: NewLimiter(rl.ActionsPerSecond, rl.Burst, eng.Now),
	}
}

// Register mounts every game endpoint on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/game/state", s.handleState)
	mux.HandleFunc("/game/spawn", s.handleSpawn)
	mux.HandleFunc("/game/claim", s.handleClaim)
	mux.HandleFunc("/game/player-profile", s.handleProfile)
	mux.HandleFunc("/game/purchase", s.handlePurchase)
	mux.HandleFunc("/game/steal", s.handleSteal)
	mux.HandleFunc("/game/sell", s.handleSell)
	mux.HandleFunc("/game/settle", s.handleSettle)
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	if !allowMethod(rw, r, http.MethodGet) {
		return
	}
	st, err := s.eng.State(strings.TrimSpace(r.URL.Query().Get("playerId")))
	if err != nil {
		s.writeError(rw, err)
		return
	}
	resp := protocol.StateResponse{
		ServerTime:  st.ServerTime,
		NextSpawnAt: st.NextSpawnAt,
		Pool:        game.BlocksWire(st.Pool),
		Leaderboard: make([]protocol.LeaderboardEntry, 0, len(st.Leaderboard)),
	}
	for _, e := range st.Leaderboard {
		resp.Leaderboard = append(resp.Leaderboard, protocol.LeaderboardEntry{
			PlayerID:        e.PlayerID,
			Level:           e.Level,
			Coins:           e.Coins,
			CollectionValue: e.CollectionValue,
			Blocks:          e.Blocks,
		})
	}
	if st.Player != nil {
		p := game.PlayerWire(st.Player)
		resp.Player = &p
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleSpawn(rw http.ResponseWriter, r *http.Request) {
	if !allowMethod(rw, r, http.MethodPost) {
		return
	}
	spawned := s.eng.Spawn()
	writeJSON(rw, http.StatusOK, protocol.SpawnResponse{
		Spawned:     game.BlocksWire(spawned),
		Pool:        game.BlocksWire(s.eng.Pool()),
		NextSpawnAt: s.eng.NextSpawnAt(),
	})
}

func (s *Server) handleClaim(rw http.ResponseWriter, r *http.Request) {
	var req protocol.ClaimRequest
	if !s.begin(rw, r, &req, func() string { return req.PlayerID }) {
		return
	}
	p, err := s.eng.Claim(req.PlayerID, req.BlockID)
	s.writePlayer(rw, p, err)
}

func (s *Server) handleProfile(rw http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("playerId"))
	if !s.begin(rw, r, nil, func() string { return id }) {
		return
	}
	p, err := s.eng.Profile(id)
	s.writePlayer(rw, p, err)
}

func (s *Server) handlePurchase(rw http.ResponseWriter, r *http.Request) {
	var req protocol.PurchaseRequest
	if !s.begin(rw, r, &req, func() string { return req.PlayerID }) {
		return
	}
	p, err := s.eng.Purchase(req.PlayerID, req.Rarity, req.Chain, req.Type)
	s.writePlayer(rw, p, err)
}

func (s *Server) handleSteal(rw http.ResponseWriter, r *http.Request) {
	var req protocol.StealRequest
	if !s.begin(rw, r, &req, func() string { return req.PlayerID }) {
		return
	}
	res, err := s.eng.Steal(req.PlayerID, req.BlockID)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	stolen := res.Success
	writeJSON(rw, http.StatusOK, protocol.PlayerResponse{Player: game.PlayerWire(res.Attacker), Stolen: &stolen})
}

func (s *Server) handleSell(rw http.ResponseWriter, r *http.Request) {
	var req protocol.SellRequest
	if !s.begin(rw, r, &req, func() string { return req.PlayerID }) {
		return
	}
	p, err := s.eng.Sell(req.PlayerID, req.BlockID)
	s.writePlayer(rw, p, err)
}

func (s *Server) handleSettle(rw http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("playerId"))
	if !s.begin(rw, r, nil, func() string { return id }) {
		return
	}
	p, err := s.eng.Settle(id)
	s.writePlayer(rw, p, err)
}

// begin checks the method, decodes the body into req (when non-nil) and applies
// the per-player rate limit. It writes the error response itself and reports
// whether the handler should continue.
func (s *Server) begin(rw http.ResponseWriter, r *http.Request, req any, playerID func() string) bool {
	if !allowMethod(rw, r, http.MethodPost) {
		return false
	}
	if req != nil {
		if err := decodeBody(r, req); err != nil {
			writeErrorCode(rw, protocol.ErrBadRequest, err.Error())
			return false
		}
	}
	id := playerID()
	if id == "" {
		writeErrorCode(rw, protocol.ErrBadRequest, "missing playerId")
		return false
	}
	if !s.limiter.Allow(id) {
		secs := int(math.Ceil(s.limiter.RetryAfter().Seconds()))
		rw.Header().Set("Retry-After", strconv.Itoa(secs))
		writeErrorCode(rw, protocol.ErrRateLimited, "too many requests for "+id)
		return false
	}
	return true
}

func (s *Server) writePlayer(rw http.ResponseWriter, p *model.Player, err error) {
	if err != nil {
		s.writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.PlayerResponse{Player: game.PlayerWire(p)})
}

func (s *Server) writeError(rw http.ResponseWriter, err error) {
	code := game.Code(err)
	msg := err.Error()
	if code == protocol.ErrInternal {
		if s.log != nil {
			s.log.Printf("api: %v", err)
		}
		msg = "internal error"
	}
	writeErrorCode(rw, code, msg)
}

func writeErrorCode(rw http.ResponseWriter, code, msg string) {
	writeJSON(rw, protocol.HTTPStatus(code), protocol.ErrorResponse{Error: protocol.ErrorBody{Code: code, Message: msg}})
}

func allowMethod(rw http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	rw.Header().Set("Allow", method)
	writeJSON(rw, http.StatusMethodNotAllowed, protocol.ErrorResponse{Error: protocol.ErrorBody{
		Code:    protocol.ErrBadRequest,
		Message: fmt.Sprintf("method %s not allowed", r.Method),
	}})
	return false
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Cache-Control", "no-store")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
