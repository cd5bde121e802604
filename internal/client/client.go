// Package client talks to the game/* HTTP API and keeps a local mirror of one
// player's view of the game.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"blockwars.gg/internal/protocol"
)

type Client struct {
	endpoint   string
	httpClient *http.Client
}

func New(endpoint string, hc *http.Client) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint: %s", endpoint)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{endpoint: strings.TrimRight(u.String(), "/"), httpClient: hc}, nil
}

// APIError is a decoded {"error":{code,message}} response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == code
}

func (c *Client) State(ctx context.Context, playerID string) (protocol.StateResponse, error) {
	var out protocol.StateResponse
	err := c.do(ctx, http.MethodGet, "/game/state"+query(playerID), nil, &out)
	return out, err
}

func (c *Client) Spawn(ctx context.Context) (protocol.SpawnResponse, error) {
	var out protocol.SpawnResponse
	err := c.do(ctx, http.MethodPost, "/game/spawn", nil, &out)
	return out, err
}

func (c *Client) Profile(ctx context.Context, playerID string) (protocol.Player, error) {
	return c.player(ctx, "/game/player-profile"+query(playerID), nil)
}

func (c *Client) Settle(ctx context.Context, playerID string) (protocol.Player, error) {
	return c.player(ctx, "/game/settle"+query(playerID), nil)
}

func (c *Client) Claim(ctx context.Context, playerID, blockID string) (protocol.Player, error) {
	return c.player(ctx, "/game/claim", protocol.ClaimRequest{PlayerID: playerID, BlockID: blockID})
}

func (c *Client) Purchase(ctx context.Context, req protocol.PurchaseRequest) (protocol.Player, error) {
	return c.player(ctx, "/game/purchase", req)
}

func (c *Client) Sell(ctx context.Context, playerID, blockID string) (protocol.Player, error) {
	return c.player(ctx, "/game/sell", protocol.SellRequest{PlayerID: playerID, BlockID: blockID})
}

// Steal returns the attacker after the attempt and whether the block changed hands.
func (c *Client) Steal(ctx context.Context, playerID, blockID string) (protocol.Player, bool, error) {
	var out protocol.PlayerResponse
	if err := c.do(ctx, http.MethodPost, "/game/steal", protocol.StealRequest{PlayerID: playerID, BlockID: blockID}, &out); err != nil {
		return protocol.Player{}, false, err
	}
	return out.Player, out.Stolen != nil && *out.Stolen, nil
}

func (c *Client) player(ctx context.Context, path string, body any) (protocol.Player, error) {
	var out protocol.PlayerResponse
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return protocol.Player{}, err
	}
	return out.Player, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er protocol.ErrorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error.Code != "" {
			return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
		}
		return &APIError{Status: resp.StatusCode, Code: protocol.ErrInternal, Message: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func query(playerID string) string {
	if playerID == "" {
		return ""
	}
	return "?playerId=" + url.QueryEscape(playerID)
}
