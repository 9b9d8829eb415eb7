package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiClient はbanmenのHTTP APIを呼び出す運用向けクライアント。
type apiClient struct {
	baseURL string
	token   string
	userID  string
	http    *http.Client
}

func newAPIClient(baseURL, token, userID string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		userID:  userID,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// apiError はAPIのエラーレスポンス。
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// do はリクエストを送り、レスポンスのJSONをoutにデコードする。outがnilならボディを捨てる。
func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *apiClient) gameTypes(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/game-types", nil, &out)
	return out, err
}

func (c *apiClient) game(ctx context.Context, id string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/games/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *apiClient) resync(ctx context.Context, id string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodPost, "/api/games/"+url.PathEscape(id)+"/resync", nil, &out)
	return out, err
}

func (c *apiClient) myGames(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/players/me/games", nil, &out)
	return out, err
}

func (c *apiClient) ratings(ctx context.Context, gameType string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/ratings/"+url.PathEscape(gameType), nil, &out)
	return out, err
}

func (c *apiClient) completed(ctx context.Context, gameType, player string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if gameType != "" {
		q.Set("game_type", gameType)
	}
	if player != "" {
		q.Set("player_id", player)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/completed", q, &out)
	return out, err
}
