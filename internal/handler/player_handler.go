package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/banmen/internal/middleware"
	"github.com/hitoshi/banmen/internal/model"
	"github.com/hitoshi/banmen/internal/session"
)

// PlayerServiceInterface はプレイヤー向けの一覧・レーティング参照に必要なサービスインターフェース。
type PlayerServiceInterface interface {
	PlayerGames(ctx context.Context, playerID string) ([]model.Summary, error)
	PlayerRatings(ctx context.Context, playerID string) (map[string]model.Rating, error)
	DismissGame(ctx context.Context, playerID, sessionID string) ([]model.Summary, error)
	Ratings(ctx context.Context, gameType string) ([]*model.RatingEntry, error)
	Completed(ctx context.Context, q session.CompletedQuery) ([]*model.CompletedEntry, error)
}

// PlayerHandler はプレイヤーの対局一覧・レーティング・終局済み対局のHTTPハンドラー。
type PlayerHandler struct {
	service PlayerServiceInterface
}

// NewPlayerHandler はPlayerHandlerを生成する。
func NewPlayerHandler(service PlayerServiceInterface) *PlayerHandler {
	return &PlayerHandler{service: service}
}

// ListMyGames は認証済みプレイヤーの対局一覧を返す。
// GET /api/players/me/games
func (h *PlayerHandler) ListMyGames(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	games, err := h.service.PlayerGames(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// DismissGame は終局済み対局を自分の一覧から外す。
// DELETE /api/players/me/games/{id}
func (h *PlayerHandler) DismissGame(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	games, err := h.service.DismissGame(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// MyRatings は認証済みプレイヤーのゲーム種別ごとのレーティングを返す。
// GET /api/players/me/ratings
func (h *PlayerHandler) MyRatings(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	ratings, err := h.service.PlayerRatings(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ratings)
}

// ListRatings はゲーム種別のレーティング表を返す。
// GET /api/ratings/{gameType}
func (h *PlayerHandler) ListRatings(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Ratings(r.Context(), chi.URLParam(r, "gameType"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListCompleted は終局済み対局をゲーム種別・参加者で絞り込んで返す。
// GET /api/completed?game_type=...&player_id=...&limit=...
func (h *PlayerHandler) ListCompleted(w http.ResponseWriter, r *http.Request) {
	q := session.CompletedQuery{
		GameType: r.URL.Query().Get("game_type"),
		PlayerID: r.URL.Query().Get("player_id"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			handleServiceError(w, model.NewInvalidSessionError("limitは1以上の整数で指定してください"))
			return
		}
		q.Limit = n
	}
	entries, err := h.service.Completed(r.Context(), q)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
