package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/banmen/internal/game"
	"github.com/hitoshi/banmen/internal/middleware"
	"github.com/hitoshi/banmen/internal/model"
	"github.com/hitoshi/banmen/internal/session"
)

// GameServiceInterface は対局ハンドラーが必要とするサービスインターフェース。
// session.Serviceが実装する。
type GameServiceInterface interface {
	GameTypes() []model.GameTypeDescriptor
	Create(ctx context.Context, actor string, req session.CreateRequest) (*session.Outcome, error)
	Get(ctx context.Context, id string) (*model.Session, error)
	Move(ctx context.Context, id, actor, move string, offerDraw bool) (*session.Outcome, error)
	Resign(ctx context.Context, id, actor string) (*session.Outcome, error)
	Timeout(ctx context.Context, id, actor string) (*session.Outcome, error)
	OfferDraw(ctx context.Context, id, actor string) (*session.Outcome, error)
	InvokePie(ctx context.Context, id, actor string) (*session.Outcome, error)
	Abandon(ctx context.Context, id, actor string) (*session.Outcome, error)
	Resync(ctx context.Context, id string) (*model.Session, error)
}

// GameHandler は対局操作のHTTPハンドラー。
type GameHandler struct {
	service GameServiceInterface
}

// NewGameHandler はGameHandlerを生成する。
func NewGameHandler(service GameServiceInterface) *GameHandler {
	return &GameHandler{service: service}
}

type participantRequest struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Settings map[string]string `json:"settings,omitempty"`
}

type clockRequest struct {
	InitialSeconds   int  `json:"initial_seconds"`
	IncrementSeconds int  `json:"increment_seconds"`
	MaxSeconds       int  `json:"max_seconds"`
	Hard             bool `json:"hard"`
}

// createGameRequest は対局作成リクエストのボディ。
type createGameRequest struct {
	GameType     string               `json:"game_type"`
	Participants []participantRequest `json:"participants"`
	Clock        *clockRequest        `json:"clock,omitempty"`
	Rated        bool                 `json:"rated"`
	Variants     []string             `json:"variants,omitempty"`
	TournamentID string               `json:"tournament_id,omitempty"`
	EventID      string               `json:"event_id,omitempty"`
}

// moveRequest は着手リクエストのボディ。
type moveRequest struct {
	Move      string `json:"move"`
	OfferDraw bool   `json:"offer_draw"`
}

type gameTypeResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	MinPlayers      int      `json:"min_players"`
	MaxPlayers      int      `json:"max_players"`
	Simultaneous    bool     `json:"simultaneous"`
	Pie             bool     `json:"pie"`
	Rated           bool     `json:"rated"`
	DefaultVariants []string `json:"default_variants,omitempty"`
}

// outcomeResponse は状態遷移のAPIレスポンス。
// 正本の書き込み後に複製が失敗した場合はReplicationErrorに内容を入れて200で返す。
type outcomeResponse struct {
	Session          *model.Session `json:"session"`
	Changed          bool           `json:"changed"`
	Terminated       bool           `json:"terminated"`
	ReplicationError string         `json:"replication_error,omitempty"`
}

// ListGameTypes は登録済みのゲーム種別を返す。
// GET /api/game-types
func (h *GameHandler) ListGameTypes(w http.ResponseWriter, r *http.Request) {
	descs := h.service.GameTypes()
	out := make([]gameTypeResponse, len(descs))
	for i, d := range descs {
		out[i] = gameTypeResponse{
			ID:              d.ID,
			Name:            d.Name,
			MinPlayers:      d.MinPlayers,
			MaxPlayers:      d.MaxPlayers,
			Simultaneous:    d.Capabilities.Has(model.CapSimultaneous),
			Pie:             d.Capabilities.Has(model.CapPie),
			Rated:           d.Capabilities.Has(model.CapRated),
			DefaultVariants: d.DefaultVariants,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateGame は対局を作成する。
// POST /api/games
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	participants := make([]model.Participant, len(req.Participants))
	for i, p := range req.Participants {
		participants[i] = model.Participant{ID: p.ID, Name: p.Name, Settings: p.Settings}
	}
	opts := game.StartOptions{
		Rated:        req.Rated,
		Variants:     req.Variants,
		TournamentID: req.TournamentID,
		EventID:      req.EventID,
	}
	if c := req.Clock; c != nil {
		opts.InitialTime = time.Duration(c.InitialSeconds) * time.Second
		opts.Clock = model.ClockSettings{
			Increment: time.Duration(c.IncrementSeconds) * time.Second,
			Max:       time.Duration(c.MaxSeconds) * time.Second,
			Hard:      c.Hard,
		}
	}

	out, err := h.service.Create(r.Context(), userID, session.CreateRequest{
		GameType:     req.GameType,
		Participants: participants,
		Options:      opts,
	})
	writeOutcome(w, http.StatusCreated, out, err)
}

// GetGame は対局の正本を返す。
// GET /api/games/{id}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Move は着手を適用する。
// POST /api/games/{id}/move
func (h *GameHandler) Move(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	out, err := h.service.Move(r.Context(), chi.URLParam(r, "id"), userID, req.Move, req.OfferDraw)
	writeOutcome(w, http.StatusOK, out, err)
}

// Resign は投了する。
// POST /api/games/{id}/resign
func (h *GameHandler) Resign(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.service.Resign)
}

// Timeout は時間切れを宣言する。
// POST /api/games/{id}/timeout
func (h *GameHandler) Timeout(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.service.Timeout)
}

// OfferDraw は引き分けを提案または受諾する。
// POST /api/games/{id}/draw
func (h *GameHandler) OfferDraw(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.service.OfferDraw)
}

// InvokePie はパイルールを適用する。
// POST /api/games/{id}/pie
func (h *GameHandler) InvokePie(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.service.InvokePie)
}

// Abandon は放置された対局を終局させる。
// POST /api/games/{id}/abandon
func (h *GameHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.service.Abandon)
}

// Resync は対局の非正規化コピーを正本から書き直す。
// POST /api/games/{id}/resync
func (h *GameHandler) Resync(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Resync(r.Context(), chi.URLParam(r, "id"))
	var repErr *session.ReplicationError
	switch {
	case errors.As(err, &repErr) && s != nil:
		writeJSON(w, http.StatusOK, outcomeResponse{Session: s, ReplicationError: repErr.Err.Error()})
	case err != nil:
		handleServiceError(w, err)
	default:
		writeJSON(w, http.StatusOK, outcomeResponse{Session: s})
	}
}

func (h *GameHandler) action(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actor string) (*session.Outcome, error)) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	out, err := fn(r.Context(), chi.URLParam(r, "id"), userID)
	writeOutcome(w, http.StatusOK, out, err)
}

// writeOutcome は状態遷移の結果を書き込む。
// 正本が確定していれば複製の失敗はレスポンスに含めて成功として返す。
func writeOutcome(w http.ResponseWriter, statusCode int, out *session.Outcome, err error) {
	var repErr *session.ReplicationError
	if err != nil && !(errors.As(err, &repErr) && out != nil) {
		handleServiceError(w, err)
		return
	}
	resp := outcomeResponse{
		Session:    out.Session,
		Changed:    out.Changed,
		Terminated: out.Terminated,
	}
	if repErr != nil {
		resp.ReplicationError = repErr.Err.Error()
	}
	writeJSON(w, statusCode, resp)
}
