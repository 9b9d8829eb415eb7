package handler

import (
	"net/http"

	"golang.org/x/text/language"

	"github.com/hitoshi/banmen/internal/middleware"
	"github.com/hitoshi/banmen/internal/notify"
)

// WSServer はWebSocket接続を受け付ける通知ハブ。notify.Hubが実装する。
type WSServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, playerID string, lang language.Tag)
}

// WSHandler は対局通知のWebSocketハンドラー。
type WSHandler struct {
	server      WSServer
	defaultLang language.Tag
}

// NewWSHandler はWSHandlerを生成する。
func NewWSHandler(server WSServer, defaultLang language.Tag) *WSHandler {
	return &WSHandler{server: server, defaultLang: defaultLang}
}

// Connect は認証済みプレイヤーのWebSocket接続を確立する。
// 通知文の言語は ?lang= で指定し、未指定ならAccept-Languageを参照する。
// GET /ws
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	lang := notify.ParseLanguage(r.URL.Query().Get("lang"), h.defaultLang)
	if r.URL.Query().Get("lang") == "" {
		if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil && len(tags) > 0 {
			lang = tags[0]
		}
	}
	h.server.ServeWS(w, r, userID, lang)
}
