// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/banmen/internal/model"
)

// UserIDHeader はゲートウェイが認証済みプレイヤーIDを渡すヘッダー。
const UserIDHeader = "X-User-ID"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// NewIdentityMiddleware は認証ゲートウェイ経由のリクエストからプレイヤーIDを読み取るミドルウェアを返す。
// gatewayTokenが空でなければ Authorization: Bearer <token> の一致を要求する。
// プレイヤーIDをリクエストコンテキストに注入し、欠落時は401を返す。
func NewIdentityMiddleware(gatewayToken string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gatewayToken != "" {
				token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
				if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(gatewayToken)) != 1 {
					slog.Warn("gateway token mismatch",
						slog.String("path", r.URL.Path),
					)
					WriteUnauthorized(w)
					return
				}
			}

			userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
			if !model.ValidPlayerID(userID) {
				WriteUnauthorized(w)
				return
			}
			if info := requestInfoFrom(r.Context()); info != nil {
				info.userID = userID
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// IDミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
