package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/banmen/internal/middleware"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func writeUnauthorized(w http.ResponseWriter) {
	middleware.WriteUnauthorized(w)
}

func writeInvalidRequest(w http.ResponseWriter) {
	middleware.WriteInvalidRequest(w)
}

// handleServiceError はサービス層から返されたエラーを統一エラーフォーマットで返す。
// ステータスコードの対応はmiddleware.StatusForCodeにある。
func handleServiceError(w http.ResponseWriter, err error) {
	middleware.WriteError(w, err)
}
