package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName はすべてのログ行に付くservice属性の値。
const ServiceName = "banmen"

// level はSetupDefaultで作ったグローバルロガーの出力レベル。設定の読み込み後にSetLevelで変える。
var level slog.LevelVar

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。未知の値はInfoとして扱い、okにfalseを返す。
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// lvがnilの場合はInfo固定になる。
func Setup(w io.Writer, lv slog.Leveler) *slog.Logger {
	if lv == nil {
		lv = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lv,
	})
	return slog.New(handler).With(slog.String("service", ServiceName))
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, &level))
}

// SetLevel はグローバルロガーの出力レベルを変更する。
func SetLevel(s string) {
	lv, ok := ParseLevel(s)
	level.Set(lv)
	if !ok {
		slog.Warn("unknown LOG_LEVEL, falling back to info", slog.String("log_level", s))
	}
}
