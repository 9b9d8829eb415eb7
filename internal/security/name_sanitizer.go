package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// MaxDisplayNameRunes は表示名の最大文字数。
const MaxDisplayNameRunes = 64

// NameSanitizer は参加者の表示名からHTMLと制御文字を取り除く。
// 表示名は通知本文やWebSocketのイベントにそのまま埋め込まれる。
type NameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はタグを一切許可しないポリシーでNameSanitizerを生成する。
func NewNameSanitizer() *NameSanitizer {
	return &NameSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去したプレーンテキストの表示名を返す。
// bluemondayがエスケープした文字実体は元に戻し、前後の空白を除いて最大文字数で切り詰める。
func (s *NameSanitizer) Sanitize(name string) string {
	plain := html.UnescapeString(s.policy.Sanitize(name))
	plain = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, plain)
	plain = strings.TrimSpace(plain)
	if runes := []rune(plain); len(runes) > MaxDisplayNameRunes {
		plain = string(runes[:MaxDisplayNameRunes])
	}
	return plain
}
