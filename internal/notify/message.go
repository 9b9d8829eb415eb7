package notify

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// メッセージのキー。英語の書式をそのままキーに使う。
const (
	msgTurn     = "%[1]s: %[2]s to move (move %[3]d)"
	msgWaiting  = "%[1]s: waiting for %[2]d players"
	msgWon      = "%[1]s finished: %[2]s won"
	msgDraw     = "%[1]s finished in a draw between %[2]s"
	msgNoResult = "%[1]s finished with no result"
)

var translations = map[language.Tag]map[string]string{
	language.English: {
		msgTurn:     msgTurn,
		msgWaiting:  msgWaiting,
		msgWon:      msgWon,
		msgDraw:     msgDraw,
		msgNoResult: msgNoResult,
	},
	language.Japanese: {
		msgTurn:     "%[1]s: %[2]sさんの手番です（%[3]d手目）",
		msgWaiting:  "%[1]s: %[2]d人の着手待ちです",
		msgWon:      "%[1]sが終局しました: %[2]sさんの勝ち",
		msgDraw:     "%[1]sは%[2]sの引き分けで終局しました",
		msgNoResult: "%[1]sは勝者なしで終局しました",
	},
}

// Renderer はイベントを指定された言語の短い文面にする。
// 言語はプロセス全体の状態ではなく、呼び出しごとに引数で受け取る。
type Renderer struct {
	cat       *catalog.Builder
	supported []language.Tag
	matcher   language.Matcher
}

// NewRenderer は英語と日本語の文面を持つRendererを生成する。
func NewRenderer() *Renderer {
	supported := []language.Tag{language.English, language.Japanese}
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for _, tag := range supported {
		for key, msg := range translations[tag] {
			// キーと書式は定数なので失敗しない
			_ = b.SetString(tag, key, msg)
		}
	}
	return &Renderer{cat: b, supported: supported, matcher: language.NewMatcher(supported)}
}

// Match は対応言語の中からtagに最も近いものを返す。
func (r *Renderer) Match(tag language.Tag) language.Tag {
	_, idx, _ := r.matcher.Match(tag)
	return r.supported[idx]
}

// Render はイベントをtagの言語で文面にする。
func (r *Renderer) Render(tag language.Tag, ev Event) string {
	p := message.NewPrinter(r.Match(tag), message.Catalog(r.cat))
	sum := ev.Summary
	name := func(idx int) string {
		if idx < 0 || idx >= len(sum.Participants) {
			return "?"
		}
		return sum.Participants[idx].Name
	}

	if ev.Type == EventSessionCompleted {
		switch len(sum.Winners) {
		case 0:
			return p.Sprintf(msgNoResult, sum.GameType)
		case 1:
			return p.Sprintf(msgWon, sum.GameType, name(sum.Winners[0]-1))
		default:
			names := make([]string, len(sum.Winners))
			for i, w := range sum.Winners {
				names[i] = name(w - 1)
			}
			return p.Sprintf(msgDraw, sum.GameType, strings.Join(names, ", "))
		}
	}

	if sum.ToMove.Player != nil {
		return p.Sprintf(msgTurn, sum.GameType, name(*sum.ToMove.Player), sum.MoveCount+1)
	}
	waiting := 0
	for _, f := range sum.ToMove.Simultaneous {
		if f {
			waiting++
		}
	}
	return p.Sprintf(msgWaiting, sum.GameType, waiting)
}

// ParseLanguage は設定やクエリの言語指定を解釈する。解釈できない場合はfallbackを返す。
func ParseLanguage(s string, fallback language.Tag) language.Tag {
	if s == "" {
		return fallback
	}
	tag, err := language.Parse(s)
	if err != nil {
		return fallback
	}
	return tag
}
