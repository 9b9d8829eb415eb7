package security

import "strings"

// Origins はブラウザからのアクセスを許可するオリジンの一覧。
type Origins []string

// ParseOrigins はカンマ区切りのオリジン一覧を解釈する。空要素と末尾のスラッシュは取り除く。
func ParseOrigins(s string) Origins {
	var out Origins
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Allows はoriginが一覧に含まれるかを返す。スキームとホストは大文字小文字を区別しない。
func (o Origins) Allows(origin string) bool {
	origin = strings.TrimSuffix(origin, "/")
	for _, a := range o {
		if strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
