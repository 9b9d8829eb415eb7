// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// WebhookGuard は外部Webhookの送信先を検証し、SSRF防止付きのHTTPクライアントを生成する。
// 通知Webhookと大会Webhookの両方で使用する。
type WebhookGuard struct {
	allowedPorts []int
}

// NewWebhookGuard はWebhookGuardを生成する。送信先のポートは80と443のみ許可する。
func NewWebhookGuard() *WebhookGuard {
	return &WebhookGuard{allowedPorts: []int{80, 443}}
}

// blockedPrefixes は送信先として拒否するネットワーク範囲。
// プライベート、ループバック、リンクローカル（メタデータIPを含む）とIPv6の対応範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// NewClient はsafeurlでラップしたHTTPクライアントを返す。
// 名前解決後のIPアドレスもDialerで検証されるため、DNS再バインディングも防げる。
func (g *WebhookGuard) NewClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(g.allowedPorts...).
		Build()
	return safeurl.Client(cfg).Client
}

// ValidateURL は設定されたWebhook URLを起動時に静的に検証する。
func (g *WebhookGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty webhook URL")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("disallowed webhook scheme: %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in webhook URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked webhook host: %s", host)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range blockedPrefixes {
			if p.Contains(addr) {
				return fmt.Errorf("blocked webhook address: %s", addr)
			}
		}
	}
	return nil
}
