package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/text/language"
)

// maxWebhookResponse は読み捨てるレスポンス本文の上限。
const maxWebhookResponse = 64 * 1024

// WebhookSender はJSONをWebhookにPOSTする。
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender はWebhookSenderを生成する。
// 本番ではsecurity.WebhookGuardのクライアントを渡し、内部ネットワークへの送信を防ぐ。
func NewWebhookSender(url string, client *http.Client) *WebhookSender {
	return &WebhookSender{url: url, client: client}
}

// Post はpayloadをJSONでPOSTする。2xx以外の応答はエラーとする。
func (s *WebhookSender) Post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook payload encode failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "banmen-webhook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxWebhookResponse))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// webhookPayload は通知Webhookの本文。
type webhookPayload struct {
	Event    Event  `json:"event"`
	Language string `json:"language"`
	Message  string `json:"message"`
}

// WebhookPublisher はイベントを文面付きでWebhookに送るPublisher。
type WebhookPublisher struct {
	sender   *WebhookSender
	renderer *Renderer
	lang     language.Tag
}

// NewWebhookPublisher はlangの言語で文面を組み立てるWebhookPublisherを生成する。
func NewWebhookPublisher(sender *WebhookSender, renderer *Renderer, lang language.Tag) *WebhookPublisher {
	return &WebhookPublisher{sender: sender, renderer: renderer, lang: renderer.Match(lang)}
}

// Publish はイベントをWebhookに送る。
func (p *WebhookPublisher) Publish(ctx context.Context, ev Event) error {
	return p.sender.Post(ctx, webhookPayload{
		Event:    ev,
		Language: p.lang.String(),
		Message:  p.renderer.Render(p.lang, ev),
	})
}
