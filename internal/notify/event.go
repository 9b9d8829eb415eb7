// Package notify は対局の変更と終局をイベントとして外部に伝える。
// 配信はWebSocketとWebhookで行い、メール・プッシュ通知の送信は外部の責務とする。
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/banmen/internal/model"
)

// EventType はイベントの種別。
type EventType string

const (
	// EventSessionChanged は対局が進行したことを表す。
	EventSessionChanged EventType = "session_changed"
	// EventSessionCompleted は対局が終局したことを表す。
	EventSessionCompleted EventType = "session_completed"
)

// Event は外部の通知系がメッセージを組み立てるのに必要な情報を持つ。
type Event struct {
	ID           string        `json:"id"`
	Type         EventType     `json:"type"`
	SessionID    string        `json:"session_id"`
	Participants []string      `json:"participants"`
	Summary      model.Summary `json:"summary"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

// Sanitizer は表示名を無害化する。
type Sanitizer interface {
	Sanitize(name string) string
}

// NewEvent は対局の現在の状態からイベントを生成する。
// 表示名はsanitizerで無害化してからSummaryに含める。
func NewEvent(s *model.Session, sanitizer Sanitizer, now time.Time) Event {
	typ := EventSessionChanged
	if s.Completed {
		typ = EventSessionCompleted
	}
	summary := s.Summary()
	if sanitizer != nil {
		for i := range summary.Participants {
			summary.Participants[i].Name = sanitizer.Sanitize(summary.Participants[i].Name)
		}
	}
	return Event{
		ID:           uuid.NewString(),
		Type:         typ,
		SessionID:    s.ID,
		Participants: s.ParticipantIDs(),
		Summary:      summary,
		OccurredAt:   now.UTC(),
	}
}

// Publisher はイベントの配信先。
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Publishers は複数の配信先にイベントを配る。
// 一部の配信先が失敗しても残りには配信し、失敗をまとめて返す。
type Publishers []Publisher

// Publish は全ての配信先にイベントを配る。
func (ps Publishers) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
