package session

import (
	"context"

	"github.com/hitoshi/banmen/internal/model"
)

// スイープで適用した操作の種別。
const (
	SweepTimeout = "timeout"
	SweepAbandon = "abandon"
	SweepResync  = "resync"
)

// ActiveSessions は進行中の領域にある全ての正本を返す。
func (svc *Service) ActiveSessions(ctx context.Context) ([]*model.Session, error) {
	return svc.Sessions.ListActive(ctx)
}

// Sweep は対局に時間切れと放置終局をシステムとして適用する。
// 時間切れを適用するのは持ち時間の超過が即負けになるハードクロックの対局だけで、
// ソフトクロックの対局は放置終局の対象になる。
// どちらにも該当しない対局はResyncで非正規化コピーを突き合わせる。
// 戻り値は適用した操作の種別。
func (svc *Service) Sweep(ctx context.Context, id string) (string, error) {
	s, _, err := svc.Sessions.FindActive(ctx, id)
	if err != nil {
		return SweepResync, err
	}
	if s != nil && s.Clock.Hard {
		if _, err := svc.Timeout(ctx, id, ""); err == nil {
			return SweepTimeout, nil
		} else if !model.HasCode(err, model.ErrCodeNoTimeout) && !model.HasCode(err, model.ErrCodeAlreadyTerminal) {
			return SweepTimeout, err
		}
	}

	if _, err := svc.Abandon(ctx, id, ""); err == nil {
		return SweepAbandon, nil
	} else if !model.HasCode(err, model.ErrCodeNotAbandoned) && !model.HasCode(err, model.ErrCodeAlreadyTerminal) {
		return SweepAbandon, err
	}

	_, err = svc.Resync(ctx, id)
	return SweepResync, err
}
