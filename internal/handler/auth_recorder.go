package handler

import (
	"context"

	"github.com/hitoshi/photokeep/internal/auth"
	"github.com/hitoshi/photokeep/internal/model"
)

// LoginRecorder はログイン結果のメトリクス記録のインターフェース。
type LoginRecorder interface {
	RecordLogin(outcome string)
	RecordAccountProvisioned()
}

// recordingAuthService はAuthServiceInterfaceをラップし、
// コールバック処理の結果をメトリクスとして記録する。
type recordingAuthService struct {
	inner    AuthServiceInterface
	recorder LoginRecorder
}

// NewRecordingAuthService は認証サービスにログインメトリクスの記録を
// 追加するデコレーターを返す。recorderがnilの場合はinnerをそのまま返す。
func NewRecordingAuthService(inner AuthServiceInterface, recorder LoginRecorder) AuthServiceInterface {
	if recorder == nil {
		return inner
	}
	return &recordingAuthService{
		inner:    inner,
		recorder: recorder,
	}
}

func (s *recordingAuthService) GetLoginURL(state string) string {
	return s.inner.GetLoginURL(state)
}

func (s *recordingAuthService) HandleCallback(ctx context.Context, code string) (*auth.LoginResult, error) {
	result, err := s.inner.HandleCallback(ctx, code)
	if err != nil {
		s.recorder.RecordLogin("failure")
		return nil, err
	}

	s.recorder.RecordLogin("success")
	if result.Created {
		s.recorder.RecordAccountProvisioned()
	}

	return result, nil
}

func (s *recordingAuthService) Logout(ctx context.Context, ticketID string) error {
	return s.inner.Logout(ctx, ticketID)
}

func (s *recordingAuthService) GetCurrentUser(ctx context.Context, ticketID string) (*model.User, error) {
	return s.inner.GetCurrentUser(ctx, ticketID)
}
