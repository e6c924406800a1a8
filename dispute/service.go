package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrEmptyMessage   = errors.New("dispute: message needs text or an attachment")
	ErrMessageTooLong = fmt.Errorf("dispute: message exceeds %d characters", MaxTextLength)
	ErrMissingSender  = errors.New("dispute: sender id is required")
)

// Store is the persistence the chat service needs.
type Store interface {
	AppendAsParticipant(ctx context.Context, req AppendRequest) (Message, error)
	List(ctx context.Context, orderID string) ([]Message, error)
}

type Service struct {
	repo Store
}

func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// Append validates and stores a participant message. Sentinel sender ids are reserved
// for the service and rejected here.
func (s *Service) Append(ctx context.Context, req AppendRequest) (Message, error) {
	req.SenderID = strings.TrimSpace(req.SenderID)
	req.Text = strings.TrimSpace(req.Text)
	req.AttachmentRef = strings.TrimSpace(req.AttachmentRef)

	if req.SenderID == "" {
		return Message{}, ErrMissingSender
	}
	if req.SenderID == SenderSystem || req.SenderID == SenderMediator {
		return Message{}, ErrForbidden
	}
	if req.Text == "" && req.AttachmentRef == "" {
		return Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(req.Text) > MaxTextLength {
		return Message{}, ErrMessageTooLong
	}
	return s.repo.AppendAsParticipant(ctx, req)
}

func (s *Service) List(ctx context.Context, orderID string) ([]Message, error) {
	return s.repo.List(ctx, orderID)
}
