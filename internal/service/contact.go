package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

type ContactService struct {
	repo *repository.ContactRepo
}

func NewContactService(db *sql.DB) *ContactService {
	return &ContactService{repo: repository.NewContactRepo(db)}
}

type ContactInput struct {
	Name    string `json:"name" validate:"required,max=255"`
	Email   string `json:"email" validate:"required,email,max=255"`
	Subject string `json:"subject" validate:"required,max=255"`
	Message string `json:"message" validate:"required,max=5000"`
}

func (s *ContactService) Submit(ctx context.Context, in ContactInput) (model.ContactMessage, error) {
	m := model.ContactMessage{
		Name:    strings.TrimSpace(in.Name),
		Email:   in.Email,
		Subject: strings.TrimSpace(in.Subject),
		Message: strings.TrimSpace(in.Message),
	}
	if err := s.repo.Create(ctx, &m); err != nil {
		return model.ContactMessage{}, translate(err, "save contact message")
	}
	return m, nil
}

func (s *ContactService) List(ctx context.Context) ([]model.ContactMessage, error) {
	out, err := s.repo.List(ctx)
	return out, translate(err, "list contact messages")
}

func (s *ContactService) Delete(ctx context.Context, id uint64) error {
	return translate(s.repo.Delete(ctx, id), "delete contact message")
}
