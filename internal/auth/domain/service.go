package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks
type Service interface {
	ValidateCredentials(ctx context.Context, email, password string) (*Profile, error)
	IssueSession(ctx context.Context, profile *Profile) (*Session, error)
	Login(ctx context.Context, req LoginRequest) (*Session, error)
	Register(ctx context.Context, req RegisterRequest) (*Profile, error)
	GetProfile(ctx context.Context, userID snowflake.ID) (*Profile, error)
	Authenticate(ctx context.Context, rawToken string) (*Identity, error)
}

type LoginRequest struct {
	Email    string
	Password string
}

type RegisterRequest struct {
	Email    string
	Password string
	Name     string
}
