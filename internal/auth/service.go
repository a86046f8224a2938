package auth

import (
	"strings"

	"dispatch-engine/internal/common"
	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/jwt"
)

// Service issues development tokens. Identity proper lives outside the engine.
type Service interface {
	GenerateToken(sub string, role common.Role) (string, error)
}

type authService struct {
	jwt *jwt.Service
}

func NewAuthService(jwt *jwt.Service) Service {
	return &authService{jwt: jwt}
}

func (s *authService) GenerateToken(sub string, role common.Role) (string, error) {
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return "", domainerrors.NewValidation("name is required")
	}
	return s.jwt.GenerateToken(sub, role)
}
