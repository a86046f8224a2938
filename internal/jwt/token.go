package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dispatch-engine/internal/common"
	domainerrors "dispatch-engine/internal/errors"
)

type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Actor() common.Actor {
	return common.Actor{Role: common.Role(c.Role), ID: c.Sub}
}

type Service struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewService(secret string, expiry time.Duration) *Service {
	return &Service{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

func (s *Service) GenerateToken(sub string, role common.Role) (string, error) {
	if !role.Valid() {
		return "", domainerrors.NewValidation("role must be manager or driver")
	}
	now := s.now()
	claims := Claims{
		Sub:  sub,
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domainerrors.NewUnauthorized("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, domainerrors.NewUnauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domainerrors.NewUnauthorized("invalid token claims")
	}
	if claims.Sub == "" || !common.Role(claims.Role).Valid() {
		return nil, domainerrors.NewUnauthorized("token is missing subject or role")
	}

	return claims, nil
}
