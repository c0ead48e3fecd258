package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/repairhub/notify/internal/model"
)

// TokenService mints and validates short-lived recipient tokens. The web
// front end exchanges its session for one of these so dashboard reads
// (ListNotifications, UnreadCount) can hit the engine directly without the
// engine knowing anything about user sessions.
type TokenService interface {
	GenerateRecipientToken(recipient model.Recipient, ttl time.Duration) (string, error)
	ValidateRecipientToken(token string) (*model.Recipient, error)
}

type RecipientClaims struct {
	RecipientType string `json:"recipient_type"`
	RecipientID   string `json:"recipient_id"`
	jwt.RegisteredClaims
}

type tokenService struct {
	secret []byte
}

func NewTokenService(secret string) TokenService {
	return &tokenService{secret: []byte(secret)}
}

func (s *tokenService) GenerateRecipientToken(recipient model.Recipient, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := RecipientClaims{
		RecipientType: string(recipient.Type),
		RecipientID:   recipient.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "notify",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign recipient token: %w", err)
	}
	return signed, nil
}

func (s *tokenService) ValidateRecipientToken(tokenStr string) (*model.Recipient, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &RecipientClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid recipient token: %w", err)
	}

	claims, ok := token.Claims.(*RecipientClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid recipient token claims")
	}

	id, err := uuid.Parse(claims.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient id in token: %w", err)
	}

	return &model.Recipient{
		Type: model.RecipientType(claims.RecipientType),
		ID:   id,
	}, nil
}
