// Package auth issues and verifies the tokens that bind a websocket
// connection to a (game, participant, role) identity. The live engine
// trusts a verified identity for the lifetime of the session.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/royale-arena/backend/internal/game"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	GameID        string    `json:"game_id"`
	ParticipantID string    `json:"participant_id"`
	Role          game.Role `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	secret []byte
	ttl    time.Duration
}

func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl}
}

func (s *Service) Issue(gameID, participantID string, role game.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		GameID:        gameID,
		ParticipantID: participantID,
		Role:          role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Subject:   participantID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.GameID == "" || claims.ParticipantID == "" {
		return nil, ErrInvalidToken
	}
	switch claims.Role {
	case game.RoleDirector, game.RolePlayer:
	default:
		return nil, ErrInvalidToken
	}
	return claims, nil
}
