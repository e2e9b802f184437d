package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 72 * time.Hour

var ErrNoSecret = errors.New("jwt secret is not configured")

// TokenUsecase выпускает JWT участника для серверов с JWT_SECRET
type TokenUsecase interface {
	Issue(participant string, ttl time.Duration) (string, error)
}

type tokenUsecase struct {
	jwtSecret []byte
	now       func() time.Time
}

func NewTokenUsecase(jwtSecret []byte) TokenUsecase {
	return &tokenUsecase{jwtSecret: jwtSecret, now: time.Now}
}

// Issue генерирует JWT токен, subject - идентификатор участника
func (uc *tokenUsecase) Issue(participant string, ttl time.Duration) (string, error) {
	if len(uc.jwtSecret) == 0 {
		return "", ErrNoSecret
	}

	participant = strings.TrimSpace(participant)
	if participant == "" {
		return "", ErrEmptyIdentity
	}

	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := uc.now()

	claims := &jwt.RegisteredClaims{
		Subject:   participant,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}

	return token, nil
}
