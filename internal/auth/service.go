package auth

import (
	"context"
	"errors"
	"time"

	"backend-runlink/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour

	refreshKeyPrefix = "auth:refresh:"
)

type Service struct {
	secret []byte
	db     db.Querier
	redis  *redis.Client
}

type Claims struct {
	RunnerID string `json:"runner_id"`
	jwt.RegisteredClaims
}

func NewService(secret string, q db.Querier, redisClient *redis.Client) *Service {
	return &Service{
		secret: []byte(secret),
		db:     q,
		redis:  redisClient,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Runner, TokenResponse, error) {
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return Runner{}, TokenResponse{}, errors.New("email, username, password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Runner{}, TokenResponse{}, err
	}

	runner := Runner{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO runners (id, email, username, password_hash, display_name)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, runner.ID, runner.Email, runner.Username, runner.PasswordHash, runner.DisplayName)
	if err := row.Scan(&runner.CreatedAt); err != nil {
		return Runner{}, TokenResponse{}, err
	}

	tokens, err := s.GenerateTokens(ctx, runner.ID)
	if err != nil {
		return Runner{}, TokenResponse{}, err
	}
	return runner, tokens, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (Runner, TokenResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, email, username, password_hash, COALESCE(display_name, ''), created_at
		FROM runners WHERE email = $1
	`, req.Email)

	var runner Runner
	if err := row.Scan(&runner.ID, &runner.Email, &runner.Username, &runner.PasswordHash, &runner.DisplayName, &runner.CreatedAt); err != nil {
		return Runner{}, TokenResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(runner.PasswordHash), []byte(req.Password)); err != nil {
		return Runner{}, TokenResponse{}, errors.New("invalid credentials")
	}

	tokens, err := s.GenerateTokens(ctx, runner.ID)
	if err != nil {
		return Runner{}, TokenResponse{}, err
	}
	return runner, tokens, nil
}

func (s *Service) GenerateTokens(ctx context.Context, runnerID string) (TokenResponse, error) {
	access, err := s.signToken(runnerID, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := s.signToken(runnerID, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, refreshKeyPrefix+refresh, runnerID, refreshTokenTTL).Err(); err != nil {
			return TokenResponse{}, err
		}
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}

	if s.redis != nil {
		stored, err := s.redis.Get(ctx, refreshKeyPrefix+token).Result()
		if err != nil || stored != claims.RunnerID {
			return "", errors.New("refresh token invalid")
		}
	}
	return claims.RunnerID, nil
}

func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	return claims.RunnerID, nil
}

func (s *Service) signToken(runnerID string, ttl time.Duration) (string, error) {
	claims := Claims{
		RunnerID: runnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}
