package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/esfera-conectada/internal/model"
	"github.com/d60-Lab/esfera-conectada/internal/repository"
	"github.com/d60-Lab/esfera-conectada/pkg/errs"
)

// Identity 当前会话身份
type Identity struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Provider 鉴权提供方：签发/校验会话令牌
type Provider interface {
	Register(ctx context.Context, email, username, password string) (string, *Identity, error)
	SignIn(ctx context.Context, email, password string) (string, *Identity, error)
	// GetSession 校验令牌并返回身份；令牌无效/吊销/过期返回 ErrAuth
	GetSession(ctx context.Context, token string) (*Identity, error)
	// SignOut 吊销令牌（redis 黑名单，TTL 与令牌剩余有效期一致）
	SignOut(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

type jwtProvider struct {
	profiles repository.ProfileRepository
	rdb      *redis.Client
	secret   []byte
	ttl      time.Duration
}

func NewProvider(profiles repository.ProfileRepository, rdb *redis.Client, secret string, ttl time.Duration) Provider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &jwtProvider{profiles: profiles, rdb: rdb, secret: []byte(secret), ttl: ttl}
}

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (p *jwtProvider) Register(ctx context.Context, email, username, password string) (string, *Identity, error) {
	if len(password) < 6 {
		return "", nil, errs.Validationf("password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}
	prof := &model.Profile{
		ID:           uuid.New().String(),
		Username:     username,
		DisplayName:  username,
		Email:        email,
		PasswordHash: string(hash),
		LastActive:   time.Now(),
	}
	if err := p.profiles.Create(ctx, prof); err != nil {
		return "", nil, errs.FromCall(err)
	}
	return p.issue(prof)
}

func (p *jwtProvider) SignIn(ctx context.Context, email, password string) (string, *Identity, error) {
	prof, err := p.profiles.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", nil, errs.ErrAuth
		}
		return "", nil, errs.FromCall(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(prof.PasswordHash), []byte(password)) != nil {
		return "", nil, errs.ErrAuth
	}
	_ = p.profiles.TouchLastActive(ctx, prof.ID)
	return p.issue(prof)
}

func (p *jwtProvider) issue(prof *model.Profile) (string, *Identity, error) {
	now := time.Now()
	claims := sessionClaims{
		Username: prof.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   prof.ID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", nil, err
	}
	return token, &Identity{ID: prof.ID, Username: prof.Username, DisplayName: prof.DisplayName}, nil
}

func (p *jwtProvider) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	tok, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, errs.ErrAuth
	}
	return claims, nil
}

func (p *jwtProvider) GetSession(ctx context.Context, token string) (*Identity, error) {
	claims, err := p.parse(token)
	if err != nil {
		return nil, err
	}
	if p.rdb != nil {
		revoked, err := p.rdb.Exists(ctx, revokeKey(claims.ID)).Result()
		if err == nil && revoked > 0 {
			return nil, errs.ErrAuth
		}
	}
	prof, err := p.profiles.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrAuth
		}
		return nil, errs.FromCall(err)
	}
	return &Identity{ID: prof.ID, Username: prof.Username, DisplayName: prof.DisplayName}, nil
}

func (p *jwtProvider) SignOut(ctx context.Context, token string) error {
	claims, err := p.parse(token)
	if err != nil {
		// 已经无效的令牌视为登出成功
		return nil
	}
	if p.rdb == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return p.rdb.Set(ctx, revokeKey(claims.ID), 1, ttl).Err()
}

func (p *jwtProvider) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return errs.Validationf("password too short")
	}
	prof, err := p.profiles.GetByID(ctx, userID)
	if err != nil {
		return errs.FromCall(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(prof.PasswordHash), []byte(oldPassword)) != nil {
		return errs.ErrAuth
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return p.profiles.UpdatePassword(ctx, userID, string(hash))
}

func revokeKey(jti string) string { return "auth:revoked:" + jti }
