package service

import (
	"context"
	"time"

	"registration-service/internal/redisclient"
	"registration-service/internal/util"
	"registration-service/internal/wechat"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionExchanger is the identity-exchange collaborator contract.
type SessionExchanger interface {
	CodeToSession(ctx context.Context, jsCode string) (*wechat.Session, error)
}

// AuthService exchanges mini-program login codes for payer identities and
// hands out opaque session tokens.
type AuthService struct {
	exchanger  SessionExchanger
	redis      *redisclient.Client
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(exchanger SessionExchanger, redis *redisclient.Client, sessionTTL time.Duration) *AuthService {
	return &AuthService{
		exchanger:  exchanger,
		redis:      redis,
		sessionTTL: sessionTTL,
		logger:     util.GetLogger(),
	}
}

// LoginResponse carries the session token and payer identity.
type LoginResponse struct {
	Token  string `json:"token"`
	OpenID string `json:"open_id"`
}

// Login exchanges a login code for an openid and stores a session token.
func (as *AuthService) Login(ctx context.Context, code string) (*LoginResponse, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	if code == "" {
		return nil, &ValidationError{Field: "code", Reason: "must not be empty"}
	}

	session, err := as.exchanger.CodeToSession(ctx, code)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}

	token := uuid.New().String()
	if err := as.redis.SaveSession(ctx, token, session.OpenID, as.sessionTTL); err != nil {
		return nil, &PersistenceError{Op: "save session", Err: err}
	}

	as.logger.Info("Login succeeded", zap.String("open_id", session.OpenID))

	return &LoginResponse{Token: token, OpenID: session.OpenID}, nil
}

// ResolveSession returns the openid for a session token, if present.
func (as *AuthService) ResolveSession(ctx context.Context, token string) (string, error) {
	return as.redis.GetSession(ctx, token)
}
