// Package auth issues and verifies session tokens. Identity proof (OAuth)
// happens elsewhere; Login trusts the Identity it is given.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stockgame/tradingsim/internal/apperr"
	"github.com/stockgame/tradingsim/internal/config"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/store"
	"go.uber.org/zap"
)

// Identity is a verified external account.
type Identity struct {
	Provider   string `json:"provider" binding:"required"`
	ProviderID string `json:"provider_id" binding:"required"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Nickname   string `json:"nickname"`
}

type LoginResult struct {
	User   *models.User `json:"user"`
	Tokens *TokenPair   `json:"tokens"`
	// Created is true for a first login.
	Created bool `json:"created"`
}

type Service struct {
	store  store.Store
	signer signer
	admins map[string]struct{}
	log    *zap.Logger
	now    func() time.Time
}

func NewService(st store.Store, cfg config.AuthConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		admins[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return &Service{
		store:  st,
		signer: signer{secret: []byte(cfg.JWTSecret), accessTTL: cfg.AccessTTL, refreshTTL: cfg.RefreshTTL},
		admins: admins,
		log:    log,
		now:    time.Now,
	}
}

// Login finds or creates the user for the identity, drops its previous
// sessions and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, id Identity) (*LoginResult, error) {
	if id.Provider == "" || id.ProviderID == "" {
		return nil, apperr.New(apperr.KindInvalid, "provider and provider_id are required")
	}
	now := s.now().UTC()

	var res LoginResult
	err := s.store.WithTx(ctx, func(r store.Repo) error {
		u, err := r.GetUserByProvider(ctx, id.Provider, id.ProviderID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			u = s.newUser(id, now)
			if err := r.CreateUser(ctx, u); err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			res.Created = true
		case err != nil:
			return fmt.Errorf("find user: %w", err)
		case u.Role != models.RoleAdmin && s.isAdminEmail(u.Email):
			// admin_emails grew since the account was created
			u.Role = models.RoleAdmin
			u.UpdatedAt = now
			if err := r.UpdateUser(ctx, u); err != nil {
				return fmt.Errorf("promote user: %w", err)
			}
			s.log.Info("user promoted to admin", zap.String("user_id", u.ID))
		}

		if err := r.TouchUserLogin(ctx, u.ID, now); err != nil {
			return fmt.Errorf("touch login: %w", err)
		}
		u.LastLoginAt = &now

		if err := r.DeleteUserSessions(ctx, u.ID); err != nil {
			return fmt.Errorf("drop sessions: %w", err)
		}
		tokens, err := s.startSession(ctx, r, u, now)
		if err != nil {
			return err
		}
		res.User, res.Tokens = u, tokens
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user logged in",
		zap.String("user_id", res.User.ID),
		zap.String("provider", id.Provider),
		zap.Bool("created", res.Created),
	)
	return &res, nil
}

func (s *Service) newUser(id Identity, now time.Time) *models.User {
	role := models.RoleUser
	if s.isAdminEmail(id.Email) {
		role = models.RoleAdmin
	}
	nickname := id.Nickname
	if nickname == "" {
		nickname = id.Name
	}
	return &models.User{
		ID:                   models.NewID(),
		Name:                 id.Name,
		Nickname:             nickname,
		Email:                id.Email,
		Provider:             id.Provider,
		ProviderID:           id.ProviderID,
		Role:                 role,
		Balance:              models.InitialBalance,
		IsLeaderboardVisible: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func (s *Service) isAdminEmail(email string) bool {
	if email == "" {
		return false
	}
	_, ok := s.admins[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

func (s *Service) startSession(ctx context.Context, r store.Repo, u *models.User, now time.Time) (*TokenPair, error) {
	tokens, refreshExp, err := s.signer.pair(u, now)
	if err != nil {
		return nil, err
	}
	sess := &models.Session{
		ID:        models.NewID(),
		UserID:    u.ID,
		TokenHash: hashToken(tokens.RefreshToken),
		ExpiresAt: refreshExp,
		CreatedAt: now,
	}
	if err := r.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return tokens, nil
}

// Refresh exchanges a live refresh token for a new pair. The old token is
// consumed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	now := s.now().UTC()
	claims, err := s.signer.parse(refreshToken, tokenRefresh, now)
	if err != nil {
		return nil, err
	}

	var tokens *TokenPair
	err = s.store.WithTx(ctx, func(r store.Repo) error {
		sess, err := r.GetSessionByHash(ctx, hashToken(refreshToken))
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindUnauthorized, "session not found")
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if sess.UserID != claims.Subject || !now.Before(sess.ExpiresAt) {
			return apperr.New(apperr.KindUnauthorized, "session expired")
		}
		if err := r.DeleteSession(ctx, sess.ID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}

		u, err := r.GetUser(ctx, sess.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrUnauthorized
		}
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		tokens, err = s.startSession(ctx, r, u, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.store.DeleteUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Verify checks an access token and returns its claims.
func (s *Service) Verify(token string) (*Claims, error) {
	return s.signer.parse(token, tokenAccess, s.now())
}

func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
