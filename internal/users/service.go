// Package users is the admin view of player accounts. Accounts themselves
// are created by auth on first login.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stockgame/tradingsim/internal/apperr"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/store"
	"go.uber.org/zap"
)

// UpdateInput changes only the non-nil fields.
type UpdateInput struct {
	Name     *string
	Nickname *string
	Email    *string
	Role     *models.Role
}

type Service struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewService(st store.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: st, log: log, now: time.Now}
}

func (s *Service) List(ctx context.Context) ([]models.User, error) {
	list, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

// Update applies a partial change under the user's row lock so it cannot
// interleave with a trade's balance write.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.User, error) {
	if in.Role != nil && *in.Role != models.RoleUser && *in.Role != models.RoleAdmin {
		return nil, apperr.Newf(apperr.KindInvalid, "role must be %s or %s", models.RoleUser, models.RoleAdmin)
	}
	if in.Nickname != nil && strings.TrimSpace(*in.Nickname) == "" {
		return nil, apperr.New(apperr.KindInvalid, "nickname must not be empty")
	}

	var out *models.User
	err := s.store.WithTx(ctx, func(r store.Repo) error {
		u, err := r.LockUser(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			u.Name = strings.TrimSpace(*in.Name)
		}
		if in.Nickname != nil {
			u.Nickname = strings.TrimSpace(*in.Nickname)
		}
		if in.Email != nil {
			u.Email = strings.TrimSpace(*in.Email)
		}
		if in.Role != nil {
			u.Role = *in.Role
		}
		u.UpdatedAt = s.now().UTC()
		if err := r.UpdateUser(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	s.log.Info("user updated", zap.String("user_id", out.ID), zap.String("role", string(out.Role)))
	return out, nil
}

// MakeAdmin grants the ADMIN role to the account matching email or nickname.
func (s *Service) MakeAdmin(ctx context.Context, email, nickname string) (*models.User, error) {
	email, nickname = strings.TrimSpace(email), strings.TrimSpace(nickname)
	if email == "" && nickname == "" {
		return nil, apperr.New(apperr.KindInvalid, "email or nickname is required")
	}
	u, err := s.store.FindUserByEmailOrNickname(ctx, email, nickname)
	if err != nil {
		return nil, mapErr(err)
	}
	role := models.RoleAdmin
	return s.Update(ctx, u.ID, UpdateInput{Role: &role})
}

// Delete removes the account together with its portfolio, trade log,
// sessions and leaderboard row.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.WithTx(ctx, func(r store.Repo) error {
		if _, err := r.LockUser(ctx, id); err != nil {
			return err
		}
		return r.DeleteUser(ctx, id)
	})
	if err != nil {
		return mapErr(err)
	}
	s.log.Info("user deleted", zap.String("user_id", id))
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.ErrUserNotFound
	}
	return err
}
