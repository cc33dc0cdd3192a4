// Package services – UserService
//
// UserService creates, reads and removes accounts. Removal dispatches
// UserDeleted so CascadeCleaner clears the user's footprint on the same
// transaction, then deletes the user row; nothing commits unless every step
// succeeds.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/domain"
	"github.com/tbourn/go-messaging-backend/internal/lifecycle"
	"github.com/tbourn/go-messaging-backend/internal/repo"
)

// maxDisplayNameRunes caps display names.
const maxDisplayNameRunes = 150

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// UserService manages accounts.
type UserService struct {
	DB         *gorm.DB
	Dispatcher *lifecycle.Dispatcher
}

// Create registers a user. An empty role defaults to guest.
func (s *UserService) Create(ctx context.Context, displayName, role string) (*domain.User, error) {
	displayName = whitespaceRE.ReplaceAllString(strings.TrimSpace(displayName), " ")
	if displayName == "" || utf8.RuneCountInString(displayName) > maxDisplayNameRunes {
		return nil, ErrInvalidUser
	}
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case "":
		role = domain.RoleGuest
	case domain.RoleGuest, domain.RoleHost, domain.RoleAdmin:
	default:
		return nil, ErrInvalidUser
	}
	u, err := repo.CreateUser(ctx, s.DB, displayName, role)
	if err != nil {
		return nil, wrapStore("create user", err)
	}
	return u, nil
}

// Get fetches a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, wrapStore("get user", err)
	}
	return u, nil
}

// Delete removes userID on behalf of actorID, who must be the user or an
// admin. Every row referencing the user is cleaned up first.
func (s *UserService) Delete(ctx context.Context, actorID, userID string) error {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("actor.id", actorID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	err := repo.WithinTx(ctx, s.DB, func(tx *gorm.DB) error {
		if _, err := repo.GetUser(ctx, tx, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if actorID != userID {
			actor, err := repo.GetUser(ctx, tx, actorID)
			if errors.Is(err, repo.ErrNotFound) {
				return ErrForbidden
			}
			if err != nil {
				return err
			}
			if !actor.IsAdmin() {
				return ErrForbidden
			}
		}

		if err := s.Dispatcher.Dispatch(ctx, tx, lifecycle.UserDeletedEvent{UserID: userID}); err != nil {
			return err
		}
		if err := repo.DeleteUser(ctx, tx, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return wrapStore("delete user", err)
	}
	zerolog.Ctx(ctx).Info().Str("user_id", userID).Str("actor_id", actorID).Msg("user deleted")
	return nil
}
