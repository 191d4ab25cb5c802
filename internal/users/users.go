// Package users registers and authenticates the identities the other
// services act for.
package users

import (
	"concord-backend/internal/apperr"
	"concord-backend/internal/models"
	"concord-backend/internal/snowflake"
	"concord-backend/internal/storage"
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	HandlesCollection = "handles"
	bcryptCost        = 12
)

// handleClaim reserves a handle for one user. The handle is the secondary
// key so uniqueness is a count over it.
type handleClaim struct {
	UserID int64  `json:"userId,string"`
	Handle string `json:"handle"`
}

type locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

type Service struct {
	sugar   *zap.SugaredLogger
	store   storage.Store
	locks   locker
	ids     *snowflake.Generator
	users   storage.Collection[models.User]
	handles storage.Collection[handleClaim]
}

func New(sugar *zap.SugaredLogger, store storage.Store, locks locker, ids *snowflake.Generator) *Service {
	return &Service{
		sugar:   sugar,
		store:   store,
		locks:   locks,
		ids:     ids,
		users:   storage.Users(store),
		handles: handles(store),
	}
}

func handles(store storage.Store) storage.Collection[handleClaim] {
	return storage.NewCollection(store, HandlesCollection,
		func(v *handleClaim) int64 { return v.UserID },
		func(v *handleClaim) string { return handleKey(v.Handle) },
	)
}

func handleKey(handle string) string {
	return strings.ToLower(handle)
}

// Register creates a user. Emails and handles are unique ignoring case.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	email := storage.EmailKey(req.Email)
	handle := handleKey(req.Handle)

	unlock, err := s.locks.Lock(ctx, "email:"+email, "handle:"+handle)
	if err != nil {
		return nil, err
	}
	defer unlock()

	count, err := s.users.CountMatching(ctx, email)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apperr.Conflict("email %s is already registered", email)
	}

	count, err = s.handles.CountMatching(ctx, handle)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apperr.Conflict("handle %s is taken", req.Handle)
	}

	userID, err := s.ids.Generate()
	if err != nil {
		return nil, err
	}

	passwordBytes, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, err
	}

	user := models.User{
		ID:           userID,
		Email:        email,
		Handle:       req.Handle,
		UserName:     req.UserName,
		Password:     passwordBytes,
		Servers:      []int64{},
		OwnedServers: []int64{},
		Invites:      []int64{},
	}

	err = s.store.WithTx(ctx, func(tx storage.Store) error {
		if err := s.handles.With(tx).Save(ctx, &handleClaim{UserID: userID, Handle: req.Handle}); err != nil {
			return err
		}
		return s.users.With(tx).Save(ctx, &user)
	})
	if err != nil {
		return nil, err
	}

	s.sugar.Infof("Registered user %d (%s)", user.ID, user.Handle)
	return &user, nil
}

// Authenticate checks an email and password pair. Unknown emails and wrong
// passwords fail the same way.
func (s *Service) Authenticate(ctx context.Context, email string, password string) (*models.User, error) {
	user, found, err := s.users.FindByKey(ctx, storage.EmailKey(email))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.Unauthenticated("wrong email or password")
	}

	err = bcrypt.CompareHashAndPassword(user.Password, []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return nil, apperr.Unauthenticated("wrong email or password")
	} else if err != nil {
		return nil, err
	}

	return user, nil
}

func (s *Service) Get(ctx context.Context, userID int64) (*models.User, error) {
	return s.users.FetchByID(ctx, userID)
}

func (s *Service) Exists(ctx context.Context, userID int64) (bool, error) {
	_, found, err := s.users.Find(ctx, userID)
	return found, err
}
