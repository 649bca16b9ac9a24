package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/store"
)

// UserService handles user profiles. Profile reads go through a TTL cache because the
// leaderboard resolves one profile per ranked entry on every request.
type UserService struct {
	store    store.Store
	profiles *cache.Cache
	now      func() time.Time
}

func NewUserService(s store.Store, ttl time.Duration) *UserService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UserService{store: s, profiles: cache.New(ttl, 2*ttl), now: time.Now}
}

func (s *UserService) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	if u == nil || strings.TrimSpace(u.UserID) == "" {
		return nil, fmt.Errorf("%w: userId is required", model.ErrValidation)
	}
	if strings.TrimSpace(u.DisplayName) == "" {
		return nil, fmt.Errorf("%w: displayName is required", model.ErrValidation)
	}
	in := *u
	if in.CreationTime.IsZero() {
		in.CreationTime = s.now().UTC()
	}
	out, err := s.store.Users().Create(ctx, &in)
	if err != nil {
		return nil, err
	}
	s.profiles.Set(out.UserID, *out, cache.DefaultExpiration)
	return out, nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", model.ErrValidation)
	}
	return s.store.Users().Get(ctx, userID)
}

// Exists reports whether a profile exists for userID.
func (s *UserService) Exists(ctx context.Context, userID string) (bool, error) {
	_, err := s.GetUser(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case model.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Profile returns the cached profile for userID, loading it on a miss.
func (s *UserService) Profile(ctx context.Context, userID string) (model.User, error) {
	if v, ok := s.profiles.Get(userID); ok {
		return v.(model.User), nil
	}
	u, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	s.profiles.Set(userID, *u, cache.DefaultExpiration)
	return *u, nil
}
