// Package memory is an in-process repository.Store.
//
// It follows the same contract as the SQLite store (same errors, same
// ordering) and exists so service and handler tests run without a database.
// One mutex guards everything; values are copied in and out so callers never
// share state with the store.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/model"
	"github.com/sakif/microblog/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type edge struct {
	follower, followed string
}

type Store struct {
	mu       sync.Mutex
	users    map[string]*model.User
	follows  map[edge]time.Time
	posts    []model.Post
	messages []model.Message
}

func New() *Store {
	return &Store{
		users:   make(map[string]*model.User),
		follows: make(map[edge]time.Time),
	}
}

// =========================================================================
// USERS
// =========================================================================

func copyUser(u *model.User) *model.User {
	c := *u
	if u.TokenExpiresAt != nil {
		t := *u.TokenExpiresAt
		c.TokenExpiresAt = &t
	}
	return &c
}

func (s *Store) uniqueness(id, username, email string) error {
	for _, u := range s.users {
		if u.ID == id {
			continue
		}
		if u.Username == username {
			return apperror.Conflict("username", "Please use a different username.")
		}
		if email != "" && u.Email == email {
			return apperror.Conflict("email", "Please use a different email address.")
		}
	}
	return nil
}

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.uniqueness("", user.Username, user.Email); err != nil {
		return err
	}
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.LastSeen = now
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *Store) findUser(match func(*model.User) bool, key string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, apperror.NotFound("User", key)
}

func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return s.findUser(func(u *model.User) bool { return u.ID == id }, id)
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	return s.findUser(func(u *model.User) bool { return u.Username == username }, username)
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return s.findUser(func(u *model.User) bool { return u.Email == email }, email)
}

func (s *Store) GetUserByToken(_ context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("User", "for token")
	}
	return s.findUser(func(u *model.User) bool { return u.Token == token }, "for token")
}

func (s *Store) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedUsers(func(*model.User) bool { return true }), nil
}

func (s *Store) sortedUsers(keep func(*model.User) bool) []model.User {
	out := []model.User{}
	for _, u := range s.users {
		if keep(u) {
			out = append(out, *copyUser(u))
		}
	}
	slices.SortFunc(out, func(a, b model.User) int { return cmp.Compare(a.Username, b.Username) })
	return out
}

// mutateUser applies fn to the stored user under the lock.
func (s *Store) mutateUser(id string, fn func(u *model.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperror.NotFound("User", id)
	}
	return fn(u)
}

func (s *Store) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return s.mutateUser(id, func(u *model.User) error {
		u.PasswordHash = passwordHash
		return nil
	})
}

func (s *Store) UpdateProfile(_ context.Context, id, username, aboutMe string) error {
	return s.mutateUser(id, func(u *model.User) error {
		if err := s.uniqueness(id, username, ""); err != nil {
			return err
		}
		u.Username = username
		u.AboutMe = aboutMe
		return nil
	})
}

func (s *Store) TouchLastSeen(_ context.Context, id string, at time.Time) error {
	return s.mutateUser(id, func(u *model.User) error {
		u.LastSeen = at.UTC()
		return nil
	})
}

func (s *Store) IssueToken(_ context.Context, id, token string, expiresAt, staleBefore time.Time) (*model.User, error) {
	var out *model.User
	err := s.mutateUser(id, func(u *model.User) error {
		if u.Token == "" || u.TokenExpiresAt == nil || !u.TokenExpiresAt.After(staleBefore) {
			exp := expiresAt.UTC().Truncate(time.Second)
			u.Token = token
			u.TokenExpiresAt = &exp
		}
		out = copyUser(u)
		return nil
	})
	return out, err
}

func (s *Store) RevokeToken(_ context.Context, id string, at time.Time) error {
	return s.mutateUser(id, func(u *model.User) error {
		exp := at.Add(-time.Second).UTC()
		u.TokenExpiresAt = &exp
		return nil
	})
}

func (s *Store) ClearExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.Token != "" && u.TokenExpiresAt != nil && !u.TokenExpiresAt.After(now) {
			u.Token = ""
			u.TokenExpiresAt = nil
			n++
		}
	}
	return n, nil
}

// =========================================================================
// FOLLOWS
// =========================================================================

func (s *Store) Follow(_ context.Context, followerID, followedID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if followerID == followedID {
		return false, apperror.Conflict("username", "You cannot follow yourself!")
	}
	if _, ok := s.users[followerID]; !ok {
		return false, apperror.NotFound("User", followerID)
	}
	if _, ok := s.users[followedID]; !ok {
		return false, apperror.NotFound("User", followedID)
	}
	e := edge{followerID, followedID}
	if _, ok := s.follows[e]; ok {
		return false, nil
	}
	s.follows[e] = at.UTC()
	return true, nil
}

func (s *Store) Unfollow(_ context.Context, followerID, followedID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := edge{followerID, followedID}
	if _, ok := s.follows[e]; !ok {
		return false, nil
	}
	delete(s.follows, e)
	return true, nil
}

func (s *Store) IsFollowing(_ context.Context, followerID, followedID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.follows[edge{followerID, followedID}]
	return ok, nil
}

func (s *Store) countEdges(match func(edge) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for e := range s.follows {
		if match(e) {
			n++
		}
	}
	return n
}

func (s *Store) CountFollowers(_ context.Context, userID string) (int, error) {
	return s.countEdges(func(e edge) bool { return e.followed == userID }), nil
}

func (s *Store) CountFollowing(_ context.Context, userID string) (int, error) {
	return s.countEdges(func(e edge) bool { return e.follower == userID }), nil
}

func (s *Store) ListFollowers(_ context.Context, userID string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedUsers(func(u *model.User) bool {
		_, ok := s.follows[edge{u.ID, userID}]
		return ok
	}), nil
}

func (s *Store) ListFollowing(_ context.Context, userID string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedUsers(func(u *model.User) bool {
		_, ok := s.follows[edge{userID, u.ID}]
		return ok
	}), nil
}
