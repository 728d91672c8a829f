package application_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codexops/codex-api/internal/domain/entity"
	"github.com/codexops/codex-api/internal/domain/repository"
)

// memStore is an in-memory stand-in for the postgres repositories. It
// implements both repository.UserRepository and repository.RBACRepository.
type memStore struct {
	mu        sync.Mutex
	seq       int
	users     map[string]*entity.User       // by ID
	roles     map[string]*entity.Role       // by name
	perms     map[string]*entity.Permission // by name
	userRoles map[string]map[string]bool    // userID -> roleID set
	rolePerms map[string][]string           // roleID -> permission IDs

	// createErr, when set, makes CreateWithRoles fail without touching any
	// state, standing in for a mid-transaction rollback.
	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]*entity.User{},
		roles:     map[string]*entity.Role{},
		perms:     map[string]*entity.Permission{},
		userRoles: map[string]map[string]bool{},
		rolePerms: map[string][]string{},
	}
}

var errStoreNotFound = errors.New("not found")

func (s *memStore) nextID() string {
	s.seq++
	return fmt.Sprintf("id-%d", s.seq)
}

func (s *memStore) Create(_ context.Context, u *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(u)
}

func (s *memStore) createLocked(u *entity.User) error {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
	}
	u.ID = s.nextID()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	s.users[u.ID] = &cp
	s.userRoles[u.ID] = map[string]bool{}
	return nil
}

func (s *memStore) CreateWithRoles(_ context.Context, u *entity.User, roleNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if err := s.createLocked(u); err != nil {
		return err
	}
	for _, name := range roleNames {
		r, ok := s.roles[name]
		if !ok {
			r = &entity.Role{ID: s.nextID(), Name: name, CreatedAt: time.Now()}
			s.roles[name] = r
		}
		s.userRoles[u.ID][r.ID] = true
	}
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errStoreNotFound
	}
	return s.materialize(u), nil
}

func (s *memStore) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return s.materialize(u), nil
		}
	}
	return nil, errStoreNotFound
}

// materialize clones the user and attaches roles sorted by name, matching
// the postgres repository's ordering. Caller holds the lock.
func (s *memStore) materialize(u *entity.User) *entity.User {
	cp := *u
	cp.Roles = nil
	for roleID := range s.userRoles[u.ID] {
		for _, r := range s.roles {
			if r.ID == roleID {
				cp.Roles = append(cp.Roles, *r)
			}
		}
	}
	sort.Slice(cp.Roles, func(i, j int) bool { return cp.Roles[i].Name < cp.Roles[j].Name })
	return &cp
}

func (s *memStore) ListRoleNames(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, errStoreNotFound
	}
	names := []string{}
	for _, r := range s.materialize(u).Roles {
		names = append(names, r.Name)
	}
	return names, nil
}

func (s *memStore) AssignRole(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.userRoles[userID]
	if !ok {
		return errStoreNotFound
	}
	set[roleID] = true
	return nil
}

func (s *memStore) UpdateAvatar(_ context.Context, userID, avatarURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return errStoreNotFound
	}
	u.AvatarURL = avatarURL
	return nil
}

func (s *memStore) GetOrCreateRole(_ context.Context, name string) (*entity.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.roles[name]; ok {
		cp := *r
		return &cp, nil
	}
	r := &entity.Role{ID: s.nextID(), Name: name, CreatedAt: time.Now()}
	s.roles[name] = r
	cp := *r
	return &cp, nil
}

func (s *memStore) GetOrCreatePermission(_ context.Context, name, description string) (*entity.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.perms[name]; ok {
		p.Description = description
		cp := *p
		return &cp, nil
	}
	p := &entity.Permission{ID: s.nextID(), Name: name, Description: description, CreatedAt: time.Now()}
	s.perms[name] = p
	cp := *p
	return &cp, nil
}

func (s *memStore) ReplaceRolePermissions(_ context.Context, roleID string, permissionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolePerms[roleID] = append([]string(nil), permissionIDs...)
	return nil
}

// helpers for assertions

func (s *memStore) roleByName(name string) *entity.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[name]
}

func (s *memStore) permissionNamesOf(roleID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := []string{}
	for _, pid := range s.rolePerms[roleID] {
		for _, p := range s.perms {
			if p.ID == pid {
				names = append(names, p.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func (s *memStore) grantRole(userID, roleName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleName]
	if !ok {
		r = &entity.Role{ID: s.nextID(), Name: roleName, CreatedAt: time.Now()}
		s.roles[roleName] = r
	}
	s.userRoles[userID][r.ID] = true
}
