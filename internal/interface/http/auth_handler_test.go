package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/codexops/codex-api/internal/application"
	"github.com/codexops/codex-api/internal/domain/entity"
	"github.com/codexops/codex-api/internal/domain/repository"
	handlers "github.com/codexops/codex-api/internal/interface/http"
	"github.com/codexops/codex-api/internal/router"
	"github.com/codexops/codex-api/internal/router/modules"
	"github.com/codexops/codex-api/pkg/helpers"
	"github.com/codexops/codex-api/pkg/validation"
)

// stubStore backs the HTTP tests with an in-memory user/role store.
type stubStore struct {
	mu        sync.Mutex
	seq       int
	users     map[string]*entity.User
	roles     map[string]*entity.Role
	perms     map[string]*entity.Permission
	userRoles map[string]map[string]bool

	// createErr makes CreateWithRoles fail without mutating anything.
	createErr error
}

func newStubStore() *stubStore {
	return &stubStore{
		users:     map[string]*entity.User{},
		roles:     map[string]*entity.Role{},
		perms:     map[string]*entity.Permission{},
		userRoles: map[string]map[string]bool{},
	}
}

func (s *stubStore) nextID() string {
	s.seq++
	return fmt.Sprintf("id-%d", s.seq)
}

func (s *stubStore) Create(_ context.Context, u *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(u)
}

func (s *stubStore) createLocked(u *entity.User) error {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
	}
	u.ID = s.nextID()
	cp := *u
	s.users[u.ID] = &cp
	s.userRoles[u.ID] = map[string]bool{}
	return nil
}

func (s *stubStore) CreateWithRoles(_ context.Context, u *entity.User, roleNames []string) error {
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
			r = &entity.Role{ID: s.nextID(), Name: name}
			s.roles[name] = r
		}
		s.userRoles[u.ID][r.ID] = true
	}
	return nil
}

func (s *stubStore) loadLocked(u *entity.User) *entity.User {
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

func (s *stubStore) GetByID(_ context.Context, id string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return s.loadLocked(u), nil
}

func (s *stubStore) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return s.loadLocked(u), nil
		}
	}
	return nil, errors.New("not found")
}

func (s *stubStore) ListRoleNames(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, errors.New("not found")
	}
	names := []string{}
	for _, r := range s.loadLocked(u).Roles {
		names = append(names, r.Name)
	}
	return names, nil
}

func (s *stubStore) AssignRole(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.userRoles[userID]
	if !ok {
		return errors.New("not found")
	}
	set[roleID] = true
	return nil
}

func (s *stubStore) UpdateAvatar(_ context.Context, userID, avatarURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return errors.New("not found")
	}
	u.AvatarURL = avatarURL
	return nil
}

func (s *stubStore) GetOrCreateRole(_ context.Context, name string) (*entity.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.roles[name]; ok {
		cp := *r
		return &cp, nil
	}
	r := &entity.Role{ID: s.nextID(), Name: name}
	s.roles[name] = r
	cp := *r
	return &cp, nil
}

func (s *stubStore) GetOrCreatePermission(_ context.Context, name, description string) (*entity.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.perms[name]; ok {
		cp := *p
		return &cp, nil
	}
	p := &entity.Permission{ID: s.nextID(), Name: name, Description: description}
	s.perms[name] = p
	cp := *p
	return &cp, nil
}

func (s *stubStore) ReplaceRolePermissions(_ context.Context, _ string, _ []string) error {
	return nil
}

// envelope mirrors response.APIResponse for decoding.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type tokenPairPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type testServer struct {
	engine  *gin.Engine
	store   *stubStore
	userSvc *application.UserService
	jwt     *helpers.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validation.Init()

	store := newStubStore()
	jwtMgr := helpers.NewJWTManager("handler-test-secret", "HS256", 15, 60)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	authSvc := application.NewAuthService(store, jwtMgr, logger, nil, false)
	userSvc := application.NewUserService(store, store, logger, nil, false, bcrypt.MinCost, nil, "", nil, "")

	authHandler := handlers.NewAuthHandler(authSvc, jwtMgr, logger, "", false)
	userHandler := handlers.NewUserHandler(userSvc, logger)

	engine := gin.New()
	reg := router.NewRegistry(engine)
	reg.Add(modules.NewHealthModule())
	reg.Add(modules.NewAuthModule(authHandler, authSvc))
	reg.Add(modules.NewUserModule(userHandler, authSvc))
	reg.RegisterAll()

	return &testServer{engine: engine, store: store, userSvc: userSvc, jwt: jwtMgr}
}

func (ts *testServer) seedUser(t *testing.T, email, password string, roles ...string) *entity.User {
	t.Helper()
	u, err := ts.userSvc.CreateUser(context.Background(), email, password, roles)
	require.NoError(t, err)
	return u
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (ts *testServer) login(t *testing.T, email, password string) tokenPairPayload {
	t.Helper()
	rec, env := ts.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var pair tokenPairPayload
	require.NoError(t, json.Unmarshal(env.Data, &pair))
	return pair
}

func TestLoginEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser(t, "viewer@example.com", "password", "viewer")

	pair := ts.login(t, "viewer@example.com", "password")
	assert.Equal(t, "bearer", pair.TokenType)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := ts.jwt.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "viewer@example.com", claims.Subject)
	assert.Equal(t, []string{"viewer"}, claims.Roles)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser(t, "viewer@example.com", "password", "viewer")

	rec, env := ts.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "viewer@example.com", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", env.Message)

	// unknown account is indistinguishable from a wrong password
	rec, env = ts.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "ghost@example.com", "password": "password"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", env.Message)
}

func TestLoginRejectsRolelessUser(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser(t, "norole@example.com", "password")

	rec, env := ts.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "norole@example.com", "password": "password"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "user has no roles", env.Message)
}

func TestLoginValidatesPayload(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "not-an-email", "password": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestRefreshEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser(t, "viewer@example.com", "password", "viewer")
	pair := ts.login(t, "viewer@example.com", "password")

	rec, env := ts.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{"refresh_token": pair.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var next tokenPairPayload
	require.NoError(t, json.Unmarshal(env.Data, &next))
	assert.NotEmpty(t, next.AccessToken)

	// an access token is not accepted in the refresh slot
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{"refresh_token": pair.AccessToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser(t, "viewer@example.com", "password", "viewer")
	pair := ts.login(t, "viewer@example.com", "password")

	rec, env := ts.do(t, http.MethodGet, "/api/v1/auth/me", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var profile struct {
		Email    string `json:"email"`
		IsActive bool   `json:"is_active"`
		Roles    []struct {
			Name string `json:"name"`
		} `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "viewer@example.com", profile.Email)
	assert.True(t, profile.IsActive)
	require.Len(t, profile.Roles, 1)
	assert.Equal(t, "viewer", profile.Roles[0].Name)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminPulseRequiresAdminRole(t *testing.T) {
	ts := newTestServer(t)
	manager := ts.seedUser(t, "manager@example.com", "password", "manager")
	pair := ts.login(t, "manager@example.com", "password")

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/users/admin/pulse", nil, pair.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// granting admin takes effect on the next issued token
	adminRole, err := ts.store.GetOrCreateRole(context.Background(), "admin")
	require.NoError(t, err)
	require.NoError(t, ts.store.AssignRole(context.Background(), manager.ID, adminRole.ID))

	pair = ts.login(t, "manager@example.com", "password")
	rec, env := ts.do(t, http.MethodGet, "/api/v1/users/admin/pulse", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var pulse struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &pulse))
	assert.Equal(t, "admin-ok", pulse.Status)
}

func TestAdminCreateUserEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser(t, "admin@example.com", "password", "admin")
	pair := ts.login(t, "admin@example.com", "password")

	body := gin.H{"email": "new@example.com", "password": "longenough", "roles": []string{"tech"}}
	rec, env := ts.do(t, http.MethodPost, "/api/v1/users", body, pair.AccessToken)
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)

	// the fresh account can log in immediately
	fresh := ts.login(t, "new@example.com", "longenough")
	claims, err := ts.jwt.ParseAccessToken(fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"tech"}, claims.Roles)

	// duplicates are rejected
	rec, env = ts.do(t, http.MethodPost, "/api/v1/users", body, pair.AccessToken)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email already registered", env.Message)
}

func TestAdminCreateUserStorageFailureIsNotAConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser(t, "admin@example.com", "password", "admin")
	pair := ts.login(t, "admin@example.com", "password")

	ts.store.createErr = errors.New("storage down")
	body := gin.H{"email": "new@example.com", "password": "longenough", "roles": []string{"tech"}}
	rec, env := ts.do(t, http.MethodPost, "/api/v1/users", body, pair.AccessToken)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "could not create user", env.Message)

	// once storage recovers the same email is still available
	ts.store.createErr = nil
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/users", body, pair.AccessToken)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
