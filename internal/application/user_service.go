package application

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codexops/codex-api/internal/domain/entity"
	repo "github.com/codexops/codex-api/internal/domain/repository"
	"github.com/codexops/codex-api/pkg/helpers"
	"github.com/codexops/codex-api/pkg/mailer"
)

// Default permission registry. Names are the unit of interoperability and
// must not drift.
var defaultPermissions = map[string]string{
	"auth:login":       "Allow authentication via email/password",
	"auth:refresh":     "Allow refreshing access tokens",
	"users:manage":     "Manage user accounts and roles",
	"missions:manage":  "Manage missions and planning data",
	"missions:execute": "Execute missions assigned to the technician",
	"missions:view":    "View missions and planning information",
}

// Default role registry. ensureDefaultRoleset overwrites each role's
// permission set to exactly this mapping, so re-running after manual drift
// restores the canonical state.
var defaultRoles = map[string][]string{
	"admin":   {"auth:login", "auth:refresh", "users:manage"},
	"manager": {"auth:login", "missions:manage"},
	"tech":    {"auth:login", "missions:execute"},
	"viewer":  {"auth:login", "missions:view"},
}

var errGCSNotConfigured = errors.New("gcs not configured")

// UserService owns user creation, RBAC bootstrapping, and the secondary
// user index in Elasticsearch.
type UserService struct {
	Users        repo.UserRepository
	RBAC         repo.RBACRepository
	Logger       *logrus.Logger
	Pub          *helpers.RabbitPublisher
	MailEnabled  bool
	BcryptCost   int
	GCS          *storage.Client
	GCSBucket    string
	ES           *elasticsearch.Client
	ESUsersIndex string
}

func NewUserService(users repo.UserRepository, rbac repo.RBACRepository, logger *logrus.Logger, pub *helpers.RabbitPublisher, mailEnabled bool, bcryptCost int, gcs *storage.Client, gcsBucket string, es *elasticsearch.Client, esUsersIndex string) *UserService {
	return &UserService{
		Users:        users,
		RBAC:         rbac,
		Logger:       logger,
		Pub:          pub,
		MailEnabled:  mailEnabled,
		BcryptCost:   bcryptCost,
		GCS:          gcs,
		GCSBucket:    gcsBucket,
		ES:           es,
		ESUsersIndex: esUsersIndex,
	}
}

// EnsureDefaultRoleset is the idempotent bootstrap run on every process
// start: missing permissions and roles are created, and each registry role's
// permission set is overwritten to match the registry exactly. Safe under
// concurrent first-run execution; the upserts fall back to a fetch on
// duplicate insert.
func (s *UserService) EnsureDefaultRoleset(ctx context.Context) error {
	permIDs := make(map[string]string, len(defaultPermissions))
	for name, description := range defaultPermissions {
		perm, err := s.RBAC.GetOrCreatePermission(ctx, name, description)
		if err != nil {
			return err
		}
		permIDs[name] = perm.ID
	}

	for roleName, permNames := range defaultRoles {
		role, err := s.RBAC.GetOrCreateRole(ctx, roleName)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(permNames))
		for _, name := range permNames {
			ids = append(ids, permIDs[name])
		}
		if err := s.RBAC.ReplaceRolePermissions(ctx, role.ID, ids); err != nil {
			return err
		}
	}
	return nil
}

// CreateUser hashes the password and persists the user with the named roles
// attached, get-or-create semantics (a missing role is created with no
// permissions). User row and role assignments commit atomically; a failed
// create leaves nothing behind. Returns the materialized user including
// roles.
func (s *UserService) CreateUser(ctx context.Context, email, password string, roleNames []string) (*entity.User, error) {
	hash, err := helpers.HashPassword(password, s.BcryptCost)
	if err != nil {
		return nil, err
	}

	u := &entity.User{Email: email, PasswordHash: hash, IsActive: true}
	if err := s.Users.CreateWithRoles(ctx, u, roleNames); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	created, err := s.Users.GetByID(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	_ = s.indexUser(ctx, created)
	s.notifyWelcome(ctx, created)
	return created, nil
}

// GetProfile loads a user by ID.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*entity.User, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil || u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// UploadAvatar stores an avatar in GCS and records its public URL.
func (s *UserService) UploadAvatar(ctx context.Context, userID string, r io.Reader, filename, contentType string) (string, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil || u == nil {
		return "", ErrUserNotFound
	}
	if s.GCS == nil || s.GCSBucket == "" {
		return "", errGCSNotConfigured
	}
	ext := strings.ToLower(filepath.Ext(filename))
	objectPath := filepath.ToSlash(filepath.Join("avatars", userID, uuid.NewString()+ext))
	url, err := helpers.UploadObject(ctx, s.GCS, s.GCSBucket, objectPath, contentType, r)
	if err != nil {
		return "", err
	}
	if err := s.Users.UpdateAvatar(ctx, userID, url); err != nil {
		return "", err
	}
	u.AvatarURL = url
	_ = s.indexUser(ctx, u)
	return url, nil
}

func (s *UserService) indexUser(ctx context.Context, u *entity.User) error {
	if s.ES == nil || s.ESUsersIndex == "" {
		return nil
	}
	doc := map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"is_active":  u.IsActive,
		"roles":      u.RoleNames(),
		"created_at": u.CreatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{Index: s.ESUsersIndex, DocumentID: u.ID, Body: strings.NewReader(string(b)), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", u.ID).Warn("es index failed")
		}
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && s.Logger != nil {
		s.Logger.WithField("status", res.Status()).WithField("user_id", u.ID).Warn("es index response error")
	}
	return nil
}

// SearchUsers performs a multi_match query over the users index.
func (s *UserService) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email^2", "roles"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(
		s.ES.Search.WithContext(c),
		s.ES.Search.WithIndex(s.ESUsersIndex),
		s.ES.Search.WithBody(strings.NewReader(string(b))),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func (s *UserService) notifyWelcome(ctx context.Context, u *entity.User) {
	if s.Pub == nil || !s.MailEnabled {
		return
	}
	job := mailer.EmailJob{
		To:       u.Email,
		Template: mailer.TemplateWelcome,
		Data:     map[string]any{"Email": u.Email},
	}
	if err := s.Pub.PublishJSON(ctx, job); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("email", u.Email).Warn("welcome email enqueue failed")
	}
}
