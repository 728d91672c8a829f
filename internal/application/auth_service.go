package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codexops/codex-api/internal/domain/entity"
	repo "github.com/codexops/codex-api/internal/domain/repository"
	"github.com/codexops/codex-api/pkg/helpers"
	"github.com/codexops/codex-api/pkg/mailer"
)

var (
	// ErrInvalidCredentials covers unknown email and wrong password so the
	// two cases cannot be told apart by a caller probing for accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoRoles rejects authenticated identities that own zero roles; an
	// account without roles must not obtain tokens.
	ErrNoRoles = errors.New("user has no roles")
	// ErrInvalidToken is any token verification failure: bad signature,
	// malformed, expired, or wrong token type.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInactiveOrUnknownUser means the token verified but its subject no
	// longer resolves to an active user.
	ErrInactiveOrUnknownUser = errors.New("inactive or unknown user")
	// ErrForbidden means a valid identity lacks every required role.
	ErrForbidden = errors.New("missing required role")
	// ErrUserNotFound is returned by profile lookups.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by CreateUser when the email is already
	// registered.
	ErrEmailTaken = errors.New("email already registered")
)

// AuthService orchestrates credential verification, token issuance, and role
// enforcement. It is stateless between calls; every method runs end-to-end
// within the caller's request scope.
type AuthService struct {
	Users       repo.UserRepository
	JWT         *helpers.JWTManager
	Logger      *logrus.Logger
	Pub         *helpers.RabbitPublisher
	MailEnabled bool
}

func NewAuthService(users repo.UserRepository, jwt *helpers.JWTManager, logger *logrus.Logger, pub *helpers.RabbitPublisher, mailEnabled bool) *AuthService {
	return &AuthService{Users: users, JWT: jwt, Logger: logger, Pub: pub, MailEnabled: mailEnabled}
}

// Login verifies email/password and issues a token pair carrying the user's
// current role names. Unknown email, inactive account, and wrong password all
// surface as ErrInvalidCredentials. Nothing is issued or mutated on failure.
func (s *AuthService) Login(ctx context.Context, email, password string) (helpers.TokenPair, error) {
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil || u == nil {
		return helpers.TokenPair{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return helpers.TokenPair{}, ErrInvalidCredentials
	}

	roles := u.RoleNames()
	if len(roles) == 0 {
		return helpers.TokenPair{}, ErrNoRoles
	}

	if !helpers.VerifyPassword(password, u.PasswordHash) {
		return helpers.TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.JWT.GeneratePair(u.Email, roles)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("email", u.Email).Error("token pair generation failed")
		}
		return helpers.TokenPair{}, err
	}

	s.notifyLogin(ctx, u)
	return pair, nil
}

// Refresh validates a refresh token and issues a new pair. Role names are
// re-derived from the store, never taken from the old token, so role changes
// take effect on the next refresh at the latest.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (helpers.TokenPair, error) {
	claims, err := s.JWT.ParseRefreshToken(refreshToken)
	if err != nil {
		return helpers.TokenPair{}, ErrInvalidToken
	}

	u, err := s.Users.GetByEmail(ctx, claims.Subject)
	if err != nil || u == nil || !u.IsActive {
		return helpers.TokenPair{}, ErrInactiveOrUnknownUser
	}

	roles, err := s.Users.ListRoleNames(ctx, u.ID)
	if err != nil {
		return helpers.TokenPair{}, err
	}

	return s.JWT.GeneratePair(u.Email, roles)
}

// AuthenticateRequest resolves the current user from a bearer access token.
func (s *AuthService) AuthenticateRequest(ctx context.Context, accessToken string) (*entity.User, error) {
	claims, err := s.JWT.ParseAccessToken(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	u, err := s.Users.GetByEmail(ctx, claims.Subject)
	if err != nil || u == nil || !u.IsActive {
		return nil, ErrInactiveOrUnknownUser
	}
	return u, nil
}

// Authorize checks the user's role names against the required set,
// case-insensitively. An empty required set always passes.
func (s *AuthService) Authorize(u *entity.User, required []string) error {
	if len(required) == 0 {
		return nil
	}
	owned := make(map[string]struct{}, len(u.Roles))
	for _, r := range u.Roles {
		owned[strings.ToLower(r.Name)] = struct{}{}
	}
	for _, name := range required {
		if _, ok := owned[strings.ToLower(name)]; ok {
			return nil
		}
	}
	return ErrForbidden
}

func (s *AuthService) notifyLogin(ctx context.Context, u *entity.User) {
	if s.Pub == nil || !s.MailEnabled {
		return
	}
	job := mailer.EmailJob{
		To:       u.Email,
		Template: mailer.TemplateLoginNotification,
		Data: map[string]any{
			"Email": u.Email,
			"Time":  time.Now().UTC().Format(time.RFC1123),
		},
	}
	if err := s.Pub.PublishJSON(ctx, job); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("email", u.Email).Warn("login notification enqueue failed")
	}
}
