package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/filevault/internal/apperr"
	"github.com/iliyamo/filevault/internal/queue"
	"github.com/iliyamo/filevault/internal/repository"
	"github.com/iliyamo/filevault/internal/utils"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	e164Pattern  = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
)

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

// NormalizeIdentifier trims the identifier and lower-cases email addresses.
// Anything that is neither an email nor an E.164 phone number is rejected.
func NormalizeIdentifier(id string) (string, error) {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "+") {
		if e164Pattern.MatchString(id) {
			return id, nil
		}
		return "", apperr.ErrIdentifierMalformed
	}
	id = strings.ToLower(id)
	if len(id) > 254 || !emailPattern.MatchString(id) {
		return "", apperr.ErrIdentifierMalformed
	}
	return id, nil
}

// CredentialService registers identities and checks passwords.
type CredentialService struct {
	users     UserStore
	events    EventPublisher
	log       *zap.SugaredLogger
	cost      int
	dummyHash string
	now       func() time.Time
}

func NewCredentialService(users UserStore, events EventPublisher, cost int, log *zap.SugaredLogger) *CredentialService {
	if events == nil {
		events = queue.Nop{}
	}
	// compared against when the user does not exist so both paths pay for bcrypt
	dummy, err := utils.HashPassword("filevault-dummy-password", cost)
	if err != nil {
		log.Warnw("dummy password hash failed", "error", err)
	}
	return &CredentialService{users: users, events: events, log: log, cost: cost, dummyHash: dummy, now: time.Now}
}

// Register creates a user and returns the normalized identifier.
func (s *CredentialService) Register(ctx context.Context, id, password string) (string, error) {
	id, err := NormalizeIdentifier(id)
	if err != nil {
		return "", err
	}
	if len(password) == 0 || len(password) > maxPasswordBytes {
		return "", apperr.ErrPasswordInvalid
	}
	hash, err := utils.HashPassword(password, s.cost)
	if err != nil {
		return "", apperr.Infra("hash password", err)
	}
	if err := s.users.Create(ctx, id, hash, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return "", apperr.ErrIdentifierTaken
		}
		return "", apperr.Infra("create user", err)
	}
	_ = s.events.Publish(ctx, queue.NewEvent(queue.UserRegistered, id))
	return id, nil
}

// VerifyCredentials reports whether password matches the stored verifier.
// A missing user and a wrong password take the same path and return false;
// only store failures produce an error.
func (s *CredentialService) VerifyCredentials(ctx context.Context, id, password string) (string, bool, error) {
	norm, err := NormalizeIdentifier(id)
	if err != nil {
		utils.VerifyPassword(s.dummyHash, password)
		return "", false, nil
	}
	u, err := s.users.GetByID(ctx, norm)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			utils.VerifyPassword(s.dummyHash, password)
			return "", false, nil
		}
		return "", false, apperr.Infra("load user", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return "", false, nil
	}
	return u.ID, true, nil
}
