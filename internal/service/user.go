package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/internal/adapter/pubsub"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
	"github.com/syntalk/im-server/internal/kv"
	"github.com/syntalk/im-server/internal/repository"
	"github.com/syntalk/im-server/internal/service/dto"
	"golang.org/x/crypto/bcrypt"
)

const (
	verificationCodeTTL  = 10 * time.Minute
	verificationSendWait = time.Minute
	minPasswordLen       = 8
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// RegisterInput carries the registration form. Code is the emailed
// verification code, required only when verification is enabled.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Nickname string
	Code     string
}

// UserPatch is a partial profile update; nil fields are left untouched.
type UserPatch struct {
	Nickname *string
	Avatar   *string
}

// UserService owns accounts: registration, login, profile upkeep and the
// admin approval queue.
type UserService struct {
	users  repository.Users
	verif  *kv.Verification
	auth   Auther
	bus    pubsub.EventDispatcher
	origin Origin
	log    *slog.Logger

	requireVerification bool
	requireApproval     bool
}

func NewUserService(
	cfg *config.Config,
	users repository.Users,
	verif *kv.Verification,
	auth Auther,
	bus pubsub.EventDispatcher,
	origin Origin,
	log *slog.Logger,
) *UserService {
	return &UserService{
		users:               users,
		verif:               verif,
		auth:                auth,
		bus:                 bus,
		origin:              origin,
		log:                 log.With("component", "user"),
		requireVerification: cfg.Auth.RequireVerification,
		requireApproval:     cfg.Auth.RequireApproval,
	}
}

// Register creates an account. With approval enabled the account starts
// pending and cannot log in until an administrator activates it.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if !usernameRe.MatchString(in.Username) {
		return nil, imerr.New(imerr.InvalidParams, "username must be 3-32 word characters")
	}
	if !strings.Contains(in.Email, "@") {
		return nil, imerr.New(imerr.InvalidParams, "invalid email address")
	}
	if len(in.Password) < minPasswordLen {
		return nil, imerr.Newf(imerr.UserPasswordWeak, "password must be at least %d characters", minPasswordLen)
	}
	if !strings.ContainsFunc(in.Password, unicode.IsLetter) || !strings.ContainsFunc(in.Password, unicode.IsDigit) {
		return nil, imerr.New(imerr.UserPasswordWeak, "password needs at least one letter and one digit")
	}

	if s.requireVerification {
		stored, err := s.verif.Code(ctx, in.Email)
		if err != nil {
			return nil, imerr.Wrap(imerr.CacheFailed, "verification lookup", err)
		}
		if stored == "" {
			return nil, imerr.New(imerr.UserVerifyExpired, "verification code expired or never sent")
		}
		if stored != in.Code {
			return nil, imerr.New(imerr.UserVerifyFailed, "verification code mismatch")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, imerr.Wrap(imerr.Internal, "hash password", err)
	}

	nickname := in.Nickname
	if nickname == "" {
		nickname = in.Username
	}
	status := model.UserStatusActive
	if s.requireApproval {
		status = model.UserStatusPending
	}

	u := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Nickname:     nickname,
		Role:         model.RoleMember,
		Status:       status,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	if s.requireVerification {
		if err := s.verif.Delete(ctx, in.Email); err != nil {
			s.log.Warn("verification code cleanup failed", "email", in.Email, "err", err)
		}
	}

	s.audit(ctx, dto.EventUserRegistered, u)
	s.log.Info("user registered", "user_id", u.ID, "username", u.Username, "status", u.Status)
	return u, nil
}

// Login verifies credentials and returns the user with a signed token.
// Unknown usernames and wrong passwords report the same code.
func (s *UserService) Login(ctx context.Context, username, password, ip, userAgent string) (*model.User, string, error) {
	u, err := s.users.ByUsername(ctx, username)
	if err != nil {
		if imerr.CodeOf(err) == imerr.UserNotFound {
			return nil, "", imerr.New(imerr.UserPasswordWrong, "wrong username or password")
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", imerr.New(imerr.UserPasswordWrong, "wrong username or password")
	}

	switch u.Status {
	case model.UserStatusPending:
		return nil, "", imerr.New(imerr.UserStatusAbnormal, "account awaiting approval")
	case model.UserStatusSuspended:
		return nil, "", imerr.New(imerr.UserAccountLocked, "account suspended")
	}

	token, err := s.auth.Issue(u)
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	if err := s.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		s.log.Warn("last-login update failed", "user_id", u.ID, "err", err)
	}
	if err := s.users.CreateLoginLog(ctx, u.ID, ip, userAgent); err != nil {
		s.log.Warn("login log failed", "user_id", u.ID, "err", err)
	}
	u.LastLoginAt = &now

	s.audit(ctx, dto.EventUserLogin, u)
	return u, token, nil
}

// SendVerificationCode issues a registration code for the address, rate
// limited to one per minute. Mail delivery is out of band; the code is
// logged at debug for development setups without a mailer.
func (s *UserService) SendVerificationCode(ctx context.Context, email string) error {
	if !strings.Contains(email, "@") {
		return imerr.New(imerr.InvalidParams, "invalid email address")
	}
	ok, err := s.verif.ReserveSend(ctx, email, verificationSendWait)
	if err != nil {
		return imerr.Wrap(imerr.CacheFailed, "reserve verification send", err)
	}
	if !ok {
		return imerr.New(imerr.RateLimitExceeded, "a code was sent recently, try again later")
	}

	code, err := sixDigitCode()
	if err != nil {
		return imerr.Wrap(imerr.Internal, "generate code", err)
	}
	if err := s.verif.SetCode(ctx, email, code, verificationCodeTTL); err != nil {
		return imerr.Wrap(imerr.CacheFailed, "store verification code", err)
	}

	s.log.Info("verification code issued", "email", email)
	s.log.Debug("verification code value", "email", email, "code", code)
	return nil
}

func (s *UserService) Get(ctx context.Context, userID int64) (*model.User, error) {
	return s.users.ByID(ctx, userID)
}

// Update applies a partial profile edit.
func (s *UserService) Update(ctx context.Context, userID int64, patch UserPatch) error {
	fields := map[string]any{}
	if patch.Nickname != nil {
		fields["nickname"] = *patch.Nickname
	}
	if patch.Avatar != nil {
		fields["avatar"] = *patch.Avatar
	}
	if len(fields) == 0 {
		return imerr.New(imerr.InvalidParams, "nothing to update")
	}
	return s.users.UpdateProfile(ctx, userID, fields)
}

// Approve resolves a pending account: activation or suspension, recorded in
// the approval log.
func (s *UserService) Approve(ctx context.Context, adminID, userID int64, approve bool) error {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Status != model.UserStatusPending {
		return imerr.New(imerr.InvalidParams, "account is not awaiting approval")
	}

	status := model.UserStatusSuspended
	action := "rejected"
	if approve {
		status = model.UserStatusActive
		action = "approved"
	}
	if err := s.users.UpdateStatus(ctx, userID, status); err != nil {
		return err
	}
	if err := s.users.CreateApprovalLog(ctx, adminID, userID, action); err != nil {
		s.log.Warn("approval log failed", "user_id", userID, "err", err)
	}
	s.log.Info("account reviewed", "user_id", userID, "admin_id", adminID, "action", action)
	return nil
}

// List pages through accounts, optionally filtered by status.
func (s *UserService) List(ctx context.Context, status *model.UserStatus, limit, offset int) ([]model.User, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.List(ctx, status, limit, offset)
}

func (s *UserService) audit(ctx context.Context, eventType string, u *model.User) {
	evt := dto.NewUserAudit(eventType, u.ID, u.Username, s.origin.String())
	ev := event.NewBusEvent(event.TopicSystem, strconv.FormatInt(u.ID, 10), evt)
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("audit publish failed", "event_type", eventType, "err", err)
	}
}

func sixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
