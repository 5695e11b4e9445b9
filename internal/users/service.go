package users

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"docfill-backend/internal/mail"
	sharedauth "docfill-backend/internal/shared/auth"
	"docfill-backend/internal/shared/telemetry"
)

const (
	minPasswordLength = 6
	otpTTL            = 10 * time.Minute
)

var emailPattern = regexp.MustCompile(`^\w+([.+-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,})+$`)

// Service contains account business logic. Validation lives here so it is
// the same for every Repo implementation.
type Service struct {
	Repo   Repo
	Mailer mail.Sender

	TokenTTL   time.Duration
	BcryptCost int

	Now   func() time.Time
	NewID func() string
	OTP   func() (string, error)
}

// NewService constructs a Service.
func NewService(repo Repo, mailer mail.Sender) *Service {
	return &Service{Repo: repo, Mailer: mailer}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	ConfirmPassword   string `json:"confirmPassword"`
	PreferredLanguage string `json:"preferredLanguage"`
	State             string `json:"state"`
}

// ResetInput is the password reset form.
type ResetInput struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Session is a signed-in user with its token.
type Session struct {
	User  User
	Token string
}

// Register validates the form, creates the account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	state := strings.TrimSpace(in.State)
	if name == "" || email == "" || in.Password == "" || in.ConfirmPassword == "" || state == "" {
		return Session{}, invalid("name, email, password, confirmPassword and state are required")
	}
	if !emailPattern.MatchString(email) {
		return Session{}, invalid("please provide a valid email")
	}
	if err := checkPassword(in.Password, in.ConfirmPassword); err != nil {
		return Session{}, err
	}
	language, ok := normalizeLanguage(in.PreferredLanguage)
	if !ok {
		return Session{}, invalid(fmt.Sprintf("unsupported preferred language %q", in.PreferredLanguage))
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return Session{}, err
	}
	user := User{
		ID:                s.newID(),
		Name:              name,
		Email:             email,
		PasswordHash:      hash,
		PreferredLanguage: language,
		State:             state,
		AuthProvider:      ProviderPassword,
		CreatedAt:         s.now(),
	}
	if err := s.Repo.Create(ctx, user); err != nil {
		return Session{}, err
	}

	mail.SendBestEffort(ctx, s.Mailer, mail.Welcome(user.Email, user.Name))
	telemetry.Info("user.registered", map[string]any{"user_id": user.ID})
	return s.session(user)
}

// Login checks credentials. Unknown emails and wrong passwords are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, invalid("please provide email and password")
	}
	user, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.session(user)
}

// GetByID returns the account.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, userID)
}

// SendVerifyOTP stores a fresh verification code and mails it.
func (s *Service) SendVerifyOTP(ctx context.Context, userID string) error {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}
	otp, err := s.newOTP()
	if err != nil {
		return err
	}
	user.VerifyOTP = otp
	user.VerifyOTPExpiry = s.now().Add(otpTTL)
	if err := s.Repo.Update(ctx, user); err != nil {
		return err
	}
	mail.SendBestEffort(ctx, s.Mailer, mail.VerifyOTP(user.Email, otp))
	return nil
}

// VerifyAccount consumes the verification code.
func (s *Service) VerifyAccount(ctx context.Context, userID, otp string) error {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.checkOTP(user.VerifyOTP, user.VerifyOTPExpiry, otp); err != nil {
		return err
	}
	user.IsVerified = true
	user.VerifyOTP = ""
	user.VerifyOTPExpiry = time.Time{}
	return s.Repo.Update(ctx, user)
}

// SendResetOTP stores a password reset code for the account with email and mails it.
func (s *Service) SendResetOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return invalid("email is required")
	}
	user, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	otp, err := s.newOTP()
	if err != nil {
		return err
	}
	user.ResetOTP = otp
	user.ResetOTPExpiry = s.now().Add(otpTTL)
	if err := s.Repo.Update(ctx, user); err != nil {
		return err
	}
	mail.SendBestEffort(ctx, s.Mailer, mail.ResetOTP(user.Email, otp))
	return nil
}

// ResetPassword consumes the reset code and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, in ResetInput) error {
	email := normalizeEmail(in.Email)
	if email == "" || in.OTP == "" || in.NewPassword == "" {
		return invalid("email, otp and newPassword are required")
	}
	if err := checkPassword(in.NewPassword, in.ConfirmPassword); err != nil {
		return err
	}
	user, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.checkOTP(user.ResetOTP, user.ResetOTPExpiry, in.OTP); err != nil {
		return err
	}
	hash, err := s.hash(in.NewPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.ResetOTP = ""
	user.ResetOTPExpiry = time.Time{}
	return s.Repo.Update(ctx, user)
}

// SignInExternal upserts an account verified by an identity provider and signs it in.
func (s *Service) SignInExternal(ctx context.Context, provider, email, name string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Session{}, invalid("email is required")
	}
	user, err := s.Repo.UpsertByEmail(ctx, User{
		ID:                s.newID(),
		Name:              strings.TrimSpace(name),
		Email:             email,
		PreferredLanguage: DefaultLanguage,
		AuthProvider:      provider,
		IsVerified:        true,
	})
	if err != nil {
		return Session{}, err
	}
	return s.session(user)
}

func (s *Service) session(user User) (Session, error) {
	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = sharedauth.DefaultTTL
	}
	token, err := sharedauth.SignJWT(user.ID, user.Email, user.Name, ttl)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{User: user, Token: token}, nil
}

func (s *Service) checkOTP(stored string, expiry time.Time, given string) error {
	given = strings.TrimSpace(given)
	if stored == "" || given == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(given)) != 1 {
		return ErrInvalidOTP
	}
	if s.now().After(expiry) {
		return ErrOTPExpired
	}
	return nil
}

func (s *Service) hash(password string) (string, error) {
	cost := s.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) newOTP() (string, error) {
	if s.OTP != nil {
		return s.OTP()
	}
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func checkPassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if password != confirm {
		return invalid("passwords do not match")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
