/**
 * @description
 * Login flows: phone-number login (issue a short-lived verification code
 * over SMS and verify it) and Kakao login (verify the SDK-issued access
 * token with the provider). Both mint a session token for the matched (or
 * newly created) user.
 */
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
	"github.com/oz-TeamWizard/MealStack/internal/store"
	"github.com/oz-TeamWizard/MealStack/pkg/kakao"
)

var (
	// ErrInvalidPhone is returned when the phone number is not a valid
	// Korean mobile number.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrRateLimited is returned when the caller has requested too many
	// codes inside the current window.
	ErrRateLimited = errors.New("too many code requests")

	// ErrCodeInvalid is returned when the submitted code does not match.
	ErrCodeInvalid = errors.New("verification code does not match")

	// ErrCodeExpired is returned when the code exists but has expired.
	ErrCodeExpired = errors.New("verification code expired")

	// ErrTooManyAttempts is returned when the code has been guessed too
	// many times and is no longer accepted.
	ErrTooManyAttempts = errors.New("too many verification attempts")

	// ErrOAuthTokenInvalid is returned when the provider rejects the
	// submitted OAuth access token.
	ErrOAuthTokenInvalid = errors.New("oauth access token rejected")

	// ErrOAuthUnavailable is returned when no OAuth verifier is configured.
	ErrOAuthUnavailable = errors.New("oauth login is not configured")
)

const (
	codeLength      = 6
	codeTTL         = 3 * time.Minute
	maxCodeAttempts = 5
	sessionTokenTTL = 24 * time.Hour
	rateLimitScope  = "sms_send"
	rateLimitWindow = time.Minute
)

var mobilePhonePattern = regexp.MustCompile(`^010\d{8}$`)

// SMSSender delivers a verification code to a phone number.
type SMSSender interface {
	SendVerificationCode(ctx context.Context, phoneNumber, code string) error
}

// LogSMSSender writes codes to the log instead of a gateway. Used in
// development and test environments.
type LogSMSSender struct {
	Logger *slog.Logger
}

func (s *LogSMSSender) SendVerificationCode(_ context.Context, phoneNumber, code string) error {
	if s.Logger != nil {
		s.Logger.Info("sms verification code issued", "phone_number", phoneNumber, "code", code)
	}
	return nil
}

// RateLimiter throttles code sends per phone number.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// KakaoVerifier resolves a Kakao access token to the profile it belongs to.
type KakaoVerifier interface {
	GetMe(ctx context.Context, accessToken string) (*kakao.Profile, error)
}

// AuthService owns the send-code / verify-code login flow.
type AuthService struct {
	users         store.UserRepository
	codes         store.VerificationCodeRepository
	sender        SMSSender
	limiter       RateLimiter
	kakao         KakaoVerifier
	sessionSecret []byte
	sendLimit     int
	logger        *slog.Logger
	now           func() time.Time
}

func NewAuthService(
	users store.UserRepository,
	codes store.VerificationCodeRepository,
	sender SMSSender,
	limiter RateLimiter,
	kakaoVerifier KakaoVerifier,
	sessionSecret string,
	sendLimitPerMinute int,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:         users,
		codes:         codes,
		sender:        sender,
		limiter:       limiter,
		kakao:         kakaoVerifier,
		sessionSecret: []byte(sessionSecret),
		sendLimit:     sendLimitPerMinute,
		logger:        logger,
		now:           time.Now,
	}
}

// SendCode issues a fresh verification code for the phone number, replacing
// any code still pending. Returns the retry-after seconds along with
// ErrRateLimited when the send budget for the window is exhausted.
func (s *AuthService) SendCode(ctx context.Context, phoneNumber string) (int, error) {
	if !mobilePhonePattern.MatchString(phoneNumber) {
		return 0, ErrInvalidPhone
	}

	if s.limiter != nil {
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, rateLimitScope, phoneNumber, s.sendLimit, rateLimitWindow)
		if err != nil {
			// Redis being down should not lock everyone out of login.
			s.logger.Warn("sms rate limiter unavailable", "error", err)
		} else if s.sendLimit > 0 && count > s.sendLimit {
			return retryAfter, ErrRateLimited
		}
	}

	code, err := generateNumericCode(codeLength)
	if err != nil {
		return 0, fmt.Errorf("failed to generate verification code: %w", err)
	}

	now := s.now()
	record := domain.VerificationCode{
		ID:          uuid.New(),
		PhoneNumber: phoneNumber,
		Code:        code,
		ExpiresAt:   now.Add(codeTTL),
		MaxAttempts: maxCodeAttempts,
		CreatedAt:   now,
	}
	if err := s.codes.ReplaceCode(ctx, record); err != nil {
		return 0, fmt.Errorf("failed to store verification code: %w", err)
	}

	if err := s.sender.SendVerificationCode(ctx, phoneNumber, code); err != nil {
		return 0, fmt.Errorf("failed to send verification code: %w", err)
	}

	s.logger.Info("verification code sent", "phone_number", phoneNumber)
	return 0, nil
}

// VerifyCode checks the submitted code and, on success, upserts the user and
// returns a signed session token alongside the user record.
func (s *AuthService) VerifyCode(ctx context.Context, phoneNumber, code string) (string, *domain.User, error) {
	if !mobilePhonePattern.MatchString(phoneNumber) {
		return "", nil, ErrInvalidPhone
	}

	record, err := s.codes.FindActiveCode(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, store.ErrCodeNotFound) {
			return "", nil, ErrCodeInvalid
		}
		return "", nil, fmt.Errorf("failed to load verification code: %w", err)
	}

	now := s.now()
	if now.After(record.ExpiresAt) {
		return "", nil, ErrCodeExpired
	}
	if record.Attempts >= record.MaxAttempts {
		return "", nil, ErrTooManyAttempts
	}

	if record.Code != code {
		if err := s.codes.IncrementAttempts(ctx, record.ID); err != nil {
			s.logger.Warn("failed to record verification attempt", "error", err)
		}
		return "", nil, ErrCodeInvalid
	}

	if err := s.codes.MarkUsed(ctx, record.ID); err != nil {
		return "", nil, fmt.Errorf("failed to consume verification code: %w", err)
	}

	user, err := s.users.UpsertUserByPhone(ctx, phoneNumber)
	if err != nil {
		return "", nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	token, err := s.IssueSessionToken(user.ID, now)
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return token, user, nil
}

// LoginWithKakao verifies a Kakao access token with the provider, upserts
// the account it belongs to and returns a signed session token alongside the
// user record.
func (s *AuthService) LoginWithKakao(ctx context.Context, accessToken string) (string, *domain.User, error) {
	if s.kakao == nil {
		return "", nil, ErrOAuthUnavailable
	}
	if accessToken == "" {
		return "", nil, ErrOAuthTokenInvalid
	}

	profile, err := s.kakao.GetMe(ctx, accessToken)
	if err != nil {
		var apiErr *kakao.APIError
		if errors.As(err, &apiErr) {
			s.logger.Info("kakao token rejected", "code", apiErr.Code)
			return "", nil, ErrOAuthTokenInvalid
		}
		return "", nil, fmt.Errorf("failed to verify kakao token: %w", err)
	}

	user, err := s.users.UpsertUserByKakao(ctx, profile.ID, profile.Nickname, profile.ProfileImageURL, profile.Email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to upsert kakao user: %w", err)
	}

	token, err := s.IssueSessionToken(user.ID, s.now())
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("user logged in via kakao", "user_id", user.ID)
	return token, user, nil
}

// IssueSessionToken signs a session token for the user. Also used by the
// session middleware to refresh tokens on authenticated requests.
func (s *AuthService) IssueSessionToken(userID uuid.UUID, issuedAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": issuedAt.Unix(),
		"exp": issuedAt.Add(sessionTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.sessionSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ParseSessionToken validates a session token and returns the user ID it
// was issued for.
func (s *AuthService) ParseSessionToken(tokenString string) (uuid.UUID, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(s.now),
	)
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.sessionSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, errors.New("session token validation failed")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, errors.New("subject claim missing")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, errors.New("subject claim is not a user id")
	}
	return userID, nil
}

func generateNumericCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
