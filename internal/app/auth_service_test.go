package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
	"github.com/oz-TeamWizard/MealStack/internal/store"
	"github.com/oz-TeamWizard/MealStack/pkg/kakao"
)

type userRepoStub struct {
	users map[string]*domain.User
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{users: map[string]*domain.User{}}
}

func (s *userRepoStub) FindUserByPhone(ctx context.Context, phoneNumber string) (*domain.User, error) {
	u, ok := s.users[phoneNumber]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u, nil
}

func (s *userRepoStub) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *userRepoStub) UpsertUserByPhone(ctx context.Context, phoneNumber string) (*domain.User, error) {
	if u, ok := s.users[phoneNumber]; ok {
		u.LastLoginAt = time.Now()
		return u, nil
	}
	u := &domain.User{ID: uuid.New(), PhoneNumber: phoneNumber, CreatedAt: time.Now(), LastLoginAt: time.Now()}
	s.users[phoneNumber] = u
	return u, nil
}

func (s *userRepoStub) UpsertUserByKakao(ctx context.Context, kakaoID int64, nickname, profileImageURL, email string) (*domain.User, error) {
	key := "kakao:" + strconv.FormatInt(kakaoID, 10)
	if u, ok := s.users[key]; ok {
		u.Name = nickname
		u.ProfileImageURL = profileImageURL
		u.Email = email
		u.LastLoginAt = time.Now()
		return u, nil
	}
	u := &domain.User{
		ID:              uuid.New(),
		KakaoID:         kakaoID,
		Name:            nickname,
		ProfileImageURL: profileImageURL,
		Email:           email,
		CreatedAt:       time.Now(),
		LastLoginAt:     time.Now(),
	}
	s.users[key] = u
	return u, nil
}

type codeRepoStub struct {
	code       *domain.VerificationCode
	replaced   []domain.VerificationCode
	usedIDs    []uuid.UUID
	attemptIDs []uuid.UUID
}

func (s *codeRepoStub) ReplaceCode(ctx context.Context, code domain.VerificationCode) error {
	s.replaced = append(s.replaced, code)
	cp := code
	s.code = &cp
	return nil
}

func (s *codeRepoStub) FindActiveCode(ctx context.Context, phoneNumber string) (*domain.VerificationCode, error) {
	if s.code == nil || s.code.PhoneNumber != phoneNumber {
		return nil, store.ErrCodeNotFound
	}
	cp := *s.code
	return &cp, nil
}

func (s *codeRepoStub) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	s.attemptIDs = append(s.attemptIDs, id)
	if s.code != nil && s.code.ID == id {
		s.code.Attempts++
	}
	return nil
}

func (s *codeRepoStub) MarkUsed(ctx context.Context, id uuid.UUID) error {
	s.usedIDs = append(s.usedIDs, id)
	return nil
}

func (s *codeRepoStub) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type smsSenderStub struct {
	sent []string // "phone:code"
	err  error
}

func (s *smsSenderStub) SendVerificationCode(ctx context.Context, phoneNumber, code string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, phoneNumber+":"+code)
	return nil
}

type limiterStub struct {
	count      int
	retryAfter int
	err        error
}

func (s *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return s.count, s.retryAfter, s.err
}

type kakaoVerifierStub struct {
	profile *kakao.Profile
	err     error
	tokens  []string
}

func (s *kakaoVerifierStub) GetMe(ctx context.Context, accessToken string) (*kakao.Profile, error) {
	s.tokens = append(s.tokens, accessToken)
	if s.err != nil {
		return nil, s.err
	}
	return s.profile, nil
}

func newTestAuthService(users store.UserRepository, codes store.VerificationCodeRepository, sender SMSSender, limiter RateLimiter) *AuthService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthService(users, codes, sender, limiter, nil, "test-session-secret", 5, logger)
}

func TestSendCodeRejectsInvalidPhone(t *testing.T) {
	svc := newTestAuthService(newUserRepoStub(), &codeRepoStub{}, &smsSenderStub{}, nil)

	for _, phone := range []string{"", "011234", "01112345678", "0101234567890"} {
		if _, err := svc.SendCode(context.Background(), phone); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("phone=%q: expected ErrInvalidPhone, got %v", phone, err)
		}
	}
}

func TestSendCodeStoresAndSendsCode(t *testing.T) {
	codes := &codeRepoStub{}
	sender := &smsSenderStub{}
	svc := newTestAuthService(newUserRepoStub(), codes, sender, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if _, err := svc.SendCode(context.Background(), "01012345678"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(codes.replaced) != 1 {
		t.Fatalf("expected one stored code, got %d", len(codes.replaced))
	}
	stored := codes.replaced[0]
	if len(stored.Code) != 6 {
		t.Errorf("expected a 6-digit code, got %q", stored.Code)
	}
	if want := now.Add(3 * time.Minute); !stored.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, stored.ExpiresAt)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "01012345678:"+stored.Code {
		t.Errorf("expected the stored code sent to the phone, got %v", sender.sent)
	}
}

func TestSendCodeRateLimited(t *testing.T) {
	limiter := &limiterStub{count: 6, retryAfter: 42}
	svc := newTestAuthService(newUserRepoStub(), &codeRepoStub{}, &smsSenderStub{}, limiter)

	retryAfter, err := svc.SendCode(context.Background(), "01012345678")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if retryAfter != 42 {
		t.Errorf("expected retry-after 42, got %d", retryAfter)
	}
}

func TestSendCodeSurvivesLimiterOutage(t *testing.T) {
	limiter := &limiterStub{err: errors.New("redis down")}
	codes := &codeRepoStub{}
	svc := newTestAuthService(newUserRepoStub(), codes, &smsSenderStub{}, limiter)

	if _, err := svc.SendCode(context.Background(), "01012345678"); err != nil {
		t.Fatalf("expected send to proceed through limiter outage, got %v", err)
	}
	if len(codes.replaced) != 1 {
		t.Error("expected the code to be stored despite the limiter outage")
	}
}

func activeCode(phone, code string, now time.Time) *domain.VerificationCode {
	return &domain.VerificationCode{
		ID:          uuid.New(),
		PhoneNumber: phone,
		Code:        code,
		ExpiresAt:   now.Add(3 * time.Minute),
		MaxAttempts: 5,
		CreatedAt:   now,
	}
}

func TestVerifyCodeSuccess(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	users := newUserRepoStub()
	codes := &codeRepoStub{code: activeCode("01012345678", "123456", now)}
	svc := newTestAuthService(users, codes, &smsSenderStub{}, nil)
	svc.now = func() time.Time { return now }

	token, user, err := svc.VerifyCode(context.Background(), "01012345678", "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil || user.PhoneNumber != "01012345678" {
		t.Fatalf("expected a user for the phone number, got %+v", user)
	}
	if len(codes.usedIDs) != 1 {
		t.Error("expected the code marked used")
	}

	parsedID, err := svc.ParseSessionToken(token)
	if err != nil {
		t.Fatalf("expected the issued token to parse: %v", err)
	}
	if parsedID != user.ID {
		t.Errorf("expected token subject %v, got %v", user.ID, parsedID)
	}
}

func TestVerifyCodeMismatchIncrementsAttempts(t *testing.T) {
	now := time.Now()
	codes := &codeRepoStub{code: activeCode("01012345678", "123456", now)}
	svc := newTestAuthService(newUserRepoStub(), codes, &smsSenderStub{}, nil)

	if _, _, err := svc.VerifyCode(context.Background(), "01012345678", "654321"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
	if len(codes.attemptIDs) != 1 {
		t.Error("expected the attempt counter incremented")
	}
	if len(codes.usedIDs) != 0 {
		t.Error("expected the code not marked used")
	}
}

func TestVerifyCodeExpired(t *testing.T) {
	now := time.Now()
	code := activeCode("01012345678", "123456", now.Add(-10*time.Minute))
	codes := &codeRepoStub{code: code}
	svc := newTestAuthService(newUserRepoStub(), codes, &smsSenderStub{}, nil)

	if _, _, err := svc.VerifyCode(context.Background(), "01012345678", "123456"); !errors.Is(err, ErrCodeExpired) {
		t.Errorf("expected ErrCodeExpired, got %v", err)
	}
}

func TestVerifyCodeTooManyAttempts(t *testing.T) {
	now := time.Now()
	code := activeCode("01012345678", "123456", now)
	code.Attempts = code.MaxAttempts
	codes := &codeRepoStub{code: code}
	svc := newTestAuthService(newUserRepoStub(), codes, &smsSenderStub{}, nil)

	if _, _, err := svc.VerifyCode(context.Background(), "01012345678", "123456"); !errors.Is(err, ErrTooManyAttempts) {
		t.Errorf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestVerifyCodeUnknownPhone(t *testing.T) {
	codes := &codeRepoStub{}
	svc := newTestAuthService(newUserRepoStub(), codes, &smsSenderStub{}, nil)

	if _, _, err := svc.VerifyCode(context.Background(), "01012345678", "123456"); !errors.Is(err, ErrCodeInvalid) {
		t.Errorf("expected ErrCodeInvalid for an unknown phone, got %v", err)
	}
}

func TestLoginWithKakaoSuccess(t *testing.T) {
	users := newUserRepoStub()
	verifier := &kakaoVerifierStub{profile: &kakao.Profile{
		ID:              987654321,
		Nickname:        "밀스택러버",
		ProfileImageURL: "https://k.kakaocdn.net/img.jpg",
		Email:           "lover@example.com",
	}}
	svc := newTestAuthService(users, &codeRepoStub{}, &smsSenderStub{}, nil)
	svc.kakao = verifier

	token, user, err := svc.LoginWithKakao(context.Background(), "sdk-access-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil || user.KakaoID != 987654321 {
		t.Fatalf("expected a user bound to the kakao account, got %+v", user)
	}
	if user.Name != "밀스택러버" || user.Email != "lover@example.com" {
		t.Errorf("expected profile fields carried onto the user, got %+v", user)
	}
	if len(verifier.tokens) != 1 || verifier.tokens[0] != "sdk-access-token" {
		t.Errorf("expected the submitted token verified with the provider, got %v", verifier.tokens)
	}

	parsedID, err := svc.ParseSessionToken(token)
	if err != nil {
		t.Fatalf("expected the issued token to parse: %v", err)
	}
	if parsedID != user.ID {
		t.Errorf("expected token subject %v, got %v", user.ID, parsedID)
	}
}

func TestLoginWithKakaoReturningUserKeepsID(t *testing.T) {
	users := newUserRepoStub()
	verifier := &kakaoVerifierStub{profile: &kakao.Profile{ID: 42, Nickname: "단골"}}
	svc := newTestAuthService(users, &codeRepoStub{}, &smsSenderStub{}, nil)
	svc.kakao = verifier

	_, first, err := svc.LoginWithKakao(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, second, err := svc.LoginWithKakao(context.Background(), "token-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the same user across logins, got %v and %v", first.ID, second.ID)
	}
}

func TestLoginWithKakaoRejectedToken(t *testing.T) {
	verifier := &kakaoVerifierStub{err: &kakao.APIError{Code: -401, Message: "this access token does not exist"}}
	svc := newTestAuthService(newUserRepoStub(), &codeRepoStub{}, &smsSenderStub{}, nil)
	svc.kakao = verifier

	if _, _, err := svc.LoginWithKakao(context.Background(), "expired-token"); !errors.Is(err, ErrOAuthTokenInvalid) {
		t.Errorf("expected ErrOAuthTokenInvalid, got %v", err)
	}
}

func TestLoginWithKakaoWithoutVerifier(t *testing.T) {
	svc := newTestAuthService(newUserRepoStub(), &codeRepoStub{}, &smsSenderStub{}, nil)

	if _, _, err := svc.LoginWithKakao(context.Background(), "token"); !errors.Is(err, ErrOAuthUnavailable) {
		t.Errorf("expected ErrOAuthUnavailable, got %v", err)
	}
}

func TestLoginWithKakaoEmptyToken(t *testing.T) {
	svc := newTestAuthService(newUserRepoStub(), &codeRepoStub{}, &smsSenderStub{}, nil)
	svc.kakao = &kakaoVerifierStub{profile: &kakao.Profile{ID: 1}}

	if _, _, err := svc.LoginWithKakao(context.Background(), ""); !errors.Is(err, ErrOAuthTokenInvalid) {
		t.Errorf("expected ErrOAuthTokenInvalid for an empty token, got %v", err)
	}
}

func TestParseSessionTokenRejectsWrongSecret(t *testing.T) {
	svc := newTestAuthService(newUserRepoStub(), &codeRepoStub{}, &smsSenderStub{}, nil)
	other := newTestAuthService(newUserRepoStub(), &codeRepoStub{}, &smsSenderStub{}, nil)
	other.sessionSecret = []byte("different-secret")

	token, err := svc.IssueSessionToken(uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := other.ParseSessionToken(token); err == nil {
		t.Error("expected token signed with another secret to be rejected")
	}
}
