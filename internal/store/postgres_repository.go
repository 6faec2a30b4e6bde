/**
 * @description
 * This file implements the PostgreSQL data-access layer for users and SMS
 * verification codes. Subscription and order queries live in their own files
 * in this package.
 *
 * @notes
 * - Tables are created by external migrations; this layer only reads and
 *   writes them.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
)

// Repository handles database operations for the commerce service.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository backed by the given pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// FindUserByPhone retrieves a user by normalized phone number.
func (r *Repository) FindUserByPhone(ctx context.Context, phoneNumber string) (*domain.User, error) {
	var u domain.User
	query := `
        SELECT id, COALESCE(phone_number, ''), COALESCE(kakao_id, 0), COALESCE(name, ''), COALESCE(email, ''), COALESCE(profile_image_url, ''), created_at, last_login_at
        FROM users
        WHERE phone_number = $1
    `
	err := r.db.QueryRow(ctx, query, phoneNumber).Scan(
		&u.ID,
		&u.PhoneNumber,
		&u.KakaoID,
		&u.Name,
		&u.Email,
		&u.ProfileImageURL,
		&u.CreatedAt,
		&u.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user by phone: %w", err)
	}
	return &u, nil
}

// FindUserByID retrieves a user by ID.
func (r *Repository) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	query := `
        SELECT id, COALESCE(phone_number, ''), COALESCE(kakao_id, 0), COALESCE(name, ''), COALESCE(email, ''), COALESCE(profile_image_url, ''), created_at, last_login_at
        FROM users
        WHERE id = $1
    `
	err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.PhoneNumber,
		&u.KakaoID,
		&u.Name,
		&u.Email,
		&u.ProfileImageURL,
		&u.CreatedAt,
		&u.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user by id: %w", err)
	}
	return &u, nil
}

// UpsertUserByPhone creates the user on first verification or stamps
// last_login_at on a returning one.
func (r *Repository) UpsertUserByPhone(ctx context.Context, phoneNumber string) (*domain.User, error) {
	var u domain.User
	query := `
        INSERT INTO users (id, phone_number, created_at, last_login_at)
        VALUES ($1, $2, NOW(), NOW())
        ON CONFLICT (phone_number) DO UPDATE SET last_login_at = NOW()
        RETURNING id, COALESCE(phone_number, ''), COALESCE(kakao_id, 0), COALESCE(name, ''), COALESCE(email, ''), COALESCE(profile_image_url, ''), created_at, last_login_at
    `
	err := r.db.QueryRow(ctx, query, uuid.New(), phoneNumber).Scan(
		&u.ID,
		&u.PhoneNumber,
		&u.KakaoID,
		&u.Name,
		&u.Email,
		&u.ProfileImageURL,
		&u.CreatedAt,
		&u.LastLoginAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &u, nil
}

// UpsertUserByKakao creates the user on first Kakao login or stamps
// last_login_at and refreshes the profile on a returning one.
func (r *Repository) UpsertUserByKakao(ctx context.Context, kakaoID int64, nickname, profileImageURL, email string) (*domain.User, error) {
	var u domain.User
	query := `
        INSERT INTO users (id, kakao_id, name, profile_image_url, email, created_at, last_login_at)
        VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NOW(), NOW())
        ON CONFLICT (kakao_id) DO UPDATE SET
            name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
            profile_image_url = COALESCE(NULLIF(EXCLUDED.profile_image_url, ''), users.profile_image_url),
            email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
            last_login_at = NOW()
        RETURNING id, COALESCE(phone_number, ''), COALESCE(kakao_id, 0), COALESCE(name, ''), COALESCE(email, ''), COALESCE(profile_image_url, ''), created_at, last_login_at
    `
	err := r.db.QueryRow(ctx, query, uuid.New(), kakaoID, nickname, profileImageURL, email).Scan(
		&u.ID,
		&u.PhoneNumber,
		&u.KakaoID,
		&u.Name,
		&u.Email,
		&u.ProfileImageURL,
		&u.CreatedAt,
		&u.LastLoginAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert kakao user: %w", err)
	}
	return &u, nil
}

// ReplaceCode deletes any unused codes for the phone number and inserts the
// new one, so at most one live code exists per phone.
func (r *Repository) ReplaceCode(ctx context.Context, code domain.VerificationCode) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin code replacement: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM sms_verification_codes WHERE phone_number = $1 AND used = FALSE`,
		code.PhoneNumber,
	); err != nil {
		return fmt.Errorf("failed to delete stale codes: %w", err)
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO sms_verification_codes (id, phone_number, code, expires_at, attempts, max_attempts, used, created_at)
        VALUES ($1, $2, $3, $4, 0, $5, FALSE, NOW())
    `, code.ID, code.PhoneNumber, code.Code, code.ExpiresAt, code.MaxAttempts); err != nil {
		return fmt.Errorf("failed to insert verification code: %w", err)
	}

	return tx.Commit(ctx)
}

// FindActiveCode returns the newest unused code for the phone number.
func (r *Repository) FindActiveCode(ctx context.Context, phoneNumber string) (*domain.VerificationCode, error) {
	var c domain.VerificationCode
	query := `
        SELECT id, phone_number, code, expires_at, attempts, max_attempts, used, created_at
        FROM sms_verification_codes
        WHERE phone_number = $1 AND used = FALSE
        ORDER BY created_at DESC
        LIMIT 1
    `
	err := r.db.QueryRow(ctx, query, phoneNumber).Scan(
		&c.ID,
		&c.PhoneNumber,
		&c.Code,
		&c.ExpiresAt,
		&c.Attempts,
		&c.MaxAttempts,
		&c.Used,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to query verification code: %w", err)
	}
	return &c, nil
}

// IncrementAttempts bumps the attempt counter after a mismatch.
func (r *Repository) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sms_verification_codes SET attempts = attempts + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment code attempts: %w", err)
	}
	return nil
}

// MarkUsed consumes a verification code.
func (r *Repository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sms_verification_codes SET used = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark code used: %w", err)
	}
	return nil
}

// DeleteExpired removes codes that expired before the given time.
func (r *Repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM sms_verification_codes WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
