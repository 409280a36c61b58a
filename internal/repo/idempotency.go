package repo

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/chatverse/internal/domain"
)

// ErrDuplicate indicates that an idempotency record already exists for the
// given (user_id, room_id, key) tuple.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, roomID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND room_id = ? AND key = ? AND expires_at > ?", userID, roomID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique violation.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, roomID, key, messageID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return insertIdempotency(ctx, db, userID, roomID, key, messageID, status, ttl, time.Now().UTC())
}

func insertIdempotency(ctx context.Context, db *gorm.DB, userID, roomID, key, messageID string, status int, ttl time.Duration, now time.Time) (*domain.Idempotency, error) {
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		RoomID:    roomID,
		Key:       key,
		MessageID: messageID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeIdempotency deletes records that expired before now and returns how
// many were removed.
func PurgeIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

// Replays adapts the idempotency log to the send endpoint. A key is claimed
// with a pending row before the send runs, so the unique index admits one
// sender per (user, room, key); Complete or Release settles the claim.
type Replays struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time
}

// statusPending marks a claimed key whose send has not settled.
const statusPending = http.StatusAccepted

// Lookup returns the message id of a settled send for (user, room, key).
// Pending claims are not reported.
func (r Replays) Lookup(ctx context.Context, userID, roomID, key string) (string, bool, error) {
	rec, err := GetIdempotency(ctx, r.DB, userID, roomID, key, r.now())
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if rec.Status != http.StatusOK {
		return "", false, nil
	}
	return rec.MessageID, true, nil
}

// Claim reserves (user, room, key) for a send. claimed is true when the
// caller now owns the key. Otherwise messageID holds the settled send's
// message, or is empty while another send still holds the claim.
func (r Replays) Claim(ctx context.Context, userID, roomID, key string) (messageID string, claimed bool, err error) {
	now := r.now()
	// An expired record no longer holds its key.
	err = r.DB.WithContext(ctx).
		Where("user_id = ? AND room_id = ? AND key = ? AND expires_at <= ?", userID, roomID, key, now).
		Delete(&domain.Idempotency{}).Error
	if err != nil {
		return "", false, err
	}

	_, err = insertIdempotency(ctx, r.DB, userID, roomID, key, "", statusPending, r.ttl(), now)
	if err == nil {
		return "", true, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return "", false, err
	}

	rec, err := GetIdempotency(ctx, r.DB, userID, roomID, key, now)
	switch {
	case errors.Is(err, ErrNotFound):
		return "", false, nil
	case err != nil:
		return "", false, err
	case rec.Status != http.StatusOK:
		return "", false, nil
	}
	return rec.MessageID, false, nil
}

// Complete settles a claim with the message the send produced. A claim that
// vanished (purged or released) is recreated.
func (r Replays) Complete(ctx context.Context, userID, roomID, key, messageID string) error {
	res := r.DB.WithContext(ctx).Model(&domain.Idempotency{}).
		Where("user_id = ? AND room_id = ? AND key = ? AND status = ?", userID, roomID, key, statusPending).
		Updates(map[string]any{"message_id": messageID, "status": http.StatusOK})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	_, err := insertIdempotency(ctx, r.DB, userID, roomID, key, messageID, http.StatusOK, r.ttl(), r.now())
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}

// Release drops a pending claim after a failed send so the key can be retried.
func (r Replays) Release(ctx context.Context, userID, roomID, key string) error {
	return r.DB.WithContext(ctx).
		Where("user_id = ? AND room_id = ? AND key = ? AND status = ?", userID, roomID, key, statusPending).
		Delete(&domain.Idempotency{}).Error
}

func (r Replays) ttl() time.Duration {
	if r.TTL <= 0 {
		return 24 * time.Hour
	}
	return r.TTL
}

func (r Replays) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}
