package revocation

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/imageiq/internal/logging"
	"github.com/Skotchmaster/imageiq/internal/models"
)

// GormStore keeps entries in the refresh_sessions table.
type GormStore struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db, now: time.Now}
}

// WithClock replaces time.Now, mainly for tests.
func (s *GormStore) WithClock(now func() time.Time) *GormStore {
	s.now = now
	return s
}

func (s *GormStore) Put(ctx context.Context, subject, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, subject)
	}
	row := models.RefreshSession{
		Subject:   subject,
		TokenHash: value,
		ExpiresAt: s.now().Add(ttl).UnixMilli(),
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject"}},
		DoUpdates: clause.AssignmentColumns([]string{"token_hash", "expires_at", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) Get(ctx context.Context, subject string) (string, error) {
	var row models.RefreshSession
	if err := s.DB.WithContext(ctx).Where("subject = ?", subject).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if row.ExpiresAt <= s.now().UnixMilli() {
		// only this exact row; a concurrent Put may already have replaced it
		if err := s.DB.WithContext(ctx).
			Where("subject = ? AND expires_at = ?", subject, row.ExpiresAt).
			Delete(&models.RefreshSession{}).Error; err != nil {
			return "", err
		}
		return "", ErrNotFound
	}
	return row.TokenHash, nil
}

func (s *GormStore) Delete(ctx context.Context, subject string) error {
	return s.DB.WithContext(ctx).Where("subject = ?", subject).Delete(&models.RefreshSession{}).Error
}

// PurgeExpired removes every expired row.
func (s *GormStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("expires_at <= ?", s.now().UnixMilli()).
		Delete(&models.RefreshSession{})
	return res.RowsAffected, res.Error
}

// RunJanitor purges expired rows every interval until ctx is done.
func (s *GormStore) RunJanitor(ctx context.Context, interval time.Duration) {
	l := logging.FromContext(ctx).With("component", "revocation.janitor")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				l.Error("purge_failed", "error", err)
				continue
			}
			if n > 0 {
				l.Debug("purged_expired_sessions", "count", n)
			}
		}
	}
}
