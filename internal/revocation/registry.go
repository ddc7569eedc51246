package revocation

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nkurbanov/campus_registry/internal/logging"
	"github.com/nkurbanov/campus_registry/internal/models"
)

// Registry is the durable jti blocklist. Rows live in the database so
// revocations survive restarts and hold across multiple server instances;
// a row becomes garbage once the token it belonged to expires.
type Registry struct {
	DB *gorm.DB
}

// Revoke records the jti. Idempotent: revoking the same jti twice is a
// no-op, not an error.
func (r *Registry) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	entry := models.RevokedToken{
		JTI:       jti,
		ExpiresAt: expiresAt.Unix(),
	}
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "jti"}}, DoNothing: true}).
		Create(&entry).Error
}

func (r *Registry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.RevokedToken{}).
		Where("jti = ?", jti).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// PurgeExpired drops entries whose tokens have expired on their own;
// verification rejects such tokens as expired before the registry is ever
// consulted, so the rows carry no information anymore.
func (r *Registry) PurgeExpired(ctx context.Context) (int64, error) {
	result := r.DB.WithContext(ctx).
		Where("expires_at < ?", time.Now().Unix()).
		Delete(&models.RevokedToken{})
	return result.RowsAffected, result.Error
}

// StartPurgeLoop purges on every tick until ctx is cancelled.
func (r *Registry) StartPurgeLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := r.PurgeExpired(ctx)
				l := logging.FromContext(ctx).With("component", "revocation_purge")
				if err != nil {
					l.Error("purge_failed", "error", err)
				} else if n > 0 {
					l.Info("purged_expired_revocations", "count", n)
				}
			}
		}
	}()
}
