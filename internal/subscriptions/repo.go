package subscriptions

import (
	"context"
	"errors"

	"github.com/angelmondragon/starter-billing/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists the one subscription row each organization owns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, subscription *models.Subscription) error
	FindByOrganization(ctx context.Context, organizationID string) (*models.Subscription, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	UpdateIfVersion(ctx context.Context, subscription *models.Subscription, expectedVersion int64) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) FindByOrganization(ctx context.Context, organizationID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// UpdateIfVersion writes every mutable column of subscription only when the stored
// version still equals expectedVersion. It reports false when another writer won.
func (r *repository) UpdateIfVersion(ctx context.Context, subscription *models.Subscription, expectedVersion int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND version = ?", subscription.ID, expectedVersion).
		Updates(map[string]any{
			"status":         subscription.Status,
			"billing_period": subscription.BillingPeriod,
			"trial_ends_at":  subscription.TrialEndsAt,
			"start_date":     subscription.StartDate,
			"end_date":       subscription.EndDate,
			"version":        subscription.Version,
			"updated_at":     subscription.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
