package payments

import (
	"context"
	"errors"

	"github.com/angelmondragon/starter-billing/pkg/db/models"
	"github.com/angelmondragon/starter-billing/pkg/enums"
	"github.com/angelmondragon/starter-billing/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists ledger entries. Rows are never deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	List(ctx context.Context, params ListQuery) ([]models.Payment, *pagination.Cursor, error)
	UpdateIfStatus(ctx context.Context, payment *models.Payment, expected enums.PaymentStatus) (bool, error)
}

// ListQuery configures ledger list queries.
type ListQuery struct {
	OrganizationID string
	Limit          int
	Cursor         *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	return r.findOne(ctx, "external_id = ?", externalID)
}

func (r *repository) findOne(ctx context.Context, clause string, arg any) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where(clause, arg).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) List(ctx context.Context, params ListQuery) ([]models.Payment, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("organization_id = ?", params.OrganizationID)
	if params.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var payments []models.Payment
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&payments).Error; err != nil {
		return nil, nil, err
	}

	page, next := pagination.Trim(payments, params.Limit, func(p models.Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return page, next, nil
}

// UpdateIfStatus writes the mutable columns only when the stored status still equals
// expected. It reports false when a concurrent notification moved the payment first.
func (r *repository) UpdateIfStatus(ctx context.Context, payment *models.Payment, expected enums.PaymentStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, expected).
		Updates(map[string]any{
			"status":          payment.Status,
			"actually_paid":   payment.ActuallyPaid,
			"subscription_id": payment.SubscriptionID,
			"updated_at":      payment.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
