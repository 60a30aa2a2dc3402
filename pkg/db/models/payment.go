package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/starter-billing/pkg/enums"
)

// Payment is a ledger entry mirroring one transaction at the payment gateway.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrganizationID string              `gorm:"column:organization_id;not null;index:payments_organization_created_idx,priority:1"`
	SubscriptionID *uuid.UUID          `gorm:"column:subscription_id;type:uuid"`
	ExternalID     string              `gorm:"column:external_id;not null;uniqueIndex:payments_external_id_key"`
	BillingPeriod  enums.BillingPeriod `gorm:"column:billing_period;not null"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(20,8);not null"`
	Currency       string              `gorm:"column:currency;not null"`
	PayAddress     string              `gorm:"column:pay_address;not null"`
	Status         enums.PaymentStatus `gorm:"column:status;not null"`
	ActuallyPaid   *decimal.Decimal    `gorm:"column:actually_paid;type:numeric(20,8)"`
	IPNCallbackURL *string             `gorm:"column:ipn_callback_url"`
	CreatedAt      time.Time           `gorm:"column:created_at;not null;autoCreateTime:false;index:payments_organization_created_idx,priority:2,sort:desc"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (Payment) TableName() string {
	return "payments"
}
