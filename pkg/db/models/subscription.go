package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/starter-billing/pkg/enums"
)

// Subscription is the single billing record an organization owns.
type Subscription struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrganizationID string                   `gorm:"column:organization_id;not null;uniqueIndex:subscriptions_organization_id_key"`
	Status         enums.SubscriptionStatus `gorm:"column:status;not null"`
	BillingPeriod  *enums.BillingPeriod     `gorm:"column:billing_period"`
	TrialEndsAt    *time.Time               `gorm:"column:trial_ends_at"`
	StartDate      *time.Time               `gorm:"column:start_date"`
	EndDate        *time.Time               `gorm:"column:end_date"`
	Version        int64                    `gorm:"column:version;not null"`
	CreatedAt      time.Time                `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt      time.Time                `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
