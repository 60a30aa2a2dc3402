package payments

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/starter-billing/pkg/db"
	"github.com/angelmondragon/starter-billing/pkg/db/models"
	"github.com/angelmondragon/starter-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/pagination"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (Service, *time.Time) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Payment{}))

	now := t0
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(conn),
		TransactionRunner: db.FromConn(conn),
		Now:               func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc, &now
}

func createInput(organizationID, externalID string) CreateInput {
	return CreateInput{
		OrganizationID: organizationID,
		ExternalID:     externalID,
		BillingPeriod:  enums.BillingPeriodMonthly,
		Amount:         decimal.RequireFromString("5"),
		Currency:       "usd",
		PayAddress:     "bc1qexampleaddress",
	}
}

func TestCreateAndFindByExternalID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput("org-1", "np-1001"))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusWaiting, created.Status)
	assert.Equal(t, "USD", created.Currency)
	assert.True(t, created.CreatedAt.Equal(t0))

	found, err := svc.FindByExternalID(ctx, "np-1001")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "org-1", found.OrganizationID)
	assert.Equal(t, enums.BillingPeriodMonthly, found.BillingPeriod)
	assert.True(t, found.Amount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "bc1qexampleaddress", found.PayAddress)
	assert.Nil(t, found.ActuallyPaid)

	missing, err := svc.FindByExternalID(ctx, "np-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateRejectsDuplicateExternalID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, createInput("org-1", "np-1"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, createInput("org-2", "np-1"))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]func(in *CreateInput){
		"organization": func(in *CreateInput) { in.OrganizationID = "" },
		"external id":  func(in *CreateInput) { in.ExternalID = " " },
		"period":       func(in *CreateInput) { in.BillingPeriod = "weekly" },
		"amount":       func(in *CreateInput) { in.Amount = decimal.Zero },
		"currency":     func(in *CreateInput) { in.Currency = "" },
		"status":       func(in *CreateInput) { in.Status = "settled" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := createInput("org-1", "np-1")
			mutate(&in)
			_, err := svc.Create(ctx, in)
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestFindByIDAndOrganizationHidesOtherTenants(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput("org-1", "np-1"))
	require.NoError(t, err)

	found, err := svc.FindByIDAndOrganization(ctx, created.ID, "org-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = svc.FindByIDAndOrganization(ctx, created.ID, "org-2")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = svc.FindByIDAndOrganization(ctx, uuid.New(), "org-1")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestListByOrganizationNewestFirst(t *testing.T) {
	svc, now := newTestService(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		*now = t0.Add(time.Duration(i) * time.Hour)
		created, err := svc.Create(ctx, createInput("org-1", fmt.Sprintf("np-%d", i)))
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}
	_, err := svc.Create(ctx, createInput("org-2", "np-other"))
	require.NoError(t, err)

	first, err := svc.ListByOrganization(ctx, "org-1", pagination.Params{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first.Items, 3)
	assert.Equal(t, ids[4], first.Items[0].ID)
	assert.Equal(t, ids[3], first.Items[1].ID)
	assert.Equal(t, ids[2], first.Items[2].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListByOrganization(ctx, "org-1", pagination.Params{Limit: 3, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, ids[1], second.Items[0].ID)
	assert.Equal(t, ids[0], second.Items[1].ID)
	assert.Empty(t, second.NextCursor)

	empty, err := svc.ListByOrganization(ctx, "org-3", pagination.Params{})
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)

	_, err = svc.ListByOrganization(ctx, "org-1", pagination.Params{Cursor: "***"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestUpdateWalksStateMachine(t *testing.T) {
	svc, now := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput("org-1", "np-1"))
	require.NoError(t, err)

	*now = t0.Add(time.Minute)
	transition, err := svc.Update(ctx, created.ID, UpdateInput{Status: enums.PaymentStatusConfirming})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusWaiting, transition.From)
	assert.False(t, transition.Settled())

	paid := decimal.RequireFromString("5")
	transition, err = svc.Update(ctx, created.ID, UpdateInput{Status: enums.PaymentStatusFinished, ActuallyPaid: &paid})
	require.NoError(t, err)
	assert.True(t, transition.Settled())
	require.NotNil(t, transition.Payment.ActuallyPaid)
	assert.True(t, transition.Payment.ActuallyPaid.Equal(paid))

	again, err := svc.Update(ctx, created.ID, UpdateInput{Status: enums.PaymentStatusFinished})
	require.NoError(t, err)
	assert.False(t, again.Settled())
	require.NotNil(t, again.Payment.ActuallyPaid)

	_, err = svc.Update(ctx, created.ID, UpdateInput{Status: enums.PaymentStatusRefunded})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	stored, err := svc.FindByExternalID(ctx, "np-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFinished, stored.Status)
	assert.WithinDuration(t, t0.Add(time.Minute), stored.UpdatedAt, time.Second)
}

func TestUpdateRejectsBackwardMoveAndUnknownPayment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput("org-1", "np-1"))
	require.NoError(t, err)
	_, err = svc.Update(ctx, created.ID, UpdateInput{Status: enums.PaymentStatusSending})
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.ID, UpdateInput{Status: enums.PaymentStatusConfirming})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.Update(ctx, uuid.New(), UpdateInput{Status: enums.PaymentStatusConfirming})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Update(ctx, created.ID, UpdateInput{Status: "bogus"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
