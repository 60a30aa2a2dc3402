package stripe

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/starter-billing/pkg/config"
)

func TestNewClientValidatesKeys(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, config.StripeConfig{}, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_live_123", Env: "test"}, nil)
	require.Error(t, err)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_123", Env: "staging"}, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "rk_live_123", Env: "LIVE", Secret: " whsec_1 "}, nil)
	require.NoError(t, err)
	assert.Equal(t, "live", client.Environment())
	assert.Equal(t, "whsec_1", client.SigningSecret())
}

func TestSearchSubscriptionsBuildsParams(t *testing.T) {
	var captured *stripe.SubscriptionSearchParams
	client := &Client{search: func(params *stripe.SubscriptionSearchParams) ([]*stripe.Subscription, error) {
		captured = params
		return []*stripe.Subscription{{ID: "sub_1", Status: stripe.SubscriptionStatusActive}}, nil
	}}

	subs, err := client.SearchSubscriptions(context.Background(), "status:'active'", 0)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "sub_1", subs[0].ID)
	require.NotNil(t, captured)
	assert.Equal(t, "status:'active'", captured.Query)
	assert.EqualValues(t, 1, *captured.Limit)
	assert.True(t, captured.Single)
}

func TestSearchSubscriptionsWrapsErrors(t *testing.T) {
	client := &Client{search: func(*stripe.SubscriptionSearchParams) ([]*stripe.Subscription, error) {
		return nil, errors.New("api down")
	}}
	_, err := client.SearchSubscriptions(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api down")

	var nilClient *Client
	_, err = nilClient.SearchSubscriptions(context.Background(), "q", 1)
	require.Error(t, err)
}
