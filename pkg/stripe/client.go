package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"

	"github.com/angelmondragon/starter-billing/pkg/config"
	"github.com/angelmondragon/starter-billing/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

type searchFunc func(params *stripe.SubscriptionSearchParams) ([]*stripe.Subscription, error)

// Client wraps the Stripe subscription API plus env-specific metadata.
type Client struct {
	environment   string
	signingSecret string
	search        searchFunc
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey

	signingSecret := strings.TrimSpace(cfg.Secret)
	if logg != nil {
		ctx = logg.WithField(ctx, "stripe_env", env)
		logg.Info(ctx, "stripe client initialized")
		if signingSecret == "" {
			logg.Warn(ctx, "stripe webhook secret not configured; portal cache invalidation disabled")
		}
	}

	return &Client{
		environment:   env,
		signingSecret: signingSecret,
		search:        searchSubscriptions,
	}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// SearchSubscriptions runs a Stripe search query and returns the first page of matches.
func (c *Client) SearchSubscriptions(ctx context.Context, query string, limit int64) ([]*stripe.Subscription, error) {
	if c == nil || c.search == nil {
		return nil, errors.New("stripe client not initialized")
	}
	if limit <= 0 {
		limit = 1
	}
	params := &stripe.SubscriptionSearchParams{
		SearchParams: stripe.SearchParams{
			Context: ctx,
			Query:   query,
			Limit:   stripe.Int64(limit),
			Single:  true,
		},
	}
	subs, err := c.search(params)
	if err != nil {
		return nil, fmt.Errorf("search stripe subscriptions: %w", err)
	}
	return subs, nil
}

func searchSubscriptions(params *stripe.SubscriptionSearchParams) ([]*stripe.Subscription, error) {
	iter := subscription.Search(params)
	var out []*stripe.Subscription
	for iter.Next() {
		out = append(out, iter.Subscription())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
