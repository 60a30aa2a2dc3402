package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v82"

	"github.com/angelmondragon/starter-billing/pkg/logger"
	"github.com/angelmondragon/starter-billing/pkg/metrics"
)

const (
	// ReferenceMetadataKey is the Stripe subscription metadata field holding the organization id.
	ReferenceMetadataKey = "reference_id"

	searchLimit  = 10
	cachedActive = "1"
	cachedAbsent = "0"
)

type subscriptionSearcher interface {
	SearchSubscriptions(ctx context.Context, query string, limit int64) ([]*stripe.Subscription, error)
}

// Cache is the Redis surface the checker needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	PortalKey(referenceID string) string
}

// CheckerParams groups dependencies for the portal checker.
type CheckerParams struct {
	Searcher subscriptionSearcher
	Cache    Cache
	TTL      time.Duration
	Metrics  *metrics.BillingMetrics
	Logger   *logger.Logger
}

// Checker answers whether the billing portal holds a paid subscription for a
// reference id. Answers are cached for TTL; a zero TTL disables caching.
type Checker struct {
	searcher subscriptionSearcher
	cache    Cache
	ttl      time.Duration
	metrics  *metrics.BillingMetrics
	logg     *logger.Logger
}

// NewChecker builds a portal checker.
func NewChecker(params CheckerParams) (*Checker, error) {
	if params.Searcher == nil {
		return nil, fmt.Errorf("subscription searcher required")
	}
	if params.TTL < 0 {
		return nil, fmt.Errorf("portal cache ttl must not be negative")
	}
	return &Checker{
		searcher: params.Searcher,
		cache:    params.Cache,
		ttl:      params.TTL,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// HasActiveSubscription reports whether a subscription tagged with referenceID is
// active or trialing at the portal.
func (c *Checker) HasActiveSubscription(ctx context.Context, referenceID string) (bool, error) {
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return false, nil
	}

	if cached, ok := c.cached(ctx, referenceID); ok {
		return cached, nil
	}

	started := time.Now()
	subs, err := c.searcher.SearchSubscriptions(ctx, SearchQuery(referenceID), searchLimit)
	c.metrics.ObservePortalLookup(time.Since(started), err)
	if err != nil {
		return false, err
	}

	active := false
	for _, sub := range subs {
		if isPaid(sub) {
			active = true
			break
		}
	}

	c.store(ctx, referenceID, active)
	return active, nil
}

// Invalidate drops the cached answer for referenceID.
func (c *Checker) Invalidate(ctx context.Context, referenceID string) error {
	referenceID = strings.TrimSpace(referenceID)
	if c.cache == nil || referenceID == "" {
		return nil
	}
	return c.cache.Del(ctx, c.cache.PortalKey(referenceID))
}

func (c *Checker) cached(ctx context.Context, referenceID string) (bool, bool) {
	if c.cache == nil || c.ttl == 0 {
		return false, false
	}
	value, err := c.cache.Get(ctx, c.cache.PortalKey(referenceID))
	if err != nil {
		if !errors.Is(err, redis.Nil) && c.logg != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "portal cache read failed")
		}
		return false, false
	}
	return value == cachedActive, true
}

func (c *Checker) store(ctx context.Context, referenceID string, active bool) {
	if c.cache == nil || c.ttl == 0 {
		return
	}
	value := cachedAbsent
	if active {
		value = cachedActive
	}
	if err := c.cache.Set(ctx, c.cache.PortalKey(referenceID), value, c.ttl); err != nil && c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "portal cache write failed")
	}
}

func isPaid(sub *stripe.Subscription) bool {
	if sub == nil {
		return false
	}
	return sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing
}

// SearchQuery builds the Stripe search expression matching subscriptions tagged with referenceID.
func SearchQuery(referenceID string) string {
	escaped := strings.ReplaceAll(referenceID, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return fmt.Sprintf("metadata['%s']:'%s'", ReferenceMetadataKey, escaped)
}
