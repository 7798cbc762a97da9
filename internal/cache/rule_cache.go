package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
)

const ruleCacheKeyPrefix = "risk_rules:"

// RuleCache caches the active risk rule set per event type. A cache failure
// is never fatal; callers fall back to the database.
type RuleCache struct {
	cache  CacheService
	ttl    time.Duration
	logger *slog.Logger
}

func NewRuleCache(cache CacheService, ttl time.Duration, logger *slog.Logger) *RuleCache {
	return &RuleCache{
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *RuleCache) GetRules(ctx context.Context, eventType models.ProctorEventType) ([]*models.ProctorRiskRule, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	var rules []*models.ProctorRiskRule
	err := c.cache.Get(ctx, ruleCacheKey(eventType), &rules)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("rule cache read failed", "event_type", eventType, "error", err)
		}
		return nil, false
	}
	return rules, true
}

func (c *RuleCache) SetRules(ctx context.Context, eventType models.ProctorEventType, rules []*models.ProctorRiskRule) {
	if c.ttl <= 0 {
		return
	}
	if err := c.cache.Set(ctx, ruleCacheKey(eventType), rules, c.ttl); err != nil {
		c.logger.Warn("rule cache write failed", "event_type", eventType, "error", err)
	}
}

func (c *RuleCache) Invalidate(ctx context.Context) {
	if err := c.cache.DeletePattern(ctx, ruleCacheKeyPrefix+"*"); err != nil {
		c.logger.Warn("rule cache invalidation failed", "error", err)
	}
}

func ruleCacheKey(eventType models.ProctorEventType) string {
	return fmt.Sprintf("%s%s", ruleCacheKeyPrefix, eventType)
}
