package agreements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSummaryCache caches agreement summaries in Redis. The sync engine
// invalidates on every persisted change, so cached reads always reflect the
// last reconciliation. Cache faults degrade to direct reads.
type RedisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisSummaryCache builds the cache helper.
func NewRedisSummaryCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisSummaryCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSummaryCache{client: client, ttl: ttl, logger: logger}
}

func summaryKey(agreementID int64) string {
	return fmt.Sprintf("agreements:summary:%d", agreementID)
}

// Get returns the cached summary when present.
func (c *RedisSummaryCache) Get(ctx context.Context, agreementID int64) (AgreementSummary, bool) {
	if c == nil || c.client == nil {
		return AgreementSummary{}, false
	}
	raw, err := c.client.Get(ctx, summaryKey(agreementID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("summary cache get failed", slog.Int64("agreement_id", agreementID), slog.Any("error", err))
		}
		return AgreementSummary{}, false
	}
	var summary AgreementSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return AgreementSummary{}, false
	}
	return summary, true
}

// Set stores the summary with the configured TTL.
func (c *RedisSummaryCache) Set(ctx context.Context, summary AgreementSummary) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, summaryKey(summary.AgreementID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("summary cache set failed", slog.Int64("agreement_id", summary.AgreementID), slog.Any("error", err))
	}
}

// Invalidate drops the cached summary for an agreement.
func (c *RedisSummaryCache) Invalidate(ctx context.Context, agreementID int64) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, summaryKey(agreementID)).Err(); err != nil {
		c.logger.Warn("summary cache invalidate failed", slog.Int64("agreement_id", agreementID), slog.Any("error", err))
	}
}
