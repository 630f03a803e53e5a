package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jcarden/arbscan/internal/domain"
	"github.com/jcarden/arbscan/internal/odds"
	"github.com/redis/go-redis/v9"
)

// OddsCache implements domain.OddsCache using Redis hashes. Each game's
// quote for one venue is a hash at "odds:{venue}:{gameID}" with fields
// home, away, home_liq, away_liq and ts (Unix nanoseconds).
type OddsCache struct {
	rdb *redis.Client
}

// NewOddsCache creates an OddsCache backed by the given Client.
func NewOddsCache(c *Client) *OddsCache {
	return &OddsCache{rdb: c.Underlying()}
}

func oddsKey(gameID string, venue domain.Venue) string {
	return "odds:" + string(venue) + ":" + gameID
}

// SetVenueOdds stores the latest quote state for a game and venue.
func (oc *OddsCache) SetVenueOdds(ctx context.Context, gameID string, venue domain.Venue, state domain.VenueOddsState) error {
	fields := map[string]interface{}{
		"home":     strconv.FormatFloat(float64(state.Home), 'f', -1, 64),
		"away":     strconv.FormatFloat(float64(state.Away), 'f', -1, 64),
		"home_liq": strconv.FormatFloat(state.HomeLiquidity, 'f', -1, 64),
		"away_liq": strconv.FormatFloat(state.AwayLiquidity, 'f', -1, 64),
		"ts":       strconv.FormatInt(state.UpdatedAt.UnixNano(), 10),
	}
	if err := oc.rdb.HSet(ctx, oddsKey(gameID, venue), fields).Err(); err != nil {
		return fmt.Errorf("redis: set odds %s/%s: %w", venue, gameID, err)
	}
	return nil
}

// GetVenueOdds retrieves the latest quote state for a game and venue.
// It returns domain.ErrNotFound when the key does not exist.
func (oc *OddsCache) GetVenueOdds(ctx context.Context, gameID string, venue domain.Venue) (domain.VenueOddsState, error) {
	vals, err := oc.rdb.HGetAll(ctx, oddsKey(gameID, venue)).Result()
	if err != nil {
		return domain.VenueOddsState{}, fmt.Errorf("redis: get odds %s/%s: %w", venue, gameID, err)
	}
	if len(vals) == 0 {
		return domain.VenueOddsState{}, domain.ErrNotFound
	}

	var state domain.VenueOddsState
	if f, err := strconv.ParseFloat(vals["home"], 64); err == nil {
		state.Home = odds.Decimal(f)
	}
	if f, err := strconv.ParseFloat(vals["away"], 64); err == nil {
		state.Away = odds.Decimal(f)
	}
	if f, err := strconv.ParseFloat(vals["home_liq"], 64); err == nil {
		state.HomeLiquidity = f
	}
	if f, err := strconv.ParseFloat(vals["away_liq"], 64); err == nil {
		state.AwayLiquidity = f
	}
	if n, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		state.UpdatedAt = time.Unix(0, n)
	}
	return state, nil
}

// Compile-time interface check.
var _ domain.OddsCache = (*OddsCache)(nil)
