package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jcarden/arbscan/internal/domain"
	"github.com/jcarden/arbscan/internal/odds"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// One row per closed opportunity; the two legs are flattened into
// leg1_*/leg2_* columns since an opportunity always has exactly two.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, game_id, leg_id, home_team, away_team,
	leg1_venue, leg1_team, leg1_odds, leg1_stake,
	leg2_venue, leg2_team, leg2_odds, leg2_stake,
	combined_implied_prob, payout, profit, profit_pct,
	opened_at, closed_at, duration_seconds`

// InsertClosed stores one closed opportunity.
func (s *OpportunityStore) InsertClosed(ctx context.Context, rec domain.ClosedOpportunity) error {
	const query = `
		INSERT INTO closed_opportunities (
			id, game_id, leg_id, home_team, away_team,
			leg1_venue, leg1_team, leg1_odds, leg1_stake,
			leg2_venue, leg2_team, leg2_odds, leg2_stake,
			combined_implied_prob, payout, profit, profit_pct,
			opened_at, closed_at, duration_seconds
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20
		)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.GameID, string(rec.LegID), rec.HomeTeam, rec.AwayTeam,
		string(rec.Legs[0].Venue), rec.Legs[0].Team, float64(rec.Legs[0].Odds), rec.Legs[0].Stake,
		string(rec.Legs[1].Venue), rec.Legs[1].Team, float64(rec.Legs[1].Odds), rec.Legs[1].Stake,
		rec.CombinedImpliedProb, rec.Payout, rec.Profit, rec.ProfitPct,
		rec.OpenedAt, rec.ClosedAt, rec.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert closed opportunity %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns the most recently closed opportunities.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ClosedOpportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM closed_opportunities ORDER BY closed_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed opportunities: %w", err)
	}
	defer rows.Close()

	var recs []domain.ClosedOpportunity
	for rows.Next() {
		var rec domain.ClosedOpportunity
		var legID string
		var venue1, venue2 string
		var odds1, odds2 float64

		if err := rows.Scan(
			&rec.ID, &rec.GameID, &legID, &rec.HomeTeam, &rec.AwayTeam,
			&venue1, &rec.Legs[0].Team, &odds1, &rec.Legs[0].Stake,
			&venue2, &rec.Legs[1].Team, &odds2, &rec.Legs[1].Stake,
			&rec.CombinedImpliedProb, &rec.Payout, &rec.Profit, &rec.ProfitPct,
			&rec.OpenedAt, &rec.ClosedAt, &rec.DurationSeconds,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan closed opportunity: %w", err)
		}

		rec.LegID = domain.LegID(legID)
		rec.Legs[0].Venue = domain.Venue(venue1)
		rec.Legs[0].Odds = odds.Decimal(odds1)
		rec.Legs[1].Venue = domain.Venue(venue2)
		rec.Legs[1].Odds = odds.Decimal(odds2)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate closed opportunities: %w", err)
	}

	return recs, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
