package engine

import (
	"fmt"
	"strings"

	"github.com/jcarden/arbscan/internal/domain"
)

// formatOpportunity renders an opportunity as a short notification body.
func formatOpportunity(o *domain.Opportunity) string {
	var b strings.Builder
	for _, leg := range o.Legs {
		fmt.Fprintf(&b, "%s: %s @ %.2f, stake $%.2f\n",
			leg.Venue, leg.Team, float64(leg.Odds), leg.Stake)
	}
	fmt.Fprintf(&b, "combined prob %.4f, profit $%.2f (%.2f%%)",
		o.CombinedImpliedProb, o.Profit, o.ProfitPct)
	return b.String()
}

func formatClosed(c *domain.ClosedOpportunity) string {
	return fmt.Sprintf("%s\nheld %.0fs", formatOpportunity(&c.Opportunity), c.DurationSeconds)
}
