package heartbeat

import (
	"fmt"

	"github.com/halpertj/perp_sentry/internal/config"
	"github.com/halpertj/perp_sentry/internal/models"
	"github.com/halpertj/perp_sentry/internal/util"
)

// CheckCircuitBreakers evaluates the hard, LLM-free safety rails against a
// tick. When tripped, the watcher closes the position immediately and the
// advisor is never consulted on that tick. Non-finite inputs never trip.
func CheckCircuitBreakers(tick *models.PositionTick, cfg config.BreakerConfig) (bool, string) {
	if util.IsFinite(tick.DistToLiquidationPct) && tick.DistToLiquidationPct < cfg.LiqPct {
		return true, fmt.Sprintf("liquidation_proximity<%g%%", cfg.LiqPct)
	}
	if util.IsFinite(tick.PnlPctOfEquity) && tick.PnlPctOfEquity < cfg.LossPct {
		return true, fmt.Sprintf("loss_exceeds_%g%%_of_equity", cfg.LossPct)
	}
	return false, ""
}
