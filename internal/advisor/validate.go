package advisor

import (
	"fmt"

	"github.com/halpertj/perp_sentry/internal/models"
	"github.com/halpertj/perp_sentry/internal/util"
)

// ValidateAction applies the safety envelope to a parsed action against the
// tick the triggers fired on. The rules only ever allow risk reduction: a
// stop may move toward the mark, never away; closes are always permitted.
func ValidateAction(action *Action, tick *models.PositionTick, minPositionNotional float64) error {
	switch action.Kind {
	case ActionHold, ActionClose:
		return nil

	case ActionTightenStop:
		return validateTightenStop(action.NewStopPrice, tick)

	case ActionAdjustTakeProfit:
		return validateAdjustTakeProfit(action.NewTpPrice, tick)

	case ActionPartialClose:
		fraction := action.FractionOfPosition
		if !util.IsFinite(fraction) || fraction <= 0 || fraction >= 1 {
			return fmt.Errorf("fractionOfPosition %v outside (0, 1)", fraction)
		}
		remaining := tick.PositionSize * (1 - fraction)
		if remaining < minPositionNotional {
			return fmt.Errorf("partial close would leave %.4f, below exchange minimum %.4f",
				remaining, minPositionNotional)
		}
		return nil

	default:
		return fmt.Errorf("action %q is not permitted", action.Kind)
	}
}

func validateTightenStop(newStop float64, tick *models.PositionTick) error {
	if !util.IsFinite(newStop) || newStop <= 0 {
		return fmt.Errorf("newStopPrice %v is not a valid price", newStop)
	}

	switch tick.Side {
	case models.SideLong:
		// A long's stop may only rise, and must stay below the mark.
		if tick.HasStop() && newStop <= *tick.StopLossPrice {
			return fmt.Errorf("newStopPrice %.4f would loosen long stop %.4f", newStop, *tick.StopLossPrice)
		}
		if newStop >= tick.MarkPrice {
			return fmt.Errorf("newStopPrice %.4f is not below mark %.4f", newStop, tick.MarkPrice)
		}
	case models.SideShort:
		if tick.HasStop() && newStop >= *tick.StopLossPrice {
			return fmt.Errorf("newStopPrice %.4f would loosen short stop %.4f", newStop, *tick.StopLossPrice)
		}
		if newStop <= tick.MarkPrice {
			return fmt.Errorf("newStopPrice %.4f is not above mark %.4f", newStop, tick.MarkPrice)
		}
	default:
		return fmt.Errorf("unknown position side %q", tick.Side)
	}
	return nil
}

func validateAdjustTakeProfit(newTp float64, tick *models.PositionTick) error {
	if !util.IsFinite(newTp) || newTp <= 0 {
		return fmt.Errorf("newTpPrice %v is not a valid price", newTp)
	}

	switch tick.Side {
	case models.SideLong:
		if newTp <= tick.MarkPrice {
			return fmt.Errorf("newTpPrice %.4f is not above mark %.4f for a long", newTp, tick.MarkPrice)
		}
	case models.SideShort:
		if newTp >= tick.MarkPrice {
			return fmt.Errorf("newTpPrice %.4f is not below mark %.4f for a short", newTp, tick.MarkPrice)
		}
	default:
		return fmt.Errorf("unknown position side %q", tick.Side)
	}
	return nil
}
