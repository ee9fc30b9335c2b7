package advisor

import (
	"fmt"
	"strings"
	"time"

	"github.com/halpertj/perp_sentry/internal/llm"
	"github.com/halpertj/perp_sentry/internal/models"
)

const systemPreamble = `You are a position risk manager for a perpetual-futures account. ` +
	`You review an open position and decide a single risk-reducing action. ` +
	`You may only reduce risk: tighten stops, take profit, or close. ` +
	`Never widen a stop and never increase exposure. ` +
	`Output exactly one JSON object and nothing else.`

const actionMenu = `Choose exactly one action and reply with a single JSON object:
  {"action": "hold", "reason": "..."}
  {"action": "tighten_stop", "params": {"newStopPrice": <price>}, "reason": "..."}
  {"action": "adjust_take_profit", "params": {"newTpPrice": <price>}, "reason": "..."}
  {"action": "partial_close", "params": {"fractionOfPosition": <0..1>}, "reason": "..."}
  {"action": "close", "reason": "..."}`

const riskRuleSummary = `Risk rules: stops only move toward the mark price; ` +
	`take-profit must stay on the profitable side of the mark; partial closes must ` +
	`leave at least the exchange minimum; invalid actions are rejected without execution.`

// AccountContext is the account-wide block included in every prompt.
type AccountContext struct {
	Equity             float64
	OpenPositions      int
	EntriesToday       int
	MaxEntriesPerDay   int
	WinLossStreak      int
	RateLimitRemaining int
}

// BuildMessages assembles the advisory conversation: one system preamble and
// one structured user message.
func BuildMessages(req Request, account AccountContext, thesis string) []llm.Message {
	var b strings.Builder

	b.WriteString("## Why you are being consulted\n")
	for _, f := range req.Fired {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Detail)
	}

	tick := req.Tick
	b.WriteString("\n## Current position\n")
	fmt.Fprintf(&b, "symbol: %s\nside: %s\nentry: %.4f\nmark: %.4f\n", tick.Symbol, tick.Side, tick.EntryPrice, tick.MarkPrice)
	fmt.Fprintf(&b, "unrealized PnL: %.2f (%.2f%% of equity)\n", tick.UnrealizedPnl, tick.PnlPctOfEquity)
	if tick.HasStop() {
		fmt.Fprintf(&b, "stop: %.4f (%+.2f%% from mark)\n", *tick.StopLossPrice, signedDistancePct(tick.MarkPrice, *tick.StopLossPrice))
	} else {
		b.WriteString("stop: none\n")
	}
	if tick.HasTakeProfit() {
		fmt.Fprintf(&b, "take-profit: %.4f (%+.2f%% from mark)\n", *tick.TakeProfitPrice, signedDistancePct(tick.MarkPrice, *tick.TakeProfitPrice))
	} else {
		b.WriteString("take-profit: none\n")
	}
	fmt.Fprintf(&b, "liquidation: %.4f (%.2f%% away)\n", tick.LiquidationPrice, tick.DistToLiquidationPct)
	fmt.Fprintf(&b, "funding rate: %+.6f\n", tick.FundingRate)

	if len(req.Window) > 0 {
		b.WriteString("\n## Recent trajectory (time, mark, PnL % of equity)\n")
		for _, t := range req.Window {
			fmt.Fprintf(&b, "%s  %.4f  %+.2f%%\n",
				time.UnixMilli(t.Timestamp).UTC().Format("15:04:05"), t.MarkPrice, t.PnlPctOfEquity)
		}
	}

	b.WriteString("\n## Account\n")
	fmt.Fprintf(&b, "equity: %.2f\nopen positions: %d\nentries today: %d of %d\n",
		account.Equity, account.OpenPositions, account.EntriesToday, account.MaxEntriesPerDay)
	fmt.Fprintf(&b, "recent streak: %s\n", describeStreak(account.WinLossStreak))
	fmt.Fprintf(&b, "advisor calls remaining this hour: %d\n", account.RateLimitRemaining)

	b.WriteString("\n## Position thesis\n")
	if thesis == "" {
		thesis = "Not recorded"
	}
	b.WriteString(thesis + "\n")

	b.WriteString("\n" + riskRuleSummary + "\n\n" + actionMenu + "\n")

	return []llm.Message{
		{Role: "system", Content: systemPreamble},
		{Role: "user", Content: b.String()},
	}
}

// signedDistancePct reports where ref sits relative to the mark, positive
// when above.
func signedDistancePct(markPrice, ref float64) float64 {
	if markPrice == 0 {
		return 0
	}
	return (ref - markPrice) / markPrice * 100
}

func describeStreak(streak int) string {
	switch {
	case streak > 0:
		return fmt.Sprintf("%d consecutive wins", streak)
	case streak < 0:
		return fmt.Sprintf("%d consecutive losses", -streak)
	default:
		return "none"
	}
}

func triggerSummary(fired []models.FiredTrigger) string {
	names := make([]string, 0, len(fired))
	for _, f := range fired {
		names = append(names, f.Name)
	}
	return strings.Join(names, ",")
}
