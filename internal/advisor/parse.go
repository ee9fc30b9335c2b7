// Package advisor implements the LLM-backed advisory path: prompt assembly,
// constrained reply parsing, safety validation, and order dispatch.
package advisor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionKind enumerates the closed set of advisor actions. Anything else in
// a reply is a parse error, not an open-ended instruction.
type ActionKind string

const (
	// ActionHold keeps the position untouched.
	ActionHold ActionKind = "hold"
	// ActionTightenStop moves the stop toward the mark (never away).
	ActionTightenStop ActionKind = "tighten_stop"
	// ActionAdjustTakeProfit replaces the take-profit trigger.
	ActionAdjustTakeProfit ActionKind = "adjust_take_profit"
	// ActionPartialClose closes a fraction of the position.
	ActionPartialClose ActionKind = "partial_close"
	// ActionClose closes the whole position.
	ActionClose ActionKind = "close"
)

// Action is the parsed advisory decision with discriminated payloads.
type Action struct {
	Kind               ActionKind
	NewStopPrice       float64 // tighten_stop
	NewTpPrice         float64 // adjust_take_profit
	FractionOfPosition float64 // partial_close
	Reason             string
}

// Params returns the action's parameters in journal form.
func (a *Action) Params() map[string]float64 {
	switch a.Kind {
	case ActionTightenStop:
		return map[string]float64{"newStopPrice": a.NewStopPrice}
	case ActionAdjustTakeProfit:
		return map[string]float64{"newTpPrice": a.NewTpPrice}
	case ActionPartialClose:
		return map[string]float64{"fractionOfPosition": a.FractionOfPosition}
	default:
		return nil
	}
}

// rawReply mirrors the JSON schema the prompt demands.
type rawReply struct {
	Action string             `json:"action"`
	Params map[string]float64 `json:"params"`
	Reason string             `json:"reason"`
}

// ParseReply extracts the first balanced JSON object from the model's reply
// and maps it onto the closed action set. Prose around the JSON is ignored;
// a reply without a recognizable object, an unknown action, or missing
// required params is a parse error.
func ParseReply(content string) (*Action, error) {
	blob, err := firstJSONObject(content)
	if err != nil {
		return nil, err
	}

	var raw rawReply
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return nil, fmt.Errorf("malformed advisor JSON: %w", err)
	}

	action := &Action{Reason: raw.Reason}
	switch ActionKind(raw.Action) {
	case ActionHold:
		action.Kind = ActionHold
	case ActionClose:
		action.Kind = ActionClose
	case ActionTightenStop:
		px, ok := raw.Params["newStopPrice"]
		if !ok {
			return nil, fmt.Errorf("tighten_stop reply missing params.newStopPrice")
		}
		action.Kind = ActionTightenStop
		action.NewStopPrice = px
	case ActionAdjustTakeProfit:
		px, ok := raw.Params["newTpPrice"]
		if !ok {
			return nil, fmt.Errorf("adjust_take_profit reply missing params.newTpPrice")
		}
		action.Kind = ActionAdjustTakeProfit
		action.NewTpPrice = px
	case ActionPartialClose:
		fraction, ok := raw.Params["fractionOfPosition"]
		if !ok {
			return nil, fmt.Errorf("partial_close reply missing params.fractionOfPosition")
		}
		action.Kind = ActionPartialClose
		action.FractionOfPosition = fraction
	default:
		return nil, fmt.Errorf("unknown advisor action %q", raw.Action)
	}

	return action, nil
}

// firstJSONObject scans for the first balanced {...} in the text, skipping
// over strings and escapes. Models occasionally wrap the object in markdown
// fences or commentary; both are tolerated.
func firstJSONObject(content string) (string, error) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in advisor reply")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in advisor reply")
}
