package domain

// ExitAction is the kind of decision the exit engine produced.
type ExitAction int

const (
	ActionHold ExitAction = iota
	ActionExitPartial
	ActionExitFull
)

func (a ExitAction) String() string {
	switch a {
	case ActionExitPartial:
		return "exit_partial"
	case ActionExitFull:
		return "exit_full"
	default:
		return "hold"
	}
}

// Exit reasons produced by the engine. The monitor records them verbatim
// on the closing trade.
const (
	ReasonStopLoss          = "stop_loss_hit"
	ReasonTP1               = "tp1_hit"
	ReasonTP2               = "tp2_hit"
	ReasonTP3               = "tp3_hit"
	ReasonMomentumReversal  = "momentum_reversal"
	ReasonMomentumWeakening = "momentum_weakening"
	ReasonVolumeCollapse    = "volume_collapse"
	ReasonBearishCandles    = "bearish_candles"
	ReasonLowerLows         = "lower_lows_pattern"
)

// ExitDecision is the outcome of one evaluation of a position. It is a
// value, produced once per tick and never mutated; the monitor consumes it
// and discards it.
type ExitDecision struct {
	Action   ExitAction
	Fraction float64 // of TotalQuantity for ladder exits, of RemainingQuantity otherwise
	Level    string  // TP tag when the decision came from the ladder, else ""
	Reason   string
}

// Hold keeps the position open.
func Hold() ExitDecision {
	return ExitDecision{Action: ActionHold}
}

// PartialExit sells a fraction of the position. Ladder exits carry the
// TP tag in level; the executor caps the sale at the remaining quantity.
func PartialExit(fraction float64, level, reason string) ExitDecision {
	return ExitDecision{Action: ActionExitPartial, Fraction: fraction, Level: level, Reason: reason}
}

// FullExit closes the whole remaining quantity.
func FullExit(reason string) ExitDecision {
	return ExitDecision{Action: ActionExitFull, Fraction: 1.0, Reason: reason}
}
