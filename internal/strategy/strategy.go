// Package strategy maps (asset, strategy, signal) to a proposed order.
//
// Evaluation is pure: it reads current indicator values and the existing
// position, and either proposes an order, proposes closing, or does
// nothing. Whether a proposal commits is the ledger's and risk gate's
// decision.
package strategy

import (
	"fmt"
	"strings"
)

// Action is the external signal direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Kind identifies one of the five named strategies.
type Kind int

const (
	Momentum Kind = iota
	MeanReversion
	Breakout
	Scalping
	Swing
)

// ErrUnknownStrategy is returned for unrecognized strategy names. The
// caller reports it; no order is produced and no state changes.
var ErrUnknownStrategy = fmt.Errorf("unknown strategy")

var kindNames = map[Kind]string{
	Momentum:      "momentum",
	MeanReversion: "mean_reversion",
	Breakout:      "breakout",
	Scalping:      "scalping",
	Swing:         "swing",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a strategy name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "momentum":
		return Momentum, nil
	case "mean_reversion":
		return MeanReversion, nil
	case "breakout":
		return Breakout, nil
	case "scalping":
		return Scalping, nil
	case "swing":
		return Swing, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}
