package eventgate

import (
	"errors"

	"github.com/randalmurphal/eventgate/pkg/eventgate/config"
)

// Strategy selects how a Boundary discovers the entities an operation touched.
// Every strategy also publishes what the Capture layer fed into the registry.
type Strategy int

const (
	// StrategyCooperative relies on Capture middleware around collaborators
	// (repositories, gateways) plus an entity returned by the operation.
	StrategyCooperative Strategy = iota

	// StrategyDirect deep-scans the operation's own arguments and result
	// once it returns.
	StrategyDirect

	// StrategyDiff snapshots the pending-event counts of everything
	// reachable from the arguments, and after the call includes any entity
	// whose count grew or that was not seen before.
	StrategyDiff

	// StrategyParameters looks only at the arguments and result themselves,
	// without descending into their fields. Nested entities must come in
	// through Capture.
	StrategyParameters
)

// ErrUnknownStrategy is returned by ParseStrategy.
var ErrUnknownStrategy = errors.New("unknown discovery strategy")

// String returns the configuration name of s.
func (s Strategy) String() string {
	switch s {
	case StrategyCooperative:
		return config.StrategyCooperative
	case StrategyDirect:
		return config.StrategyDirect
	case StrategyDiff:
		return config.StrategyDiff
	case StrategyParameters:
		return config.StrategyParameters
	default:
		return "unknown"
	}
}

// ParseStrategy converts a configuration name into a Strategy.
// The empty string selects StrategyCooperative.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", config.StrategyCooperative:
		return StrategyCooperative, nil
	case config.StrategyDirect:
		return StrategyDirect, nil
	case config.StrategyDiff:
		return StrategyDiff, nil
	case config.StrategyParameters:
		return StrategyParameters, nil
	default:
		return StrategyCooperative, ErrUnknownStrategy
	}
}
