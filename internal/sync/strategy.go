// Package sync implements the manifest-based delta-sync engine: change
// detection, conflict resolution, and the orchestration of one sync round
// against the remote object store.
package sync

// Strategy defines how detected conflicts are resolved during a round.
type Strategy string

const (
	// StrategyAsk defers every conflict to caller-supplied decisions.
	StrategyAsk Strategy = "ask"

	// StrategyLocalWins forces the local version for every conflict.
	StrategyLocalWins Strategy = "local-wins"

	// StrategyRemoteWins forces the remote version for every conflict.
	StrategyRemoteWins Strategy = "remote-wins"

	// StrategyNewestWins picks whichever side was updated most recently,
	// per conflict.
	StrategyNewestWins Strategy = "newest-wins"
)

// IsValid returns true if the strategy is recognized.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyAsk, StrategyLocalWins, StrategyRemoteWins, StrategyNewestWins:
		return true
	default:
		return false
	}
}

// AllStrategies returns all supported conflict strategies.
func AllStrategies() []Strategy {
	return []Strategy{StrategyAsk, StrategyLocalWins, StrategyRemoteWins, StrategyNewestWins}
}

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	return string(s)
}

// Description returns a human-readable description of the strategy.
func (s Strategy) Description() string {
	switch s {
	case StrategyAsk:
		return "Prompt for each conflict"
	case StrategyLocalWins:
		return "Keep this device's version of conflicting items"
	case StrategyRemoteWins:
		return "Keep the remote version of conflicting items"
	case StrategyNewestWins:
		return "Keep whichever version was updated most recently"
	default:
		return "Unknown strategy"
	}
}
