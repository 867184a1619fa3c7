package sync

import (
	"fmt"

	"github.com/kettleworks/storysync/internal/logging"
	"github.com/kettleworks/storysync/internal/model"
	"github.com/kettleworks/storysync/internal/syncerr"
)

// DecisionFunc supplies per-conflict resolutions when the strategy is
// ask. It receives every detected conflict and returns a resolution per
// item id. Returning an error, or omitting an item, aborts the round
// unresolved.
type DecisionFunc func(conflicts []Conflict) (map[string]Resolution, error)

// Resolver folds conflict resolutions back into the sync plan.
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve applies the strategy to every conflict in the delta, moving
// each conflicting item into the upload or download plan, or dropping it
// from the round entirely for skip. On return the delta carries no
// conflicts.
//
// decide is consulted only for StrategyAsk and must cover every
// conflict; anything left undecided fails with a conflict-unresolved
// error and the plan is not modified.
func (r *Resolver) Resolve(d *Delta, strategy Strategy, decide DecisionFunc) error {
	if len(d.Conflicts) == 0 {
		return nil
	}
	if !strategy.IsValid() {
		return syncerr.New(syncerr.KindInvalidData, "resolve",
			fmt.Sprintf("unknown conflict strategy %q", strategy))
	}

	decisions, err := r.decisions(d.Conflicts, strategy, decide)
	if err != nil {
		return err
	}

	for _, c := range d.Conflicts {
		res := decisions[c.ItemID]
		switch res {
		case ResolutionLocal:
			d.dropFromPlan(c.Type, c.ItemID)
			d.queueUpload(c.Type, c.ItemID)
		case ResolutionRemote:
			d.dropFromPlan(c.Type, c.ItemID)
			d.queueDownload(c.Type, c.ItemID)
		case ResolutionSkip:
			d.dropFromPlan(c.Type, c.ItemID)
		}

		logging.Debug("resolved conflict",
			logging.Item(c.ItemID),
			logging.Category(string(c.Type)),
			logging.Strategy(string(res)),
		)
	}

	d.Conflicts = nil
	d.sortPlan()
	return nil
}

// decisions produces a complete resolution map for the conflicts, either
// mechanically from the strategy or by asking the caller.
func (r *Resolver) decisions(conflicts []Conflict, strategy Strategy, decide DecisionFunc) (map[string]Resolution, error) {
	out := make(map[string]Resolution, len(conflicts))

	switch strategy {
	case StrategyLocalWins:
		for _, c := range conflicts {
			out[c.ItemID] = ResolutionLocal
		}
	case StrategyRemoteWins:
		for _, c := range conflicts {
			out[c.ItemID] = ResolutionRemote
		}
	case StrategyNewestWins:
		for _, c := range conflicts {
			out[c.ItemID] = c.Newest()
		}
	case StrategyAsk:
		if decide == nil {
			return nil, syncerr.New(syncerr.KindConflictUnresolved, "resolve",
				fmt.Sprintf("%d conflicts need decisions and no decider is configured", len(conflicts)))
		}
		answered, err := decide(conflicts)
		if err != nil {
			return nil, syncerr.Wrap(syncerr.KindConflictUnresolved, "resolve", err)
		}
		for _, c := range conflicts {
			res, ok := answered[c.ItemID]
			if !ok || !res.IsValid() {
				return nil, syncerr.New(syncerr.KindConflictUnresolved, "resolve",
					fmt.Sprintf("no resolution for %s %q", c.Type, c.ItemID))
			}
			out[c.ItemID] = res
		}
	}

	return out, nil
}

// dropFromPlan removes an item from both transfer directions, including
// its binary payload if any.
func (d *Delta) dropFromPlan(cat model.Category, id string) {
	d.ToUpload[cat] = removeString(d.ToUpload[cat], id)
	d.ToDownload[cat] = removeString(d.ToDownload[cat], id)
	if cat.HasBinary() {
		d.Files.Upload = removeString(d.Files.Upload, id)
		d.Files.Download = removeString(d.Files.Download, id)
	}
}

func removeString(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
