package sync

import (
	"errors"
	"testing"

	"github.com/kettleworks/storysync/internal/model"
	"github.com/kettleworks/storysync/internal/syncerr"
)

func conflictDelta(ids ...string) *Delta {
	d := NewDelta()
	for _, id := range ids {
		d.Conflicts = append(d.Conflicts, Conflict{
			ItemID:   id,
			Type:     model.CategoryProject,
			ItemName: id,
			Local:    ConflictSide{UpdatedAt: laterT, DeviceID: "dev-a"},
			Remote:   ConflictSide{UpdatedAt: baseTime, DeviceID: "dev-b"},
		})
	}
	return d
}

func TestResolveLocalWins(t *testing.T) {
	d := conflictDelta("p1", "p2")

	if err := NewResolver().Resolve(d, StrategyLocalWins, nil); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := d.ToUpload[model.CategoryProject]; len(got) != 2 {
		t.Errorf("ToUpload = %v, want both conflicting items", got)
	}
	if len(d.Conflicts) != 0 {
		t.Errorf("conflicts remain after resolution: %v", d.Conflicts)
	}
}

func TestResolveRemoteWins(t *testing.T) {
	d := conflictDelta("p1")

	if err := NewResolver().Resolve(d, StrategyRemoteWins, nil); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := d.ToDownload[model.CategoryProject]; len(got) != 1 || got[0] != "p1" {
		t.Errorf("ToDownload = %v, want [p1]", got)
	}
	if d.UploadCount() != 0 {
		t.Errorf("remote-wins queued an upload: %v", d.ToUpload)
	}
}

func TestResolveNewestWins(t *testing.T) {
	d := conflictDelta("p1")
	// Make the remote side strictly newer for a second conflict.
	d.Conflicts = append(d.Conflicts, Conflict{
		ItemID: "p2",
		Type:   model.CategoryProject,
		Local:  ConflictSide{UpdatedAt: baseTime},
		Remote: ConflictSide{UpdatedAt: laterT},
	})

	if err := NewResolver().Resolve(d, StrategyNewestWins, nil); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := d.ToUpload[model.CategoryProject]; len(got) != 1 || got[0] != "p1" {
		t.Errorf("ToUpload = %v, want [p1] (local side newer)", got)
	}
	if got := d.ToDownload[model.CategoryProject]; len(got) != 1 || got[0] != "p2" {
		t.Errorf("ToDownload = %v, want [p2] (remote side newer)", got)
	}
}

func TestResolveAskUsesDecisions(t *testing.T) {
	d := conflictDelta("p1", "p2", "p3")

	decide := func(conflicts []Conflict) (map[string]Resolution, error) {
		if len(conflicts) != 3 {
			t.Errorf("decider saw %d conflicts, want 3", len(conflicts))
		}
		return map[string]Resolution{
			"p1": ResolutionLocal,
			"p2": ResolutionRemote,
			"p3": ResolutionSkip,
		}, nil
	}

	if err := NewResolver().Resolve(d, StrategyAsk, decide); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := d.ToUpload[model.CategoryProject]; len(got) != 1 || got[0] != "p1" {
		t.Errorf("ToUpload = %v, want [p1]", got)
	}
	if got := d.ToDownload[model.CategoryProject]; len(got) != 1 || got[0] != "p2" {
		t.Errorf("ToDownload = %v, want [p2]", got)
	}
	// p3 was skipped; it appears nowhere.
	for _, id := range append(d.ToUpload[model.CategoryProject], d.ToDownload[model.CategoryProject]...) {
		if id == "p3" {
			t.Error("skipped item leaked into the plan")
		}
	}
}

func TestResolveAskWithoutDeciderFails(t *testing.T) {
	d := conflictDelta("p1")

	err := NewResolver().Resolve(d, StrategyAsk, nil)
	if syncerr.KindOf(err) != syncerr.KindConflictUnresolved {
		t.Errorf("kind = %q, want CONFLICT_UNRESOLVED", syncerr.KindOf(err))
	}
}

func TestResolveAskIncompleteDecisionsFail(t *testing.T) {
	d := conflictDelta("p1", "p2")

	decide := func([]Conflict) (map[string]Resolution, error) {
		return map[string]Resolution{"p1": ResolutionLocal}, nil
	}

	err := NewResolver().Resolve(d, StrategyAsk, decide)
	if syncerr.KindOf(err) != syncerr.KindConflictUnresolved {
		t.Errorf("kind = %q, want CONFLICT_UNRESOLVED", syncerr.KindOf(err))
	}
	// The plan is untouched on failure.
	if d.UploadCount() != 0 || len(d.Conflicts) != 2 {
		t.Errorf("failed resolution modified the plan: %+v", d)
	}
}

func TestResolveAskDeciderErrorPropagates(t *testing.T) {
	d := conflictDelta("p1")
	boom := errors.New("user cancelled")

	decide := func([]Conflict) (map[string]Resolution, error) {
		return nil, boom
	}

	err := NewResolver().Resolve(d, StrategyAsk, decide)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped decider error", err)
	}
	if syncerr.KindOf(err) != syncerr.KindConflictUnresolved {
		t.Errorf("kind = %q, want CONFLICT_UNRESOLVED", syncerr.KindOf(err))
	}
}

func TestResolveSkipRemovesBinaryTransfers(t *testing.T) {
	d := NewDelta()
	d.Conflicts = []Conflict{{
		ItemID: "img1",
		Type:   model.CategoryImage,
		Local:  ConflictSide{UpdatedAt: laterT},
		Remote: ConflictSide{UpdatedAt: baseTime},
	}}

	decide := func([]Conflict) (map[string]Resolution, error) {
		return map[string]Resolution{"img1": ResolutionSkip}, nil
	}
	if err := NewResolver().Resolve(d, StrategyAsk, decide); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(d.Files.Upload) != 0 || len(d.Files.Download) != 0 {
		t.Errorf("skip left binary transfers behind: %+v", d.Files)
	}
	if d.HasChanges() {
		t.Errorf("skip-everything delta still reports changes: %+v", d)
	}
}

func TestResolveUnknownStrategyFails(t *testing.T) {
	d := conflictDelta("p1")

	err := NewResolver().Resolve(d, Strategy("coin-flip"), nil)
	if syncerr.KindOf(err) != syncerr.KindInvalidData {
		t.Errorf("kind = %q, want INVALID_DATA", syncerr.KindOf(err))
	}
}

func TestStrategyValidity(t *testing.T) {
	for _, s := range AllStrategies() {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
		if s.Description() == "Unknown strategy" {
			t.Errorf("%q has no description", s)
		}
	}
	if Strategy("coin-flip").IsValid() {
		t.Error("unknown strategy reported valid")
	}
}
