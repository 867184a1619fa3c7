package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kettleworks/storysync/internal/model"
	"github.com/kettleworks/storysync/internal/sync"
)

func makeConflict(id string) sync.Conflict {
	return sync.Conflict{
		ItemID:   id,
		Type:     model.CategoryProject,
		ItemName: "Project " + id,
		Local: sync.ConflictSide{
			Version:    2,
			UpdatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			DeviceID:   "dev-a",
			DeviceName: "Desk Mac",
		},
		Remote: sync.ConflictSide{
			Version:    2,
			UpdatedAt:  time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
			DeviceID:   "dev-b",
			DeviceName: "Travel iPad",
		},
	}
}

func TestConflictListModel_AllResolved(t *testing.T) {
	mdl := NewConflictListModel([]sync.Conflict{makeConflict("p1"), makeConflict("p2")})
	if mdl.allResolved() {
		t.Error("expected allResolved to be false with no resolutions")
	}

	mdl.resolutions["p1"] = sync.ResolutionLocal
	if mdl.allResolved() {
		t.Error("expected allResolved to be false with partial resolutions")
	}

	mdl.resolutions["p2"] = sync.ResolutionRemote
	if !mdl.allResolved() {
		t.Error("expected allResolved to be true with all resolutions")
	}
}

func TestConflictListModel_ResolveKeysUpdateTable(t *testing.T) {
	mdl := NewConflictListModel([]sync.Conflict{makeConflict("p1")})

	updated, _ := mdl.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'l'}})
	m := updated.(ConflictListModel)

	if m.resolutions["p1"] != sync.ResolutionLocal {
		t.Errorf("resolution = %q, want local", m.resolutions["p1"])
	}
	rows := m.table.Rows()
	if rows[0][0] != "✓" {
		t.Errorf("status cell = %q, want resolved symbol", rows[0][0])
	}
	if rows[0][5] != "local" {
		t.Errorf("resolution cell = %q", rows[0][5])
	}
}

func TestConflictListModel_NewestKeyPicksLaterSide(t *testing.T) {
	mdl := NewConflictListModel([]sync.Conflict{makeConflict("p1")})

	// The remote side of makeConflict is one hour newer.
	updated, _ := mdl.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	m := updated.(ConflictListModel)

	if m.resolutions["p1"] != sync.ResolutionRemote {
		t.Errorf("resolution = %q, want remote", m.resolutions["p1"])
	}
}

func TestConflictListModel_ConfirmRequiresAllResolved(t *testing.T) {
	mdl := NewConflictListModel([]sync.Conflict{makeConflict("p1"), makeConflict("p2")})

	updated, _ := mdl.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})
	m := updated.(ConflictListModel)
	if m.confirmMode {
		t.Error("confirm mode entered with unresolved conflicts")
	}

	m.resolutions["p1"] = sync.ResolutionLocal
	m.resolutions["p2"] = sync.ResolutionSkip
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})
	m = updated.(ConflictListModel)
	if !m.confirmMode {
		t.Error("confirm mode not entered with everything resolved")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})
	m = updated.(ConflictListModel)
	if m.result.Action != ConflictActionApply {
		t.Errorf("action = %v, want apply", m.result.Action)
	}
	if len(m.result.Resolutions) != 2 {
		t.Errorf("resolutions = %v", m.result.Resolutions)
	}
}

func TestConflictListModel_QuitCancels(t *testing.T) {
	mdl := NewConflictListModel([]sync.Conflict{makeConflict("p1")})

	updated, _ := mdl.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m := updated.(ConflictListModel)

	if m.result.Action != ConflictActionCancel {
		t.Errorf("action = %v, want cancel", m.result.Action)
	}
}

func TestConflictListModel_ViewShowsProgress(t *testing.T) {
	mdl := NewConflictListModel([]sync.Conflict{makeConflict("p1"), makeConflict("p2")})
	mdl.resolutions["p1"] = sync.ResolutionLocal

	view := mdl.View()
	if !strings.Contains(view, "1/2 resolved") {
		t.Errorf("view missing progress indicator:\n%s", view)
	}
	if !strings.Contains(view, "Project p1") {
		t.Errorf("view missing item name:\n%s", view)
	}
}

func TestRunConflictListEmpty(t *testing.T) {
	res, err := RunConflictList(nil)
	if err != nil {
		t.Fatalf("RunConflictList() error = %v", err)
	}
	if res.Action != ConflictActionApply {
		t.Errorf("action = %v, want apply for no conflicts", res.Action)
	}
}
