package sync

import (
	"time"

	"github.com/kettleworks/storysync/internal/model"
)

// Resolution is the outcome chosen for a single conflict.
type Resolution string

const (
	// ResolutionLocal uploads the local version.
	ResolutionLocal Resolution = "local"

	// ResolutionRemote downloads the remote version.
	ResolutionRemote Resolution = "remote"

	// ResolutionSkip leaves both sides untouched this round.
	ResolutionSkip Resolution = "skip"
)

// IsValid returns true if the resolution is recognized.
func (r Resolution) IsValid() bool {
	switch r {
	case ResolutionLocal, ResolutionRemote, ResolutionSkip:
		return true
	default:
		return false
	}
}

// ConflictSide captures one side of a conflicting item, enough for a
// person or a policy to pick a winner.
type ConflictSide struct {
	Version    int       `json:"version"`
	UpdatedAt  time.Time `json:"updatedAt"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
}

// Conflict is an item modified on two different devices since they last
// agreed. Resolution is empty until a strategy or decision fills it in.
type Conflict struct {
	ItemID     string         `json:"itemId"`
	Type       model.Category `json:"type"`
	ItemName   string         `json:"itemName"`
	Local      ConflictSide   `json:"local"`
	Remote     ConflictSide   `json:"remote"`
	Resolution Resolution     `json:"resolution,omitempty"`
}

// Newest returns the resolution picking whichever side was updated most
// recently. Ties go to the local side.
func (c Conflict) Newest() Resolution {
	if c.Remote.UpdatedAt.After(c.Local.UpdatedAt) {
		return ResolutionRemote
	}
	return ResolutionLocal
}
