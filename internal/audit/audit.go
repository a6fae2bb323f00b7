package audit

import (
	"time"
)

// Info carries the creation/modification trail embedded on every persisted
// record (monthly plans, approvals). The recycle-bin and audit-log screens
// read these fields; the engine only stamps them.
type Info struct {
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// New returns an Info stamped with the current UTC time and creator.
// An empty creator falls back to "system".
func New(creator string) Info {
	if creator == "" {
		creator = "system"
	}

	return Info{
		CreatedBy: creator,
		CreatedAt: time.Now().UTC(),
	}
}

// Touch records a modification.
func (a *Info) Touch(updatedBy string) {
	if updatedBy == "" {
		updatedBy = "system"
	}
	a.UpdatedBy = updatedBy
	a.UpdatedAt = time.Now().UTC()
}
