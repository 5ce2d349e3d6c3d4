package actors

import "time"

// Actor is the last reported status of one identity as the vehicle sees it.
// Deleted rows are tombstones kept so that late updates can be ordered
// against the removal.
type Actor struct {
	ID        string     `gorm:"primaryKey" json:"actorId"`
	Bearing   *int       `json:"bearing,omitempty"`
	Action    string     `json:"action,omitempty"`
	Direction string     `json:"direction,omitempty"`
	Urgency   string     `json:"urgency,omitempty"`
	TimeSeen  *time.Time `json:"timeSeen,omitempty"`
	Seq       uint64     `json:"seq"`
	Deleted   bool       `gorm:"index" json:"-"`
	UpdatedAt time.Time  `json:"-"`
}

// Models lists the tables the store needs migrated.
var Models = []any{&Actor{}}
