package tables

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Base table statuses as the table directory reports them.
const (
	StatusAvailable = "available"
	StatusOccupied  = "occupied"
	StatusReserved  = "reserved"
)

// Link roles inside a merged seating group.
const (
	RolePrimary   = "primary"
	RoleSecondary = "secondary"
)

// Table is the physical table metadata the terminal renders. Owned by the
// table directory service; the engine only reads it.
type Table struct {
	ID             uuid.UUID  `json:"id"`
	Number         string     `json:"number"`
	Capacity       int        `json:"capacity"`
	Status         string     `json:"status"`
	CurrentOrderID *uuid.UUID `json:"current_order_id,omitempty"`
	LinkGroupID    *uuid.UUID `json:"link_group_id,omitempty"`
	LinkRole       string     `json:"link_role,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Linked reports whether the table belongs to a merged seating group.
func (t *Table) Linked() bool {
	return t.LinkGroupID != nil
}

// SameGroup reports whether two tables are members of one seating group.
func SameGroup(a, b *Table) bool {
	return a.Linked() && b.Linked() && *a.LinkGroupID == *b.LinkGroupID
}

// CanLink validates a link request before it is sent to the store.
// Linking is only valid when both tables are available, or when they are
// already members of the same group (re-linking is a no-op there).
func CanLink(primary, secondary *Table) error {
	if primary == nil || secondary == nil {
		return fmt.Errorf("both tables are required")
	}
	if primary.ID == secondary.ID {
		return fmt.Errorf("cannot link table %s to itself", primary.Number)
	}
	if SameGroup(primary, secondary) {
		return nil
	}
	if primary.Status != StatusAvailable {
		return fmt.Errorf("table %s is %s, not available", primary.Number, primary.Status)
	}
	if secondary.Status != StatusAvailable {
		return fmt.Errorf("table %s is %s, not available", secondary.Number, secondary.Status)
	}
	return nil
}

// LinkDisplay is the auxiliary display state for a merged seating group,
// computed from table metadata alone, independent of order status.
type LinkDisplay struct {
	Linked           bool     `json:"linked"`
	Role             string   `json:"role,omitempty"`
	Members          []string `json:"members,omitempty"`
	CombinedCapacity int      `json:"combined_capacity"`
}

// LinkDisplayFor computes the link display fields for one table given its
// group members (including the table itself).
func LinkDisplayFor(table *Table, group []*Table) LinkDisplay {
	if table == nil || !table.Linked() {
		capacity := 0
		if table != nil {
			capacity = table.Capacity
		}
		return LinkDisplay{CombinedCapacity: capacity}
	}

	display := LinkDisplay{
		Linked:           true,
		Role:             table.LinkRole,
		CombinedCapacity: table.Capacity,
	}
	for _, member := range group {
		if member == nil || member.ID == table.ID {
			continue
		}
		if SameGroup(table, member) {
			display.Members = append(display.Members, member.Number)
			display.CombinedCapacity += member.Capacity
		}
	}
	return display
}
