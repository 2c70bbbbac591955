package clauses

import (
	"fmt"

	"hermannm.dev/summarytable/registry"
)

type Slot int

const (
	DimensionSlots = 3
	// The aggregate slot comes after the dimension slots, both in the select clause and in the
	// rendered table.
	AggregateSlot Slot = DimensionSlots
	SlotCount          = DimensionSlots + 1
)

func (slot Slot) IsDimension() bool {
	return slot >= 0 && slot < DimensionSlots
}

func (slot Slot) IsValid() bool {
	return slot >= 0 && slot < SlotCount
}

// Dimensions are stored once, and the select and group clauses are derived from them: group is
// the populated dimensions, select is the populated dimensions plus the aggregate. Cleared slots
// stay as holes rather than shifting later slots down.
//
// ClauseSet is comparable, so it can be used as a snapshot of the query a response belongs to.
type ClauseSet struct {
	dimensions [DimensionSlots]optional
	aggregate  optional
}

type optional struct {
	value  string
	filled bool
}

// A populated slot in the select clause.
type SlotValue struct {
	Slot       Slot
	Expression string
}

func (clauseSet ClauseSet) Get(slot Slot) (value string, filled bool) {
	switch {
	case slot.IsDimension():
		return clauseSet.dimensions[slot].value, clauseSet.dimensions[slot].filled
	case slot == AggregateSlot:
		return clauseSet.aggregate.value, clauseSet.aggregate.filled
	default:
		return "", false
	}
}

func (clauseSet ClauseSet) IsFilled(slot Slot) bool {
	_, filled := clauseSet.Get(slot)
	return filled
}

// Populated select slots in slot order, which is also the column order of the rendered table.
func (clauseSet ClauseSet) SelectSlots() []SlotValue {
	slots := make([]SlotValue, 0, SlotCount)
	for slot := Slot(0); slot < SlotCount; slot++ {
		if value, filled := clauseSet.Get(slot); filled {
			slots = append(slots, SlotValue{Slot: slot, Expression: value})
		}
	}
	return slots
}

func (clauseSet ClauseSet) Select() []string {
	slots := clauseSet.SelectSlots()
	expressions := make([]string, 0, len(slots))
	for _, slot := range slots {
		expressions = append(expressions, slot.Expression)
	}
	return expressions
}

func (clauseSet ClauseSet) Group() []registry.FieldID {
	fields := make([]registry.FieldID, 0, DimensionSlots)
	for _, dimension := range clauseSet.dimensions {
		if dimension.filled {
			fields = append(fields, registry.FieldID(dimension.value))
		}
	}
	return fields
}

func (clauseSet ClauseSet) Aggregate() (expression string, filled bool) {
	return clauseSet.aggregate.value, clauseSet.aggregate.filled
}

func (clauseSet ClauseSet) HasDimensions() bool {
	for _, dimension := range clauseSet.dimensions {
		if dimension.filled {
			return true
		}
	}
	return false
}

func (clauseSet ClauseSet) IsEmpty() bool {
	return !clauseSet.HasDimensions() && !clauseSet.aggregate.filled
}

// Positional views of the clauses, with nil for empty slots. Select has SlotCount entries, group
// has DimensionSlots entries.
func (clauseSet ClauseSet) Positional() (selectClause []*string, groupClause []*string) {
	selectClause = make([]*string, SlotCount)
	groupClause = make([]*string, DimensionSlots)

	for slot := Slot(0); slot < SlotCount; slot++ {
		value, filled := clauseSet.Get(slot)
		if !filled {
			continue
		}
		selectClause[slot] = &value
		if slot.IsDimension() {
			groupClause[slot] = &value
		}
	}

	return selectClause, groupClause
}

func (clauseSet ClauseSet) String() string {
	selectClause, groupClause := clauseSet.Positional()
	return fmt.Sprintf("select=%s group=%s", formatPositional(selectClause), formatPositional(groupClause))
}

func formatPositional(values []*string) string {
	formatted := "["
	for i, value := range values {
		if i != 0 {
			formatted += ", "
		}
		if value == nil {
			formatted += "_"
		} else {
			formatted += *value
		}
	}
	return formatted + "]"
}
