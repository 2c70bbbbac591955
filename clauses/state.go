package clauses

import (
	"errors"
	"fmt"

	"hermannm.dev/summarytable/registry"
	"hermannm.dev/wrap"
)

var (
	ErrInvalidSlot           = errors.New("invalid clause slot")
	ErrInvalidChannel        = errors.New("invalid clause channel")
	ErrAggregateNotGroupable = errors.New("the aggregate slot cannot be written to the group clause")
)

// The complete description of a query, as passed to a db.SummaryDB.
type QueryParams struct {
	Clauses ClauseSet
	Where   FilterState
}

func (params QueryParams) SelectExpressions() []string {
	return params.Clauses.Select()
}

func (params QueryParams) GroupFields() []registry.FieldID {
	return params.Clauses.Group()
}

// Holds the user's current selections for one page view. Not safe for concurrent use; callers
// serialize access (see summary.Session).
type State struct {
	registry *registry.Registry
	filters  FilterSource
	clauses  ClauseSet
	where    FilterState
}

func NewState(registry *registry.Registry, filters FilterSource) *State {
	return &State{registry: registry, filters: filters, where: FilterState{}}
}

func (state *State) Clauses() ClauseSet {
	return state.clauses
}

func (state *State) QueryParams() QueryParams {
	return QueryParams{Clauses: state.clauses, Where: state.where.Clone()}
}

func (state *State) HasDimensions() bool {
	return state.clauses.HasDimensions()
}

// Writes value to the given slot of the clauses addressed by channel. Dimension slots are shared
// between select and group, so any channel writes them. The aggregate slot is select-only.
//
// Slots may be written in any order; gating slot n+1 on slot n is left to the caller.
func (state *State) Set(channel Channel, slot Slot, value string) error {
	if err := state.validateTarget(channel, slot); err != nil {
		return err
	}

	if slot.IsDimension() {
		state.clauses.dimensions[slot] = optional{value: value, filled: true}
	} else {
		state.clauses.aggregate = optional{value: value, filled: true}
	}

	state.snapshotFilters()
	return nil
}

// Removes the value at the given slot, leaving other slots untouched, and returns the value it
// held (blank if the slot was empty).
func (state *State) Clear(channel Channel, slot Slot) (previous string, err error) {
	if err := state.validateTarget(channel, slot); err != nil {
		return "", err
	}

	if slot.IsDimension() {
		previous = state.clauses.dimensions[slot].value
		state.clauses.dimensions[slot] = optional{}
	} else {
		previous = state.clauses.aggregate.value
		state.clauses.aggregate = optional{}
	}

	state.snapshotFilters()
	return previous, nil
}

// Maps the metric key chosen in the calculate-by control to the API expression stored in the
// aggregate slot.
func (state *State) ResolveAggregateSelection(rawValue string) (expression string, err error) {
	expression, err = state.registry.ExpressionForKey(registry.MetricKey(rawValue))
	if err != nil {
		return "", wrap.Error(err, "failed to resolve calculate-by selection")
	}
	return expression, nil
}

func (state *State) validateTarget(channel Channel, slot Slot) error {
	if !slot.IsValid() {
		return fmt.Errorf("%w %d (must be between 0 and %d)", ErrInvalidSlot, slot, SlotCount-1)
	}

	switch channel {
	case ChannelSelect, ChannelBoth:
		return nil
	case ChannelGroup:
		if slot == AggregateSlot {
			return ErrAggregateNotGroupable
		}
		return nil
	default:
		return fmt.Errorf("%w '%s'", ErrInvalidChannel, channel)
	}
}

// Filters may have changed since the last clause change, so we copy them on every write.
func (state *State) snapshotFilters() {
	if state.filters == nil {
		state.where = FilterState{}
		return
	}
	state.where = state.filters.Filters().Clone()
}
