package summary

import (
	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/registry"
	"hermannm.dev/summarytable/table"
)

// Everything the UI layer needs to draw the summary table page. Select and group are the
// positional clauses, with null for empty slots: select has 4 entries (3 dimensions and the
// aggregate), group has 3.
type View struct {
	SessionID       string      `json:"sessionId"`
	Select          []*string   `json:"select"`
	Group           []*string   `json:"group"`
	Filters         FilterView  `json:"filters"`
	Table           table.Table `json:"table"`
	Loading         bool        `json:"loading"`
	Banner          *Banner     `json:"banner"`
	DownloadEnabled bool        `json:"downloadEnabled"`
	Form            Form        `json:"form"`
}

type FilterView map[string][]string

type Form struct {
	Dimensions  []DimensionControl `json:"dimensions"`
	CalculateBy CalculateByControl `json:"calculateBy"`
}

// Filled dimensions after the first are resettable.
type DimensionControl struct {
	Position   clauses.Slot       `json:"position"`
	Enabled    bool               `json:"enabled"`
	Selected   *registry.FieldID  `json:"selected"`
	Options    []registry.FieldID `json:"options"`
	Resettable bool               `json:"resettable"`
}

type CalculateByControl struct {
	Enabled  bool                 `json:"enabled"`
	Selected *registry.MetricKey  `json:"selected"`
	Options  []registry.MetricDef `json:"options"`
}

func (session *Session) View() View {
	session.lock.Lock()
	defer session.lock.Unlock()

	clauseSet := session.state.Clauses()
	selectClause, groupClause := clauseSet.Positional()

	return View{
		SessionID:       session.ID.String(),
		Select:          selectClause,
		Group:           groupClause,
		Filters:         FilterView(session.filters.Filters()),
		Table:           session.table,
		Loading:         session.loading,
		Banner:          session.activeBanner(),
		DownloadEnabled: clauseSet.HasDimensions(),
		Form:            session.form(clauseSet),
	}
}

// Must hold lock.
func (session *Session) form(clauseSet clauses.ClauseSet) Form {
	fields := session.registry.Fields()

	var form Form
	form.Dimensions = make([]DimensionControl, 0, clauses.DimensionSlots)

	for slot := clauses.Slot(0); slot.IsDimension(); slot++ {
		control := DimensionControl{
			Position: slot,
			Enabled:  session.isEnabled(slot),
			Options:  make([]registry.FieldID, 0, len(fields)),
		}

		if value, filled := clauseSet.Get(slot); filled {
			field := registry.FieldID(value)
			control.Selected = &field
			control.Resettable = slot > 0
		}

		// A field can only be chosen in one slot at a time
		for _, field := range fields {
			if !chosenInOtherSlot(clauseSet, slot, field) {
				control.Options = append(control.Options, field)
			}
		}

		form.Dimensions = append(form.Dimensions, control)
	}

	form.CalculateBy = CalculateByControl{
		Enabled: session.isEnabled(clauses.AggregateSlot),
		Options: session.registry.Metrics(),
	}
	if expression, filled := clauseSet.Aggregate(); filled {
		key := registry.ToKey(expression)
		form.CalculateBy.Selected = &key
	}

	return form
}

func chosenInOtherSlot(clauseSet clauses.ClauseSet, slot clauses.Slot, field registry.FieldID) bool {
	for other := clauses.Slot(0); other < clauses.DimensionSlots; other++ {
		if other == slot {
			continue
		}
		if value, filled := clauseSet.Get(other); filled && registry.FieldID(value) == field {
			return true
		}
	}
	return false
}
