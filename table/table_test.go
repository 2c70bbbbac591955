package table

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/registry"
	"hermannm.dev/summarytable/results"
)

func TestBuildHeadersInSlotOrder(t *testing.T) {
	hmda := newTestRegistry(t)

	// Written in reverse order, with slot 1 left empty
	state := clauses.NewState(hmda, clauses.NewFilterStore())
	mustSet(t, state, clauses.ChannelSelect, clauses.AggregateSlot, "COUNT()")
	mustSet(t, state, clauses.ChannelBoth, 2, "county_name")
	mustSet(t, state, clauses.ChannelBoth, 0, "state_name")

	headers := BuildHeaders(state.Clauses(), hmda)
	expected := []string{"State Name", "County Name", "Number of records"}
	if !slices.Equal(headers, expected) {
		t.Errorf("got headers %v, want %v", headers, expected)
	}
}

func TestRenderScenario(t *testing.T) {
	hmda := newTestRegistry(t)

	state := clauses.NewState(hmda, clauses.NewFilterStore())
	mustSet(t, state, clauses.ChannelBoth, 0, "state_name")
	mustSet(t, state, clauses.ChannelSelect, clauses.AggregateSlot, "AVG(loan_amount_000s)")

	normalized, formatErrs := results.NewNormalizer(hmda).Normalize(results.ResultSet{
		Results: []results.ResultRow{
			{"state_name": "CA", "avg_loan_amount_000s": json.Number("23.523")},
		},
	})
	if len(formatErrs) != 0 {
		t.Fatal(formatErrs)
	}

	table, err := Render(state.Clauses(), normalized, hmda)
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(table.Headers, []string{"State Name", "Loan Amount Average"}) {
		t.Errorf("unexpected headers %v", table.Headers)
	}
	if len(table.Rows) != 1 || !slices.Equal(table.Rows[0], []string{"CA", "$23,523"}) {
		t.Errorf("unexpected rows %v", table.Rows)
	}
}

func TestBuildRowsLookup(t *testing.T) {
	hmda := newTestRegistry(t)

	state := clauses.NewState(hmda, clauses.NewFilterStore())
	mustSet(t, state, clauses.ChannelBoth, 0, "state_name")
	mustSet(t, state, clauses.ChannelBoth, 1, "as_of_year")
	mustSet(t, state, clauses.ChannelSelect, clauses.AggregateSlot, "SUM(loan_amount_000s)")

	rows := BuildRows(state.Clauses(), results.ResultSet{
		Results: []results.ResultRow{
			// Aggregate keyed by the literal expression
			{"state_name": "CA", "as_of_year": json.Number("2012"), "SUM(loan_amount_000s)": "$1"},
			// Aggregate keyed by the metric key
			{"state_name": "NY", "as_of_year": json.Number("2013"), "sum_loan_amount_000s": "$2"},
			// Aggregate and year missing, state null
			{"state_name": nil},
		},
	})

	expected := [][]string{
		{"CA", "2012", "$1"},
		{"NY", "2013", "$2"},
		{"", NotReported, NotReported},
	}
	if len(rows) != len(expected) {
		t.Fatalf("got %d rows, want %d", len(rows), len(expected))
	}
	for i := range expected {
		if !slices.Equal(rows[i], expected[i]) {
			t.Errorf("row %d: got %v, want %v", i, rows[i], expected[i])
		}
	}
}

func TestRenderAbortsOnResponseErrors(t *testing.T) {
	hmda := newTestRegistry(t)

	state := clauses.NewState(hmda, clauses.NewFilterStore())
	mustSet(t, state, clauses.ChannelBoth, 0, "state_name")

	_, err := Render(state.Clauses(), results.ResultSet{
		Results: []results.ResultRow{{"state_name": "CA"}},
		Errors:  []json.RawMessage{json.RawMessage(`"invalid $where clause"`)},
	}, hmda)
	if !errors.Is(err, ErrResponseErrors) {
		t.Errorf("expected ErrResponseErrors, got %v", err)
	}
}

func TestEmpty(t *testing.T) {
	hmda := newTestRegistry(t)

	state := clauses.NewState(hmda, clauses.NewFilterStore())
	mustSet(t, state, clauses.ChannelBoth, 0, "loan_type_name")

	table := Empty(state.Clauses(), hmda)
	if !slices.Equal(table.Headers, []string{"Loan Type Name"}) || len(table.Rows) != 0 {
		t.Errorf("unexpected empty table %+v", table)
	}
}

func mustSet(
	t *testing.T,
	state *clauses.State,
	channel clauses.Channel,
	slot clauses.Slot,
	value string,
) {
	t.Helper()
	if err := state.Set(channel, slot, value); err != nil {
		t.Fatal(err)
	}
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	hmda, err := registry.NewHMDA()
	if err != nil {
		t.Fatal(err)
	}
	return hmda
}
