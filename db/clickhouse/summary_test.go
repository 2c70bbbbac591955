package clickhouse

import (
	"errors"
	"slices"
	"testing"

	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/db"
	"hermannm.dev/summarytable/registry"
)

func TestBuildSummaryQuery(t *testing.T) {
	query := newTestQuery(t, []string{"state_name", "", "loan_type_name"}, "avg_loan_amount_000s")
	query.Where = clauses.FilterState{
		"state_abbr": {"CA", "NY"},
		"as_of_year": {"2012"},
	}

	summaryQuery, err := buildSummaryQuery(query, "hmda_lar", 500)
	if err != nil {
		t.Fatal(err)
	}

	expectedSQL := "SELECT ifNull(toString(`state_name`), '') AS `state_name`, " +
		"ifNull(toString(`loan_type_name`), '') AS `loan_type_name`, " +
		"CAST(avg(`loan_amount_000s`) AS Nullable(Float64)) AS `avg_loan_amount_000s` " +
		"FROM `hmda_lar` " +
		"WHERE toString(`as_of_year`) IN (?) AND toString(`state_abbr`) IN (?, ?) " +
		"GROUP BY `state_name`, `loan_type_name` " +
		"ORDER BY `state_name`, `loan_type_name` " +
		"LIMIT 500"
	if summaryQuery.sql != expectedSQL {
		t.Errorf("unexpected query\ngot:  %s\nwant: %s", summaryQuery.sql, expectedSQL)
	}

	expectedArgs := []any{"2012", "CA", "NY"}
	if !slices.Equal(summaryQuery.args, expectedArgs) {
		t.Errorf("expected args %v, got %v", expectedArgs, summaryQuery.args)
	}

	expectedColumns := []summaryColumn{
		{key: "state_name"},
		{key: "loan_type_name"},
		{key: "avg_loan_amount_000s", isAggregate: true},
	}
	if !slices.Equal(summaryQuery.columns, expectedColumns) {
		t.Errorf("expected columns %v, got %v", expectedColumns, summaryQuery.columns)
	}
}

func TestBuildSummaryQueryCountWithoutDimensions(t *testing.T) {
	query := newTestQuery(t, nil, "count")

	summaryQuery, err := buildSummaryQuery(query, "hmda_lar", 10)
	if err != nil {
		t.Fatal(err)
	}

	expectedSQL := "SELECT CAST(count() AS Nullable(Float64)) AS `count` FROM `hmda_lar` LIMIT 10"
	if summaryQuery.sql != expectedSQL {
		t.Errorf("unexpected query\ngot:  %s\nwant: %s", summaryQuery.sql, expectedSQL)
	}
}

func TestBuildSummaryQueryDimensionsOnly(t *testing.T) {
	query := newTestQuery(t, []string{"state_name"}, "")

	summaryQuery, err := buildSummaryQuery(query, "hmda_lar", 10)
	if err != nil {
		t.Fatal(err)
	}

	expectedSQL := "SELECT ifNull(toString(`state_name`), '') AS `state_name` FROM `hmda_lar` " +
		"GROUP BY `state_name` ORDER BY `state_name` LIMIT 10"
	if summaryQuery.sql != expectedSQL {
		t.Errorf("unexpected query\ngot:  %s\nwant: %s", summaryQuery.sql, expectedSQL)
	}
}

func TestBuildSummaryQueryRejectsInvalidInput(t *testing.T) {
	if _, err := buildSummaryQuery(clauses.QueryParams{}, "hmda_lar", 10); !errors.Is(err, db.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}

	query := newTestQuery(t, []string{"state`name"}, "")
	if _, err := buildSummaryQuery(query, "hmda_lar", 10); err == nil {
		t.Error("expected error for identifier containing backtick")
	}

	query = newTestQuery(t, []string{"state_name"}, "")
	query.Where = clauses.FilterState{"a`b": {"x"}}
	if _, err := buildSummaryQuery(query, "hmda_lar", 10); err == nil {
		t.Error("expected error for filter field containing backtick")
	}
}

func TestToResultRow(t *testing.T) {
	columns := []summaryColumn{
		{key: "state_name"},
		{key: "avg_loan_amount_000s", isAggregate: true},
		{key: "max_loan_amount_000s", isAggregate: true},
	}

	state := "CA"
	average := 23.523
	averagePointer := &average
	var missing *float64

	row := toResultRow([]any{&state, &averagePointer, &missing}, columns)

	if row["state_name"] != "CA" {
		t.Errorf("expected state_name 'CA', got %v", row["state_name"])
	}
	if row["avg_loan_amount_000s"] != 23.523 {
		t.Errorf("expected average 23.523, got %v", row["avg_loan_amount_000s"])
	}
	if value, ok := row["max_loan_amount_000s"]; !ok || value != nil {
		t.Errorf("expected nil for null aggregate, got %v", value)
	}
}

// Writes the given dimensions to their slots (blank for an empty slot), and the aggregate by its
// metric key (blank for none).
func newTestQuery(t *testing.T, dimensions []string, metricKey string) clauses.QueryParams {
	t.Helper()

	hmda, err := registry.NewHMDA()
	if err != nil {
		t.Fatal(err)
	}

	state := clauses.NewState(hmda, nil)
	for slot, dimension := range dimensions {
		if dimension == "" {
			continue
		}
		if err := state.Set(clauses.ChannelBoth, clauses.Slot(slot), dimension); err != nil {
			t.Fatal(err)
		}
	}

	if metricKey != "" {
		expression, err := state.ResolveAggregateSelection(metricKey)
		if err != nil {
			t.Fatal(err)
		}
		if err := state.Set(clauses.ChannelSelect, clauses.AggregateSlot, expression); err != nil {
			t.Fatal(err)
		}
	}

	return state.QueryParams()
}
