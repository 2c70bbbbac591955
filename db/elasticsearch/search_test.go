package elasticsearch

import (
	"encoding/json"
	"errors"
	"testing"

	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/db"
	"hermannm.dev/summarytable/registry"
)

func TestSearchBodyWithDimensions(t *testing.T) {
	query := newTestQuery(t, []string{"state_name", "loan_type_name"}, "avg_loan_amount_000s")
	query.Where = clauses.FilterState{"as_of_year": {"2012"}}

	search, err := newSummarySearch(query)
	if err != nil {
		t.Fatal(err)
	}

	body, err := search.body(5000, map[string]any{"state_name": "CA", "loan_type_name": "FHA"})
	if err != nil {
		t.Fatal(err)
	}

	assertJSONEqual(t, body, `{
		"size": 0,
		"query": {"bool": {"filter": [{"terms": {"as_of_year": ["2012"]}}]}},
		"aggs": {
			"summary": {
				"composite": {
					"size": 1000,
					"sources": [
						{"state_name": {"terms": {"field": "state_name", "missing_bucket": true}}},
						{"loan_type_name": {"terms": {"field": "loan_type_name", "missing_bucket": true}}}
					],
					"after": {"state_name": "CA", "loan_type_name": "FHA"}
				},
				"aggs": {"avg_loan_amount_000s": {"avg": {"field": "loan_amount_000s"}}}
			}
		}
	}`)
}

func TestSearchBodyCountWithoutDimensions(t *testing.T) {
	search, err := newSummarySearch(newTestQuery(t, nil, "count"))
	if err != nil {
		t.Fatal(err)
	}

	body, err := search.body(10000, nil)
	if err != nil {
		t.Fatal(err)
	}

	assertJSONEqual(t, body, `{
		"size": 0,
		"track_total_hits": true,
		"query": {"match_all": {}}
	}`)
}

func TestNewSummarySearchRejectsEmptyQuery(t *testing.T) {
	if _, err := newSummarySearch(clauses.QueryParams{}); !errors.Is(err, db.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestParseCompositeResponse(t *testing.T) {
	search, err := newSummarySearch(
		newTestQuery(t, []string{"state_name", "as_of_year"}, "avg_loan_amount_000s"),
	)
	if err != nil {
		t.Fatal(err)
	}

	page, err := search.parseResponse([]byte(`{
		"hits": {"total": {"value": 3}},
		"aggregations": {
			"summary": {
				"after_key": {"state_name": "NY", "as_of_year": 2012},
				"buckets": [
					{
						"key": {"state_name": "CA", "as_of_year": 2012},
						"doc_count": 2,
						"avg_loan_amount_000s": {"value": 23.523}
					},
					{
						"key": {"state_name": null, "as_of_year": 2012},
						"doc_count": 1,
						"avg_loan_amount_000s": {"value": null}
					}
				]
			}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if len(page.rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page.rows))
	}

	first := page.rows[0]
	if first["state_name"] != "CA" || first["as_of_year"] != "2012" {
		t.Errorf("unexpected dimensions in first row: %v", first)
	}
	if first["avg_loan_amount_000s"] != 23.523 {
		t.Errorf("expected average 23.523, got %v", first["avg_loan_amount_000s"])
	}

	second := page.rows[1]
	if value, ok := second["state_name"]; !ok || value != nil {
		t.Errorf("expected nil state_name for missing bucket, got %v", value)
	}
	if value, ok := second["avg_loan_amount_000s"]; !ok || value != nil {
		t.Errorf("expected nil average, got %v", value)
	}

	if page.afterKey["state_name"] != "NY" {
		t.Errorf("unexpected after key %v", page.afterKey)
	}
}

func TestParseCountResponse(t *testing.T) {
	search, err := newSummarySearch(newTestQuery(t, []string{"state_name"}, "count"))
	if err != nil {
		t.Fatal(err)
	}

	page, err := search.parseResponse([]byte(`{
		"aggregations": {
			"summary": {
				"buckets": [{"key": {"state_name": "CA"}, "doc_count": 1234}]
			}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if len(page.rows) != 1 || page.rows[0]["count"] != int64(1234) {
		t.Errorf("unexpected rows %v", page.rows)
	}
	if page.afterKey != nil {
		t.Errorf("expected no after key on last page, got %v", page.afterKey)
	}
}

func TestParseElasticError(t *testing.T) {
	elasticErr, ok := parseElasticError([]byte(`{
		"error": {
			"type": "search_phase_execution_exception",
			"reason": "all shards failed",
			"root_cause": [{"type": "illegal_argument_exception", "reason": "field is not aggregatable"}]
		},
		"status": 400
	}`), 400)
	if !ok {
		t.Fatal("expected body to parse as Elasticsearch error")
	}

	expected := "all shards failed (search_phase_execution_exception, status 400)"
	if message := formatElasticError(elasticErr).Error(); len(message) < len(expected) ||
		message[:len(expected)] != expected {
		t.Errorf("unexpected error message '%s'", message)
	}

	if _, ok := parseElasticError([]byte(`not json`), 500); ok {
		t.Error("expected non-JSON body to be rejected")
	}
}

func assertJSONEqual(t *testing.T, actual []byte, expected string) {
	t.Helper()

	var actualValue, expectedValue any
	if err := json.Unmarshal(actual, &actualValue); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(expected), &expectedValue); err != nil {
		t.Fatal(err)
	}

	actualNormalized, _ := json.Marshal(actualValue)
	expectedNormalized, _ := json.Marshal(expectedValue)
	if string(actualNormalized) != string(expectedNormalized) {
		t.Errorf("unexpected JSON\ngot:  %s\nwant: %s", actualNormalized, expectedNormalized)
	}
}

func newTestQuery(t *testing.T, dimensions []string, metricKey string) clauses.QueryParams {
	t.Helper()

	hmda, err := registry.NewHMDA()
	if err != nil {
		t.Fatal(err)
	}

	state := clauses.NewState(hmda, nil)
	for slot, dimension := range dimensions {
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
