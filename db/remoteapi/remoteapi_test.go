package remoteapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/config"
	"hermannm.dev/summarytable/db"
	"hermannm.dev/summarytable/registry"
)

func TestFetchSummary(t *testing.T) {
	var receivedQuery url.Values
	var receivedPath string

	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		receivedQuery = req.URL.Query()
		receivedPath = req.URL.Path
		res.Header().Set("Content-Type", "application/json")
		fmt.Fprint(res, `{"results":[{"state_name":"CA","avg_loan_amount_000s":23.523}],"errors":[]}`)
	}))
	defer server.Close()

	api := newTestAPI(t, server.URL+"/data/hmda/slice")

	query := newTestQuery(t, clauses.FilterState{
		"as_of_year": {"2012"},
		"state_abbr": {"CA", "NY"},
	})

	resultSet, err := api.FetchSummary(context.Background(), query)
	if err != nil {
		t.Fatal(err)
	}

	if receivedPath != "/data/hmda/slice/hmda_lar.json" {
		t.Errorf("unexpected request path '%s'", receivedPath)
	}

	for param, expected := range map[string]string{
		"$select": "state_name,AVG(loan_amount_000s)",
		"$group":  "state_name",
		"$where":  `as_of_year=2012 AND (state_abbr="CA" OR state_abbr="NY")`,
		"$limit":  "10000",
	} {
		if actual := receivedQuery.Get(param); actual != expected {
			t.Errorf("expected %s='%s', got '%s'", param, expected, actual)
		}
	}

	if len(resultSet.Results) != 1 {
		t.Fatalf("expected 1 result row, got %d", len(resultSet.Results))
	}
	if resultSet.Results[0]["state_name"] != "CA" {
		t.Errorf("unexpected result row %v", resultSet.Results[0])
	}
	if resultSet.HasErrors() {
		t.Errorf("expected no response errors, got %v", resultSet.Errors)
	}
}

func TestFetchSummaryPassesOnResponseErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		res.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(res, `{"results":[],"errors":[{"message":"unknown column"}]}`)
	}))
	defer server.Close()

	api := newTestAPI(t, server.URL)

	resultSet, err := api.FetchSummary(context.Background(), newTestQuery(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	if !resultSet.HasErrors() {
		t.Error("expected response errors to be passed on")
	}
}

func TestFetchSummaryServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		http.Error(res, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	api := newTestAPI(t, server.URL)

	if _, err := api.FetchSummary(context.Background(), newTestQuery(t, nil)); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestQueryURLRejectsEmptyQuery(t *testing.T) {
	api := newTestAPI(t, "https://api.example.org")

	_, err := api.QueryURL(clauses.QueryParams{}, "json")
	if !errors.Is(err, db.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestNewRemoteAPIRejectsInvalidURL(t *testing.T) {
	for _, baseURL := range []string{"ftp://api.example.org", "not a url", ""} {
		var config config.Config
		config.RemoteAPI.BaseURL = baseURL
		config.RemoteAPI.Dataset = "hmda_lar"

		if _, err := NewRemoteAPI(config, nil); err == nil {
			t.Errorf("expected error for base URL '%s'", baseURL)
		}
	}
}

func TestEncodeWhere(t *testing.T) {
	for _, testCase := range []struct {
		filters  clauses.FilterState
		expected string
	}{
		{nil, ""},
		{clauses.FilterState{"as_of_year": {"2012"}}, "as_of_year=2012"},
		{clauses.FilterState{"state_abbr": {"CA"}}, `state_abbr="CA"`},
		{
			clauses.FilterState{"state_abbr": {"CA", "NY"}, "as_of_year": {"2012"}},
			`as_of_year=2012 AND (state_abbr="CA" OR state_abbr="NY")`,
		},
		{clauses.FilterState{"lender": {`Bank "A"`}}, `lender="Bank \"A\""`},
		{clauses.FilterState{"as_of_year": {}}, ""},
	} {
		if actual := EncodeWhere(testCase.filters); actual != testCase.expected {
			t.Errorf("EncodeWhere(%v) = '%s', want '%s'", testCase.filters, actual, testCase.expected)
		}
	}
}

func newTestAPI(t *testing.T, baseURL string) RemoteAPI {
	t.Helper()

	var config config.Config
	config.RemoteAPI.BaseURL = baseURL
	config.RemoteAPI.Dataset = "hmda_lar"

	api, err := NewRemoteAPI(config, nil)
	if err != nil {
		t.Fatal(err)
	}
	return api
}

func newTestQuery(t *testing.T, filters clauses.FilterState) clauses.QueryParams {
	t.Helper()

	hmda, err := registry.NewHMDA()
	if err != nil {
		t.Fatal(err)
	}

	store := clauses.NewFilterStore()
	store.Replace(filters)

	state := clauses.NewState(hmda, store)
	if err := state.Set(clauses.ChannelBoth, 0, "state_name"); err != nil {
		t.Fatal(err)
	}
	expression, err := state.ResolveAggregateSelection("avg_loan_amount_000s")
	if err != nil {
		t.Fatal(err)
	}
	if err := state.Set(clauses.ChannelSelect, clauses.AggregateSlot, expression); err != nil {
		t.Fatal(err)
	}

	return state.QueryParams()
}
