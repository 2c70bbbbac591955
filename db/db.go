package db

import (
	"context"
	"errors"

	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/results"
)

// Fetches the grouped aggregation described by a query. Implemented by the remote slice API
// client and by the ClickHouse and Elasticsearch backends.
//
// Result rows are keyed by field ID for dimensions and by metric key for the aggregate (e.g.
// "avg_loan_amount_000s"). Errors reported by the data source in its response body go in
// ResultSet.Errors; the returned error is for failures to get a response at all.
type SummaryDB interface {
	FetchSummary(ctx context.Context, query clauses.QueryParams) (results.ResultSet, error)
}

var ErrEmptyQuery = errors.New("query has no selected columns")

// Maximum number of rows fetched for one summary table, unless configured otherwise.
const DefaultMaxRows = 10000
