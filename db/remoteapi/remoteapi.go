package remoteapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"hermannm.dev/devlog/log"
	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/config"
	"hermannm.dev/summarytable/db"
	"hermannm.dev/summarytable/results"
	"hermannm.dev/wrap"
)

// Implements db.SummaryDB against a slice API, which takes the clauses as URL parameters:
//
//	GET {base}/{dataset}.json?$select=state_name,AVG(loan_amount_000s)&$group=state_name&$where=...
//
// and responds with {"results": [...], "errors": [...]}.
type RemoteAPI struct {
	client  *http.Client
	baseURL *url.URL
	dataset string
	maxRows int
}

func NewRemoteAPI(config config.Config, client *http.Client) (RemoteAPI, error) {
	baseURL, err := url.Parse(config.RemoteAPI.BaseURL)
	if err != nil {
		return RemoteAPI{}, wrap.Errorf(err, "invalid remote API base URL '%s'", config.RemoteAPI.BaseURL)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return RemoteAPI{}, fmt.Errorf(
			"remote API base URL '%s' must use http or https", config.RemoteAPI.BaseURL,
		)
	}
	if config.RemoteAPI.Dataset == "" {
		return RemoteAPI{}, fmt.Errorf("remote API dataset name is blank")
	}

	if client == nil {
		client = http.DefaultClient
	}

	maxRows := config.Query.MaxRows
	if maxRows <= 0 {
		maxRows = db.DefaultMaxRows
	}

	return RemoteAPI{
		client:  client,
		baseURL: baseURL,
		dataset: config.RemoteAPI.Dataset,
		maxRows: maxRows,
	}, nil
}

func (api RemoteAPI) FetchSummary(
	ctx context.Context,
	query clauses.QueryParams,
) (results.ResultSet, error) {
	queryURL, err := api.QueryURL(query, "json")
	if err != nil {
		return results.ResultSet{}, err
	}

	log.Debug("requesting summary from remote API", slog.String("url", queryURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return results.ResultSet{}, wrap.Error(err, "failed to create remote API request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := api.client.Do(req)
	if err != nil {
		return results.ResultSet{}, wrap.Error(err, "remote API request failed")
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		resultSet, err := results.Decode(res.Body)
		if err != nil {
			return results.ResultSet{}, wrap.Error(err, "failed to parse remote API response")
		}
		return resultSet, nil
	}

	// The API reports invalid clauses as a 400 with an errors list, which we pass on like any
	// other response errors
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64*1024))
	if resultSet, err := results.Decode(bytes.NewReader(body)); err == nil && resultSet.HasErrors() {
		return resultSet, nil
	}

	return results.ResultSet{}, fmt.Errorf(
		"remote API responded with status %d: %s",
		res.StatusCode,
		strings.TrimSpace(string(body)),
	)
}

// Builds the URL for the given query, with format being the response format extension supported
// by the API ("json", "csv", "xml").
func (api RemoteAPI) QueryURL(query clauses.QueryParams, format string) (string, error) {
	selectClause := query.SelectExpressions()
	if len(selectClause) == 0 {
		return "", db.ErrEmptyQuery
	}

	groupFields := query.GroupFields()
	groupClause := make([]string, 0, len(groupFields))
	for _, field := range groupFields {
		groupClause = append(groupClause, string(field))
	}

	params := url.Values{}
	params.Set("$select", strings.Join(selectClause, ","))
	if len(groupClause) != 0 {
		params.Set("$group", strings.Join(groupClause, ","))
	}
	if where := EncodeWhere(query.Where); where != "" {
		params.Set("$where", where)
	}
	params.Set("$limit", strconv.Itoa(api.maxRows))

	queryURL := api.baseURL.JoinPath(api.dataset + "." + format)
	queryURL.RawQuery = params.Encode()
	return queryURL.String(), nil
}

// Encodes filters as a $where clause. Fields are joined with AND, and a field with multiple
// values becomes a parenthesized OR:
//
//	as_of_year=2012 AND (state_abbr="CA" OR state_abbr="NY")
func EncodeWhere(filters clauses.FilterState) string {
	var where strings.Builder

	first := true
	for _, field := range filters.SortedFields() {
		values := filters[field]
		if len(values) == 0 {
			continue
		}

		if !first {
			where.WriteString(" AND ")
		}
		first = false

		if len(values) > 1 {
			where.WriteByte('(')
		}
		for i, value := range values {
			if i != 0 {
				where.WriteString(" OR ")
			}
			where.WriteString(field)
			where.WriteByte('=')
			writeValue(&where, value)
		}
		if len(values) > 1 {
			where.WriteByte(')')
		}
	}

	return where.String()
}

func writeValue(writer *strings.Builder, value string) {
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		writer.WriteString(value)
		return
	}

	writer.WriteByte('"')
	writer.WriteString(strings.ReplaceAll(value, `"`, `\"`))
	writer.WriteByte('"')
}
