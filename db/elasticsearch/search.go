package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"hermannm.dev/devlog/log"
	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/db"
	"hermannm.dev/summarytable/registry"
	"hermannm.dev/summarytable/results"
	"hermannm.dev/wrap"
)

// Name of the composite aggregation that groups by the dimensions.
const summaryAggregationName = "summary"

// Maximum buckets per composite aggregation page.
const maxPageSize = 1000

func (elastic ElasticsearchDB) FetchSummary(
	ctx context.Context,
	query clauses.QueryParams,
) (results.ResultSet, error) {
	search, err := newSummarySearch(query)
	if err != nil {
		return results.ResultSet{}, wrap.Error(err, "failed to build summary search")
	}

	resultSet := results.ResultSet{Results: []results.ResultRow{}}

	var afterKey map[string]any
	for {
		body, err := search.body(elastic.maxRows-len(resultSet.Results), afterKey)
		if err != nil {
			return results.ResultSet{}, err
		}

		log.Debug("sending elasticsearch summary search", slog.String("body", string(body)))

		responseBody, responseErrs, err := elastic.search(ctx, body)
		if err != nil {
			return results.ResultSet{}, err
		}
		if responseErrs != nil {
			return results.ResultSet{Results: []results.ResultRow{}, Errors: responseErrs}, nil
		}

		page, err := search.parseResponse(responseBody)
		if err != nil {
			return results.ResultSet{}, wrap.Error(err, "failed to parse Elasticsearch response")
		}

		resultSet.Results = append(resultSet.Results, page.rows...)

		if page.afterKey == nil || len(page.rows) == 0 || len(resultSet.Results) >= elastic.maxRows {
			break
		}
		afterKey = page.afterKey
	}

	if len(resultSet.Results) > elastic.maxRows {
		resultSet.Results = resultSet.Results[:elastic.maxRows]
	}

	return resultSet, nil
}

// Sends a search request. Errors that Elasticsearch reports for the request itself (such as an
// unknown field) are returned as response errors, to be shown like the errors of any other data
// source. Other failures are returned as err.
func (elastic ElasticsearchDB) search(
	ctx context.Context,
	body []byte,
) (responseBody []byte, responseErrs []json.RawMessage, err error) {
	res, err := elastic.client.Search().Index(elastic.index).Raw(bytes.NewReader(body)).Perform(ctx)
	if err != nil {
		return nil, nil, wrap.Error(err, "Elasticsearch search request failed")
	}
	defer res.Body.Close()

	responseBody, err = io.ReadAll(res.Body)
	if err != nil {
		return nil, nil, wrap.Error(err, "failed to read Elasticsearch response")
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return responseBody, nil, nil
	}

	elasticErr, ok := parseElasticError(responseBody, res.StatusCode)
	if !ok {
		return nil, nil, fmt.Errorf(
			"Elasticsearch responded with status %d: %s", res.StatusCode, string(responseBody),
		)
	}

	if res.StatusCode >= 400 && res.StatusCode < 500 {
		log.Warn(
			"Elasticsearch rejected summary search",
			slog.String("cause", formatElasticError(elasticErr).Error()),
		)
		return nil, []json.RawMessage{responseBody}, nil
	}

	return nil, nil, wrapElasticError(elasticErr, "Elasticsearch search failed")
}

type summarySearch struct {
	dimensions []registry.FieldID
	aggregate  *registry.Aggregate
	where      clauses.FilterState
}

func newSummarySearch(query clauses.QueryParams) (summarySearch, error) {
	if query.Clauses.IsEmpty() {
		return summarySearch{}, db.ErrEmptyQuery
	}

	search := summarySearch{dimensions: query.GroupFields(), where: query.Where}

	if expression, filled := query.Clauses.Aggregate(); filled {
		aggregate, ok := registry.ParseExpression(expression)
		if !ok {
			return summarySearch{}, fmt.Errorf("unrecognized aggregate expression '%s'", expression)
		}
		if aggregate.Func != registry.MetricFuncCount && !elasticMetricFuncs.ContainsEnumValue(aggregate.Func) {
			return summarySearch{}, fmt.Errorf("unsupported aggregate function '%s'", aggregate.Func)
		}
		search.aggregate = &aggregate
	}

	return search, nil
}

// Builds the search body for one page of buckets. With dimensions, the buckets come from a
// composite aggregation over them, paged with afterKey. Without dimensions, the aggregate is
// computed over all matching documents, and there is only one page.
func (search summarySearch) body(remainingRows int, afterKey map[string]any) ([]byte, error) {
	body := map[string]any{
		"size":  0,
		"query": search.filterQuery(),
	}

	metricAggs := search.metricAggregations()

	if len(search.dimensions) == 0 {
		body["track_total_hits"] = true
		if len(metricAggs) != 0 {
			body["aggs"] = metricAggs
		}
	} else {
		sources := make([]map[string]any, 0, len(search.dimensions))
		for _, dimension := range search.dimensions {
			sources = append(sources, map[string]any{
				string(dimension): map[string]any{
					"terms": map[string]any{"field": dimension, "missing_bucket": true},
				},
			})
		}

		composite := map[string]any{
			"size":    min(max(remainingRows, 1), maxPageSize),
			"sources": sources,
		}
		if afterKey != nil {
			composite["after"] = afterKey
		}

		summaryAgg := map[string]any{"composite": composite}
		if len(metricAggs) != 0 {
			summaryAgg["aggs"] = metricAggs
		}
		body["aggs"] = map[string]any{summaryAggregationName: summaryAgg}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, wrap.Error(err, "failed to encode search body")
	}
	return encoded, nil
}

// Each filter field matches any of its values, and all fields must match.
func (search summarySearch) filterQuery() map[string]any {
	fields := search.where.SortedFields()
	filters := make([]map[string]any, 0, len(fields))

	for _, field := range fields {
		values := search.where[field]
		if len(values) == 0 {
			continue
		}
		filters = append(filters, map[string]any{
			"terms": map[string]any{field: values},
		})
	}

	if len(filters) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{"bool": map[string]any{"filter": filters}}
}

func (search summarySearch) metricAggregations() map[string]any {
	if search.aggregate == nil || search.aggregate.Func == registry.MetricFuncCount {
		return nil
	}

	// Checked in newSummarySearch
	aggType, _ := elasticMetricFuncs.GetName(search.aggregate.Func)

	return map[string]any{
		string(search.aggregate.Key()): map[string]any{
			aggType: map[string]any{"field": search.aggregate.Field},
		},
	}
}

type summaryPage struct {
	rows     []results.ResultRow
	afterKey map[string]any
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

type compositeAggregation struct {
	AfterKey map[string]any    `json:"after_key"`
	Buckets  []compositeBucket `json:"buckets"`
}

type compositeBucket struct {
	Key      map[string]any
	DocCount int64
	// Metric sub-aggregations by name.
	Metrics map[string]json.RawMessage
}

func (bucket *compositeBucket) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	if err := decodeNumbers(fields["key"], &bucket.Key); err != nil {
		return wrap.Error(err, "invalid bucket key")
	}
	if err := json.Unmarshal(fields["doc_count"], &bucket.DocCount); err != nil {
		return wrap.Error(err, "invalid bucket doc_count")
	}

	delete(fields, "key")
	delete(fields, "doc_count")
	bucket.Metrics = fields
	return nil
}

type metricValue struct {
	Value *float64 `json:"value"`
}

func (search summarySearch) parseResponse(body []byte) (summaryPage, error) {
	var response searchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return summaryPage{}, wrap.Error(err, "failed to decode search response")
	}

	if len(search.dimensions) == 0 {
		row := results.ResultRow{}
		if search.aggregate != nil {
			value, err := search.aggregateValue(response.Aggregations, response.Hits.Total.Value)
			if err != nil {
				return summaryPage{}, err
			}
			row[string(search.aggregate.Key())] = value
		}
		return summaryPage{rows: []results.ResultRow{row}}, nil
	}

	rawComposite, ok := response.Aggregations[summaryAggregationName]
	if !ok {
		return summaryPage{}, fmt.Errorf("response is missing '%s' aggregation", summaryAggregationName)
	}

	var composite compositeAggregation
	if err := decodeNumbers(rawComposite, &composite); err != nil {
		return summaryPage{}, wrap.Error(err, "failed to decode composite aggregation")
	}

	rows := make([]results.ResultRow, 0, len(composite.Buckets))
	for _, bucket := range composite.Buckets {
		row := make(results.ResultRow, len(search.dimensions)+1)
		for _, dimension := range search.dimensions {
			row[string(dimension)] = keyText(bucket.Key[string(dimension)])
		}

		if search.aggregate != nil {
			value, err := search.aggregateValue(bucket.Metrics, bucket.DocCount)
			if err != nil {
				return summaryPage{}, err
			}
			row[string(search.aggregate.Key())] = value
		}

		rows = append(rows, row)
	}

	return summaryPage{rows: rows, afterKey: composite.AfterKey}, nil
}

// Counts are read from docCount. Other metrics come from their sub-aggregation, and are nil when
// Elasticsearch has no value for them (e.g. the average of a bucket where the field is missing).
func (search summarySearch) aggregateValue(
	metrics map[string]json.RawMessage,
	docCount int64,
) (any, error) {
	if search.aggregate.Func == registry.MetricFuncCount {
		return docCount, nil
	}

	key := string(search.aggregate.Key())
	rawMetric, ok := metrics[key]
	if !ok {
		return nil, fmt.Errorf("response is missing metric aggregation '%s'", key)
	}

	var metric metricValue
	if err := json.Unmarshal(rawMetric, &metric); err != nil {
		return nil, wrap.Errorf(err, "invalid value for metric aggregation '%s'", key)
	}

	if metric.Value == nil {
		return nil, nil
	}
	return *metric.Value, nil
}

// Bucket keys are converted to strings, so that numeric dimensions such as as_of_year render the
// same as from other backends. Missing values (from missing_bucket) stay nil.
func keyText(key any) any {
	switch key := key.(type) {
	case nil:
		return nil
	case string:
		return key
	case json.Number:
		return key.String()
	case bool:
		return strconv.FormatBool(key)
	default:
		return fmt.Sprint(key)
	}
}

func decodeNumbers(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder.Decode(target)
}
