package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"hermannm.dev/devlog/log"
	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/db"
	"hermannm.dev/summarytable/registry"
	"hermannm.dev/summarytable/results"
	"hermannm.dev/wrap"
)

func (clickhouse ClickHouseDB) FetchSummary(
	ctx context.Context,
	query clauses.QueryParams,
) (results.ResultSet, error) {
	summaryQuery, err := buildSummaryQuery(query, clickhouse.table, clickhouse.maxRows)
	if err != nil {
		return results.ResultSet{}, wrap.Error(err, "failed to build summary query")
	}

	log.Debug(
		"generated clickhouse query",
		slog.String("query", summaryQuery.sql),
		slog.Any("args", summaryQuery.args),
	)

	rows, err := clickhouse.conn.Query(ctx, summaryQuery.sql, summaryQuery.args...)
	if err != nil {
		return results.ResultSet{}, wrap.Error(err, "failed to execute summary query against ClickHouse")
	}
	defer rows.Close()

	resultSet, err := parseSummaryRows(rows, summaryQuery.columns)
	if err != nil {
		return results.ResultSet{}, wrap.Error(err, "failed to parse summary query result")
	}

	return resultSet, nil
}

type summaryQuery struct {
	sql  string
	args []any
	// Result row keys, in select order.
	columns []summaryColumn
}

type summaryColumn struct {
	key         string
	isAggregate bool
}

// Builds a grouped aggregation of the form:
//
//	SELECT ifNull(toString(`state_name`), '') AS `state_name`,
//	       CAST(avg(`loan_amount_000s`) AS Nullable(Float64)) AS `avg_loan_amount_000s`
//	FROM `hmda_lar`
//	WHERE toString(`as_of_year`) IN (?)
//	GROUP BY `state_name`
//	ORDER BY `state_name`
//	LIMIT 10000
//
// Filter values are passed as bind arguments. A query with no dimensions aggregates the whole
// table into a single row.
func buildSummaryQuery(query clauses.QueryParams, table string, maxRows int) (summaryQuery, error) {
	if query.Clauses.IsEmpty() {
		return summaryQuery{}, db.ErrEmptyQuery
	}
	if maxRows <= 0 {
		return summaryQuery{}, errors.New("row limit must be positive")
	}

	dimensions := query.GroupFields()
	dimensionNames := make([]string, 0, len(dimensions))
	for _, dimension := range dimensions {
		dimensionNames = append(dimensionNames, string(dimension))
	}

	if err := ValidateIdentifier(table); err != nil {
		return summaryQuery{}, wrap.Error(err, "invalid table name")
	}
	if err := ValidateIdentifiers(dimensionNames...); err != nil {
		return summaryQuery{}, wrap.Error(err, "invalid dimension in query")
	}

	var aggregate *registry.Aggregate
	if expression, filled := query.Clauses.Aggregate(); filled {
		parsed, ok := registry.ParseExpression(expression)
		if !ok {
			return summaryQuery{}, fmt.Errorf("unrecognized aggregate expression '%s'", expression)
		}
		if parsed.Field != "" {
			if err := ValidateIdentifier(string(parsed.Field)); err != nil {
				return summaryQuery{}, wrap.Error(err, "invalid aggregate field")
			}
		}
		aggregate = &parsed
	}

	var builder QueryBuilder
	columns := make([]summaryColumn, 0, clauses.SlotCount)

	builder.WriteString("SELECT ")
	for i, dimension := range dimensions {
		if i != 0 {
			builder.WriteString(", ")
		}
		builder.WriteDimension(dimension)
		builder.WriteString(" AS ")
		builder.WriteIdentifier(string(dimension))
		columns = append(columns, summaryColumn{key: string(dimension)})
	}
	if aggregate != nil {
		if len(dimensions) != 0 {
			builder.WriteString(", ")
		}
		if err := builder.WriteAggregate(*aggregate); err != nil {
			return summaryQuery{}, err
		}
		builder.WriteString(" AS ")
		builder.WriteIdentifier(string(aggregate.Key()))
		columns = append(columns, summaryColumn{key: string(aggregate.Key()), isAggregate: true})
	}

	builder.WriteString(" FROM ")
	builder.WriteIdentifier(table)

	args, err := builder.WriteWhere(query.Where)
	if err != nil {
		return summaryQuery{}, err
	}

	if len(dimensions) != 0 {
		builder.WriteString(" GROUP BY ")
		builder.writeIdentifierList(dimensionNames)
		builder.WriteString(" ORDER BY ")
		builder.writeIdentifierList(dimensionNames)
	}

	builder.WriteString(" LIMIT ")
	builder.WriteInt(maxRows)

	return summaryQuery{sql: builder.String(), args: args, columns: columns}, nil
}

// Filter fields are joined with AND, and each field matches any of its values. Values are
// compared as strings, like the dimension columns.
func (builder *QueryBuilder) WriteWhere(filters clauses.FilterState) (args []any, err error) {
	first := true
	for _, field := range filters.SortedFields() {
		values := filters[field]
		if len(values) == 0 {
			continue
		}
		if err := ValidateIdentifier(field); err != nil {
			return nil, wrap.Error(err, "invalid filter field")
		}

		if first {
			builder.WriteString(" WHERE ")
			first = false
		} else {
			builder.WriteString(" AND ")
		}

		builder.WriteString("toString(")
		builder.WriteIdentifier(field)
		builder.WriteString(") IN ")
		builder.WritePlaceholders(len(values))

		for _, value := range values {
			args = append(args, value)
		}
	}

	return args, nil
}

func (builder *QueryBuilder) writeIdentifierList(identifiers []string) {
	for i, identifier := range identifiers {
		if i != 0 {
			builder.WriteString(", ")
		}
		builder.WriteIdentifier(identifier)
	}
}

func parseSummaryRows(rows driver.Rows, columns []summaryColumn) (results.ResultSet, error) {
	resultSet := results.ResultSet{Results: []results.ResultRow{}}

	for rows.Next() {
		destinations := make([]any, len(columns))
		for i, column := range columns {
			if column.isAggregate {
				destinations[i] = new(*float64)
			} else {
				destinations[i] = new(string)
			}
		}

		if err := rows.Scan(destinations...); err != nil {
			return results.ResultSet{}, wrap.Error(err, "failed to scan result row")
		}

		resultSet.Results = append(resultSet.Results, toResultRow(destinations, columns))
	}

	if err := rows.Err(); err != nil {
		return results.ResultSet{}, wrap.Error(err, "failed to read result rows")
	}

	return resultSet, nil
}

func toResultRow(scanned []any, columns []summaryColumn) results.ResultRow {
	row := make(results.ResultRow, len(columns))

	for i, column := range columns {
		switch value := scanned[i].(type) {
		case *string:
			row[column.key] = *value
		case **float64:
			if *value == nil {
				row[column.key] = nil
			} else {
				row[column.key] = **value
			}
		}
	}

	return row
}
