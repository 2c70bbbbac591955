package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/registry"
	"hermannm.dev/summarytable/results"
)

const NotReported = "not reported"

var ErrResponseErrors = errors.New("response contained errors")

type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// The table shown while a request is in flight: headers for the current selections, no body.
func Empty(clauseSet clauses.ClauseSet, fieldRegistry *registry.Registry) Table {
	return Table{Headers: BuildHeaders(clauseSet, fieldRegistry), Rows: [][]string{}}
}

// Renders a normalized result set. If the result set carries errors, nothing is rendered, since a
// partial table would be misleading.
func Render(
	clauseSet clauses.ClauseSet,
	resultSet results.ResultSet,
	fieldRegistry *registry.Registry,
) (Table, error) {
	if resultSet.HasErrors() {
		return Table{}, fmt.Errorf("%w (%d errors)", ErrResponseErrors, len(resultSet.Errors))
	}

	return Table{
		Headers: BuildHeaders(clauseSet, fieldRegistry),
		Rows:    BuildRows(clauseSet, resultSet),
	}, nil
}

// One header per populated select slot, in slot order. This fixes the column order to the order
// of the form controls, regardless of the key order of the response.
func BuildHeaders(clauseSet clauses.ClauseSet, fieldRegistry *registry.Registry) []string {
	slots := clauseSet.SelectSlots()
	headers := make([]string, 0, len(slots))

	for _, slot := range slots {
		if slot.Slot == clauses.AggregateSlot {
			headers = append(headers, fieldRegistry.Label(slot.Expression))
		} else {
			headers = append(headers, registry.Title(slot.Expression))
		}
	}

	return headers
}

func BuildRows(clauseSet clauses.ClauseSet, resultSet results.ResultSet) [][]string {
	slots := clauseSet.SelectSlots()
	rows := make([][]string, 0, len(resultSet.Results))

	for _, resultRow := range resultSet.Results {
		row := make([]string, 0, len(slots))
		for _, slot := range slots {
			row = append(row, lookupCell(resultRow, slot.Expression))
		}
		rows = append(rows, row)
	}

	return rows
}

// Dimension columns are keyed by their field ID, which is the expression itself. Aggregate
// columns are keyed by metric key (e.g. "avg_loan_amount_000s") while the clause holds the API
// expression (e.g. "AVG(loan_amount_000s)"), so we fall back to the key form.
func lookupCell(resultRow results.ResultRow, expression string) string {
	if value, ok := resultRow[expression]; ok {
		return cellText(value)
	}
	if value, ok := resultRow[string(registry.ToKey(expression))]; ok {
		return cellText(value)
	}
	return NotReported
}

func cellText(value any) string {
	switch value := value.(type) {
	case nil:
		return ""
	case string:
		return value
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprint(value)
	}
}
