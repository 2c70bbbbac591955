package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"hermannm.dev/summarytable/registry"
)

const (
	NotAvailable      = "data not available"
	DataFormatMessage = "Data format error! A non-positive numerical value found in original data: "
	CurrencySymbol    = "$"
)

var ErrDataFormat = errors.New("data format error")

// Formats metric columns of result sets for display. Dimension columns are passed through as
// received.
type Normalizer struct {
	registry *registry.Registry
	language language.Tag
}

func NewNormalizer(registry *registry.Registry) Normalizer {
	return Normalizer{registry: registry, language: language.AmericanEnglish}
}

// Returns a copy of the result set with every metric value replaced by its display string. Values
// that fail the data format check are replaced by an error message in the cell, and reported in
// formatErrs; they never abort normalization.
func (normalizer Normalizer) Normalize(
	resultSet ResultSet,
) (normalized ResultSet, formatErrs []error) {
	normalized = resultSet.Clone()

	for rowIndex, row := range normalized.Results {
		for column, value := range row {
			if !normalizer.registry.IsMetricKey(column) {
				continue
			}

			formatted, err := normalizer.FormatMetricValue(registry.MetricKey(column), value)
			if err != nil {
				formatErrs = append(
					formatErrs, fmt.Errorf("row %d, column '%s': %w", rowIndex, column, err),
				)
			}
			row[column] = formatted
		}
	}

	return normalized, formatErrs
}

// Metric values arrive in thousands (loan amounts and incomes in the HMDA data), except for
// counts. So counts are formatted as "1,234", and other metrics are scaled and formatted as
// whole dollars, e.g. 23.523 -> "$23,523".
func (normalizer Normalizer) FormatMetricValue(
	metric registry.MetricKey,
	value any,
) (string, error) {
	number, ok := toNumber(value)
	if !ok {
		return NotAvailable, nil
	}

	if number < 0 {
		formattedNumber := strconv.FormatFloat(number, 'f', -1, 64)
		return DataFormatMessage + formattedNumber, fmt.Errorf(
			"%w: negative value %s", ErrDataFormat, formattedNumber,
		)
	}

	printer := message.NewPrinter(normalizer.language)

	if metric == registry.CountMetric {
		return formatWholeNumber(printer, number), nil
	}

	return CurrencySymbol + formatWholeNumber(printer, number*1000), nil
}

// Rounds to a whole number with digit grouping. Values too large for int64 are formatted as
// floats, which the printer groups the same way.
func formatWholeNumber(printer *message.Printer, number float64) string {
	rounded := math.Round(number)
	if rounded >= math.MaxInt64 {
		return printer.Sprintf("%.0f", rounded)
	}
	return printer.Sprintf("%d", int64(rounded))
}

func toNumber(value any) (number float64, ok bool) {
	switch value := value.(type) {
	case json.Number:
		number, err := value.Float64()
		if err != nil {
			return 0, false
		}
		return checkFinite(number)
	case float64:
		return checkFinite(value)
	case float32:
		return checkFinite(float64(value))
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case uint64:
		return float64(value), true
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return 0, false
		}
		number, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return checkFinite(number)
	default:
		return 0, false
	}
}

func checkFinite(number float64) (float64, bool) {
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, false
	}
	return number, true
}
