package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type FieldID string

type MetricKey string

type MetricDef struct {
	Key           MetricKey `json:"key"`
	APIExpression string    `json:"apiExpression"`
	HumanLabel    string    `json:"humanLabel"`
}

var ErrUnknownMetricKey = errors.New("unknown metric key")

// Immutable after construction, and therefore safe to share between sessions.
type Registry struct {
	fields      []FieldID
	metrics     []MetricDef
	metricsByID map[MetricKey]MetricDef
}

func New(fields []FieldID, metrics []MetricDef) (*Registry, error) {
	registry := &Registry{
		fields:      slices.Clone(fields),
		metrics:     slices.Clone(metrics),
		metricsByID: make(map[MetricKey]MetricDef, len(metrics)),
	}

	var errs []error
	for _, metric := range metrics {
		if _, duplicate := registry.metricsByID[metric.Key]; duplicate {
			errs = append(errs, fmt.Errorf("duplicate metric key '%s'", metric.Key))
			continue
		}
		if key := ToKey(metric.APIExpression); key != metric.Key {
			errs = append(errs, fmt.Errorf(
				"API expression '%s' resolves to key '%s', expected '%s'",
				metric.APIExpression,
				key,
				metric.Key,
			))
			continue
		}
		registry.metricsByID[metric.Key] = metric
	}

	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}

	return registry, nil
}

func (registry *Registry) Fields() []FieldID {
	return slices.Clone(registry.fields)
}

func (registry *Registry) Metrics() []MetricDef {
	return slices.Clone(registry.metrics)
}

func (registry *Registry) HasField(field FieldID) bool {
	return slices.Contains(registry.fields, field)
}

func (registry *Registry) Metric(key MetricKey) (metric MetricDef, ok bool) {
	metric, ok = registry.metricsByID[key]
	return metric, ok
}

func (registry *Registry) IsMetricKey(column string) bool {
	_, ok := registry.metricsByID[MetricKey(column)]
	return ok
}

// Looks up the API expression for a metric key, as selected in the calculate-by control.
func (registry *Registry) ExpressionForKey(key MetricKey) (string, error) {
	metric, ok := registry.metricsByID[key]
	if !ok {
		return "", fmt.Errorf("%w '%s'", ErrUnknownMetricKey, key)
	}
	return metric.APIExpression, nil
}

// Converts an API expression to its metric key form, by splitting on parentheses, dropping empty
// parts and joining the rest with underscores:
//   - "AVG(applicant_income_000s)" -> "avg_applicant_income_000s"
//   - "COUNT()" -> "count"
//   - "state_name" -> "state_name"
func ToKey(expression string) MetricKey {
	parts := strings.FieldsFunc(expression, func(char rune) bool {
		return char == '(' || char == ')'
	})
	return MetricKey(strings.ToLower(strings.Join(parts, "_")))
}

// Returns the human label of the metric the expression resolves to, or the title-cased
// expression if it is not a known metric (as for plain dimension fields).
func (registry *Registry) Label(expression string) string {
	if metric, ok := registry.metricsByID[ToKey(expression)]; ok {
		return metric.HumanLabel
	}
	return Title(expression)
}

// Turns a field name into a display title, e.g. "state_name" -> "State Name".
func Title(field string) string {
	// A cases.Caser keeps state between calls, so it cannot be shared between goroutines
	return cases.Title(language.English).String(strings.ReplaceAll(field, "_", " "))
}
