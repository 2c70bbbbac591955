package registry

import (
	"strings"

	"hermannm.dev/enumnames"
)

type MetricFunc uint8

const (
	MetricFuncCount MetricFunc = iota + 1
	MetricFuncMin
	MetricFuncMax
	MetricFuncAverage
	MetricFuncSum
)

var metricFuncNames = enumnames.NewMap(map[MetricFunc]string{
	MetricFuncCount:   "COUNT",
	MetricFuncMin:     "MIN",
	MetricFuncMax:     "MAX",
	MetricFuncAverage: "AVG",
	MetricFuncSum:     "SUM",
})

func (metricFunc MetricFunc) IsValid() bool {
	return metricFuncNames.ContainsEnumValue(metricFunc)
}

func (metricFunc MetricFunc) String() string {
	return metricFuncNames.GetNameOrFallback(metricFunc, "INVALID_METRIC_FUNC")
}

func (metricFunc MetricFunc) MarshalJSON() ([]byte, error) {
	return metricFuncNames.MarshalToNameJSON(metricFunc)
}

func (metricFunc *MetricFunc) UnmarshalJSON(bytes []byte) error {
	return metricFuncNames.UnmarshalFromNameJSON(bytes, metricFunc)
}

func parseMetricFunc(name string) (metricFunc MetricFunc, ok bool) {
	return metricFuncNames.EnumValueFromName(strings.ToUpper(strings.TrimSpace(name)))
}

// An aggregate function applied to a field, as parsed from an API expression such as
// "AVG(loan_amount_000s)". Field is blank for COUNT().
type Aggregate struct {
	Func  MetricFunc
	Field FieldID
}

// Parses an API expression of the form FUNC(field) or FUNC(). Returns ok=false if the expression
// is not an aggregate, e.g. a plain dimension field name.
func ParseExpression(expression string) (aggregate Aggregate, ok bool) {
	open := strings.IndexRune(expression, '(')
	if open <= 0 || !strings.HasSuffix(expression, ")") {
		return Aggregate{}, false
	}

	metricFunc, ok := parseMetricFunc(expression[:open])
	if !ok {
		return Aggregate{}, false
	}

	field := strings.TrimSpace(expression[open+1 : len(expression)-1])
	if field == "" && metricFunc != MetricFuncCount {
		return Aggregate{}, false
	}

	return Aggregate{Func: metricFunc, Field: FieldID(field)}, true
}

func (aggregate Aggregate) Expression() string {
	return aggregate.Func.String() + "(" + string(aggregate.Field) + ")"
}

func (aggregate Aggregate) Key() MetricKey {
	return ToKey(aggregate.Expression())
}
