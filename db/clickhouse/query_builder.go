package clickhouse

import (
	"fmt"
	"strconv"
	"strings"

	"hermannm.dev/summarytable/registry"
)

type QueryBuilder struct {
	strings.Builder
}

func (builder *QueryBuilder) WriteInt(i int) {
	builder.WriteString(strconv.Itoa(i))
}

// Must only be called after calling ValidateIdentifier/ValidateIdentifiers on the given identifier.
func (builder *QueryBuilder) WriteIdentifier(identifier string) {
	builder.WriteRune('`')
	builder.WriteString(identifier)
	builder.WriteRune('`')
}

// Writes a dimension column as a non-null string, so that every dimension scans the same way
// regardless of its column type. Nulls become blank cells.
func (builder *QueryBuilder) WriteDimension(field registry.FieldID) {
	builder.WriteString("ifNull(toString(")
	builder.WriteIdentifier(string(field))
	builder.WriteString("), '')")
}

// Writes the aggregate cast to Nullable(Float64), since min/max/avg over an empty group or an
// all-null column give null rather than a number.
func (builder *QueryBuilder) WriteAggregate(aggregate registry.Aggregate) error {
	function, ok := clickhouseMetricFuncs.GetName(aggregate.Func)
	if !ok {
		return fmt.Errorf("unsupported aggregate function '%s'", aggregate.Func)
	}

	builder.WriteString("CAST(")
	builder.WriteString(function)
	builder.WriteRune('(')
	if aggregate.Field != "" {
		builder.WriteIdentifier(string(aggregate.Field))
	}
	builder.WriteString(") AS Nullable(Float64))")
	return nil
}

// Writes placeholders for an IN list, e.g. "(?, ?, ?)".
func (builder *QueryBuilder) WritePlaceholders(count int) {
	builder.WriteRune('(')
	for i := 0; i < count; i++ {
		if i != 0 {
			builder.WriteString(", ")
		}
		builder.WriteRune('?')
	}
	builder.WriteRune(')')
}

func ValidateIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("identifier is blank")
	}
	if strings.ContainsRune(identifier, '`') {
		return fmt.Errorf("'%s' contains `, which is incompatible with database", identifier)
	}

	return nil
}

func ValidateIdentifiers(identifiers ...string) error {
	for _, identifier := range identifiers {
		if err := ValidateIdentifier(identifier); err != nil {
			return err
		}
	}

	return nil
}
