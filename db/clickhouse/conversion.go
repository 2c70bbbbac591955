package clickhouse

import (
	"hermannm.dev/enumnames"
	"hermannm.dev/summarytable/registry"
)

// See https://clickhouse.com/docs/en/sql-reference/aggregate-functions/reference
var clickhouseMetricFuncs = enumnames.NewMap(map[registry.MetricFunc]string{
	registry.MetricFuncCount:   "count",
	registry.MetricFuncMin:     "min",
	registry.MetricFuncMax:     "max",
	registry.MetricFuncAverage: "avg",
	registry.MetricFuncSum:     "sum",
})
