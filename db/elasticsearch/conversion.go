package elasticsearch

import (
	"hermannm.dev/enumnames"
	"hermannm.dev/summarytable/registry"
)

// Metric aggregation types for each aggregate function. COUNT() has no metric aggregation, since
// it is read from the document count of each bucket.
//
// See https://www.elastic.co/guide/en/elasticsearch/reference/current/search-aggregations-metrics.html
var elasticMetricFuncs = enumnames.NewMap(map[registry.MetricFunc]string{
	registry.MetricFuncMin:     "min",
	registry.MetricFuncMax:     "max",
	registry.MetricFuncAverage: "avg",
	registry.MetricFuncSum:     "sum",
})
