package api

import (
	"net/http"

	"hermannm.dev/summarytable/registry"
)

type fieldResponse struct {
	ID    registry.FieldID `json:"id"`
	Title string           `json:"title"`
}

// Returns:
//   - JSON-encoded list of the fields that may be picked as dimensions, with display titles
func (api SummaryAPI) ListFields(res http.ResponseWriter, req *http.Request) {
	fields := api.registry.Fields()

	response := make([]fieldResponse, 0, len(fields))
	for _, field := range fields {
		response = append(response, fieldResponse{ID: field, Title: registry.Title(string(field))})
	}

	sendJSON(res, response)
}

// Returns:
//   - JSON-encoded list of registry.MetricDef, the options of the calculate-by control
func (api SummaryAPI) ListMetrics(res http.ResponseWriter, req *http.Request) {
	sendJSON(res, api.registry.Metrics())
}
