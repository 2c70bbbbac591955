package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"hermannm.dev/devlog/log"
	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/csv"
	"hermannm.dev/summarytable/registry"
	"hermannm.dev/summarytable/summary"
	"hermannm.dev/summarytable/xlsx"
)

type selectionRequest struct {
	Channel  clauses.Channel `json:"channel"  validate:"required"`
	Position *clauses.Slot   `json:"position" validate:"required,min=0,max=3"`
	Value    string          `json:"value"    validate:"required"`
}

type resetRequest struct {
	Channel  clauses.Channel `json:"channel"  validate:"required"`
	Position *clauses.Slot   `json:"position" validate:"required,min=0,max=3"`
}

type filtersRequest struct {
	Filters clauses.FilterState `json:"filters" validate:"required,dive,keys,required,endkeys,dive,required"`
}

type resetResponse struct {
	Released string       `json:"released"`
	View     summary.View `json:"view"`
}

// Returns:
//   - JSON-encoded summary.View of the new session, with status 201
func (api SummaryAPI) CreateSession(res http.ResponseWriter, req *http.Request) {
	session := summary.NewSession(api.config, api.registry, api.summaryDB)
	api.sessions.Add(session)

	log.Debug("created session", slog.String("sessionId", session.ID.String()))

	sendJSONWithStatus(res, http.StatusCreated, session.View())
}

// Returns:
//   - JSON-encoded summary.View
func (api SummaryAPI) GetSession(res http.ResponseWriter, req *http.Request) {
	session, ok := api.sessionFromRequest(res, req)
	if !ok {
		return
	}

	sendJSON(res, session.View())
}

func (api SummaryAPI) DeleteSession(res http.ResponseWriter, req *http.Request) {
	id, ok := parseSessionID(res, req)
	if !ok {
		return
	}

	if !api.sessions.Remove(id) {
		sendSessionNotFound(res, id)
		return
	}

	res.WriteHeader(http.StatusNoContent)
}

// Expects:
//   - body: {"channel": "select"|"group"|"both", "position": 0-3, "value": string}, where value
//     is a field ID for positions 0-2 and a metric key for position 3
//
// Returns:
//   - JSON-encoded summary.View after the summary has been refetched
func (api SummaryAPI) Select(res http.ResponseWriter, req *http.Request) {
	session, ok := api.sessionFromRequest(res, req)
	if !ok {
		return
	}

	var body selectionRequest
	if err := api.validator.decodeBody(req, &body); err != nil {
		sendClientError(res, err, "invalid selection")
		return
	}

	if err := session.Select(req.Context(), body.Channel, *body.Position, body.Value); err != nil {
		sendSelectionError(res, err, "failed to apply selection")
		return
	}

	sendJSON(res, session.View())
}

// Expects:
//   - body: {"channel": "select"|"group"|"both", "position": 0-3}
//
// Returns:
//   - JSON-encoded resetResponse, with the released value and the view after refetching
func (api SummaryAPI) Reset(res http.ResponseWriter, req *http.Request) {
	session, ok := api.sessionFromRequest(res, req)
	if !ok {
		return
	}

	var body resetRequest
	if err := api.validator.decodeBody(req, &body); err != nil {
		sendClientError(res, err, "invalid reset")
		return
	}

	released, err := session.Reset(req.Context(), body.Channel, *body.Position)
	if err != nil {
		sendSelectionError(res, err, "failed to reset selection")
		return
	}

	sendJSON(res, resetResponse{Released: released, View: session.View()})
}

// Expects:
//   - body: {"filters": {field: [values]}}, replacing all previous filters
//
// Returns:
//   - JSON-encoded summary.View. The new filters apply from the next selection or reset.
func (api SummaryAPI) SetFilters(res http.ResponseWriter, req *http.Request) {
	session, ok := api.sessionFromRequest(res, req)
	if !ok {
		return
	}

	var body filtersRequest
	if err := api.validator.decodeBody(req, &body); err != nil {
		sendClientError(res, err, "invalid filters")
		return
	}

	session.SetFilters(body.Filters)
	sendJSON(res, session.View())
}

// Expects:
//   - optional query parameter 'delimiter': one of ",", ";" (URL-encoded as %3B), "|", or a
//     name: "comma", "semicolon", "pipe", "tab" (default ",")
//
// Returns:
//   - the current summary table as a CSV attachment
func (api SummaryAPI) DownloadCSV(res http.ResponseWriter, req *http.Request) {
	session, ok := api.sessionFromRequest(res, req)
	if !ok {
		return
	}

	// Query() would silently drop pairs containing a raw ';', so a literal semicolon delimiter
	// must be sent as %3B or "semicolon"
	params, err := url.ParseQuery(req.URL.RawQuery)
	if err != nil {
		sendClientError(res, err, "invalid query parameters")
		return
	}

	delimiter, err := csv.ParseDelimiter(params.Get("delimiter"))
	if err != nil {
		sendClientError(res, err, "invalid download request")
		return
	}

	var output bytes.Buffer
	if err := session.WriteCSV(&output, delimiter); err != nil {
		sendDownloadError(res, err)
		return
	}

	sendAttachment(res, output.Bytes(), "text/csv; charset=utf-8", "summary-table.csv")
}

// Returns:
//   - The current table as an XLSX workbook, with status 200
//   - 409 if no dimension is selected
func (api SummaryAPI) DownloadXLSX(res http.ResponseWriter, req *http.Request) {
	session, ok := api.sessionFromRequest(res, req)
	if !ok {
		return
	}

	var output bytes.Buffer
	if err := session.WriteXLSX(&output); err != nil {
		sendDownloadError(res, err)
		return
	}

	sendAttachment(res, output.Bytes(), xlsx.ContentType, "summary-table.xlsx")
}

func sendDownloadError(res http.ResponseWriter, err error) {
	if errors.Is(err, summary.ErrDownloadDisabled) {
		sendError(res, http.StatusConflict, err, "")
	} else {
		sendServerError(res, err, "failed to write summary table")
	}
}

func sendAttachment(res http.ResponseWriter, body []byte, contentType string, filename string) {
	res.Header().Set("Content-Type", contentType)
	res.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	res.WriteHeader(http.StatusOK)
	res.Write(body)
}

func (api SummaryAPI) sessionFromRequest(
	res http.ResponseWriter,
	req *http.Request,
) (session *summary.Session, ok bool) {
	id, ok := parseSessionID(res, req)
	if !ok {
		return nil, false
	}

	session, ok = api.sessions.Get(id)
	if !ok {
		sendSessionNotFound(res, id)
		return nil, false
	}

	return session, true
}

func parseSessionID(res http.ResponseWriter, req *http.Request) (id uuid.UUID, ok bool) {
	rawID := chi.URLParam(req, "sessionID")

	id, err := uuid.Parse(rawID)
	if err != nil {
		sendClientError(res, err, fmt.Sprintf("invalid session ID '%s'", rawID))
		return uuid.UUID{}, false
	}

	return id, true
}

func sendSessionNotFound(res http.ResponseWriter, id uuid.UUID) {
	sendError(res, http.StatusNotFound, nil, fmt.Sprintf("no session found with ID '%s'", id))
}

// Selections that are disabled in the form conflict with the session's current state. Other
// invalid selections are client errors.
func sendSelectionError(res http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, summary.ErrSlotDisabled), errors.Is(err, summary.ErrAlreadySelected):
		sendError(res, http.StatusConflict, err, message)
	case errors.Is(err, clauses.ErrInvalidSlot),
		errors.Is(err, clauses.ErrInvalidChannel),
		errors.Is(err, clauses.ErrAggregateNotGroupable),
		errors.Is(err, summary.ErrUnknownField),
		errors.Is(err, registry.ErrUnknownMetricKey):
		sendClientError(res, err, message)
	default:
		sendServerError(res, err, message)
	}
}
