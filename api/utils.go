package api

import (
	"encoding/json"
	"net/http"

	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

type errorResponse struct {
	Error string `json:"error"`
}

func sendClientError(res http.ResponseWriter, err error, message string) {
	sendError(res, http.StatusBadRequest, err, message)
}

func sendServerError(res http.ResponseWriter, err error, message string) {
	log.ErrorCause(err, message)
	sendError(res, http.StatusInternalServerError, err, message)
}

func sendError(res http.ResponseWriter, statusCode int, err error, message string) {
	if err != nil {
		if message == "" {
			message = err.Error()
		} else {
			message = wrap.Error(err, message).Error()
		}
	}

	sendJSONWithStatus(res, statusCode, errorResponse{Error: message})
}

func sendJSON(res http.ResponseWriter, value any) {
	sendJSONWithStatus(res, http.StatusOK, value)
}

func sendJSONWithStatus(res http.ResponseWriter, statusCode int, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		log.ErrorCause(err, "failed to serialize response")
		http.Error(res, "failed to serialize response", http.StatusInternalServerError)
		return
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(statusCode)
	res.Write(body)
}
