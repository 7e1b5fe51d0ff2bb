// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response", "error", err)
	}
}

// writeError maps a structured error onto an HTTP status and JSON body.
// Callers always get a code and kind they can branch on.
func writeError(w http.ResponseWriter, err error) {
	status := rderr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(rderr.CodeOf(err)),
		Kind:    string(rderr.KindOf(err)),
		Message: err.Error(),
	}})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return rderr.Wrap(err, rderr.CodeServerRequestInvalid, "invalid request body")
	}
	return nil
}
