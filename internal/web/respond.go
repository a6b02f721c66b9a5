// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type invalidField struct {
	Name string `json:"name"`
	Rule string `json:"rule"`
}

// response is the envelope of every JSON reply.
type response struct {
	Error   bool           `json:"error"`
	ErrorID string         `json:"errorId,omitempty"`
	Fields  []invalidField `json:"fields,omitempty"`
	Body    any            `json:"body,omitempty"`
}

// decodeBody reads a JSON body into T and validates it. The returned fields
// are non-empty when validation rejected the value.
func decodeBody[T any](w http.ResponseWriter, r *http.Request) (T, []invalidField, error) {
	var obj T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&obj); err != nil {
		return obj, nil, oops.Code("REQUEST_MALFORMED").Wrap(err)
	}
	if dec.More() {
		return obj, nil, oops.Code("REQUEST_MALFORMED").Errorf("trailing data after JSON body")
	}
	return obj, findInvalidFields(obj), nil
}

func findInvalidFields(obj any) []invalidField {
	err := validate.Struct(obj)
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return nil
	}
	fields := make([]invalidField, len(vErrs))
	for i, e := range vErrs {
		fields[i] = invalidField{Name: e.Field(), Rule: e.Tag()}
	}
	return fields
}

func respond(w http.ResponseWriter, status int, body any) {
	writeJSON(w, status, response{Body: body})
}

func respondError(w http.ResponseWriter, status int, errorID string) {
	writeJSON(w, status, response{Error: true, ErrorID: errorID})
}

func respondInvalid(w http.ResponseWriter, fields []invalidField) {
	writeJSON(w, http.StatusBadRequest, response{Error: true, ErrorID: "invalid_fields", Fields: fields})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(v)
}

