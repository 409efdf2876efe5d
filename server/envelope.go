package server

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in failure envelopes.
const (
	CodeServerBusy          = "server_busy"
	CodeUnauthorized        = "unauthorized"
	CodeWeakKey             = "weak_key"
	CodeSheetNotFound       = "sheet_not_found"
	CodeRowIndexInvalid     = "row_index_invalid"
	CodeRowIDMissing        = "row_id_missing"
	CodeRowNotFound         = "row_not_found"
	CodeUnknownMethod       = "unknown_method"
	CodeInvalidLimit        = "invalid_limit"
	CodeStartIDOutOfRange   = "start_id_out_of_range"
	CodeInvalidPayload      = "invalid_payload"
	CodeIDColumnNotFound    = "id_column_not_found"
	CodeIDMissing           = "id_missing"
	CodePayloadMustBeArray  = "payload_must_be_array"
	CodeColumnNameMissing   = "column_name_missing"
	CodeColumnExists        = "column_exists"
	CodeColumnNotFound      = "column_not_found"
	CodeNoMatchesFound      = "no_matches_found"
	CodeInvalidIDs          = "invalid_ids"
	CodeSortColumnNotFound  = "sort_column_not_found"
	CodeInvalidFormat       = "invalid_format"
	CodeInvalidOperation    = "invalid_operation"
	CodeInvalidColumn       = "invalid_column"
	CodeInvalidRange        = "invalid_range"
	CodeInvalidCursor       = "invalid_cursor"
	CodeInvalidData         = "invalid_data"
	CodeUpdateFailed        = "update_failed"
	CodeCSVFetchFailed      = "csv_fetch_failed"
	CodeCSVProcessingFailed = "csv_processing_failed"
	CodeInvalidPostPayload  = "invalid_post_payload"
	CodeHostError           = "host_error"
	CodeInternalError       = "internal_error"
)

// Details describe a failure.
type Details map[string]any

// Error is the error part of a failure envelope.
type Error struct {
	Code    string  `json:"code"`
	Details Details `json:"details,omitempty"`
}

// Response is the envelope every request produces: {status, data} plus
// method-specific extras on success, {status, error} on failure.
type Response struct {
	Status int
	Data   any
	Error  *Error
	// Extra fields are merged into the top level of the envelope.
	Extra map[string]any
}

func (r *Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+2)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["status"] = r.Status
	if r.Error != nil {
		out["error"] = r.Error
	} else if r.Data != nil {
		out["data"] = r.Data
	}
	return json.Marshal(out)
}

// OK reports whether the envelope is a success.
func (r *Response) OK() bool {
	return r.Error == nil
}

func respond(status int, data any) *Response {
	return &Response{Status: status, Data: data}
}

func respondWith(status int, data any, extra map[string]any) *Response {
	return &Response{Status: status, Data: data, Extra: extra}
}

func message(status int, msg string) *Response {
	return respond(status, map[string]any{"message": msg})
}

func failure(status int, code string, details Details) *Response {
	return &Response{Status: status, Error: &Error{Code: code, Details: details}}
}

func badRequest(code string, details Details) *Response {
	return failure(http.StatusBadRequest, code, details)
}

func notFound(code string, details Details) *Response {
	return failure(http.StatusNotFound, code, details)
}
