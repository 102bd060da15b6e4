package response

import (
	"encoding/json"
	"io"
	"net/http"
)

// DecodeJSON decodes the request body into v and closes it.
func DecodeJSON(body io.ReadCloser, v interface{}) error {
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// Response is the envelope used by auth and admin endpoints.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Meta describes an offset page of a listing.
type Meta struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasNext bool `json:"hasNext"`
}

// NewMeta builds the page metadata for count items returned at offset.
func NewMeta(total, limit, offset, count int) Meta {
	return Meta{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasNext: offset+count < total,
	}
}

func write(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// JSON sends data inside the envelope; success follows the status class.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WithMeta sends a page of data with its metadata.
func WithMeta(w http.ResponseWriter, data interface{}, meta Meta) {
	write(w, http.StatusOK, Response{Success: true, Data: data, Meta: &meta})
}

// Error sends an enveloped error with a machine readable code.
func Error(w http.ResponseWriter, status int, code, message string) {
	write(w, status, Response{Error: &ErrorInfo{Code: code, Message: message}})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, "FORBIDDEN", message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "NOT_FOUND", message)
}

func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, "CONFLICT", message)
}

// ValidationError sends 422 with per-field messages.
func ValidationError(w http.ResponseWriter, details map[string]string) {
	write(w, http.StatusUnprocessableEntity, Response{Error: &ErrorInfo{
		Code:    "VALIDATION_ERROR",
		Message: "Validation failed",
		Details: details,
	}})
}

func InternalError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
}

// Raw writes v as the whole body, without the envelope. The referral
// endpoints answer in this flat shape.
func Raw(w http.ResponseWriter, status int, v interface{}) {
	write(w, status, v)
}

// RawError writes {"error": message} without the envelope.
func RawError(w http.ResponseWriter, status int, message string) {
	Raw(w, status, map[string]string{"error": message})
}
