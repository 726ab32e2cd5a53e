package models

// Response is the standard API envelope. Code 0 means success; non-zero
// codes mirror the HTTP status of the failure.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
