// Package handler provides the HTTP handlers of the ragserve service.
package handler

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func success(data interface{}) SuccessResponse {
	return SuccessResponse{Code: 0, Message: "success", Data: data}
}
