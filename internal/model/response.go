package model

// BasicResponse is the console API's success envelope.
type BasicResponse struct {
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// ErrorResponse mirrors the backend's error shape so one decoder handles both.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Auth   bool   `json:"auth,omitempty"`
}

// Success wraps data with a message.
func Success(msg string, data any) BasicResponse {
	return BasicResponse{
		Msg:  msg,
		Data: data,
	}
}

// Error returns an ErrorResponse with the given detail.
func Error(detail string) ErrorResponse {
	return ErrorResponse{Detail: detail}
}

// AuthError marks the response as a rejected credential.
func AuthError(detail string) ErrorResponse {
	return ErrorResponse{Detail: detail, Auth: true}
}
