package model

import "time"

// QRResult is the outcome of the most recent generation attempt. Each attempt replaces it.
type QRResult struct {
	DeviceID       DeviceID `json:"deviceId"`
	Amount         float64  `json:"amount"`
	ImageReference string   `json:"imageReference,omitempty"`
	ErrorMessage   string   `json:"errorMessage,omitempty"`
}

// Succeeded reports whether the attempt produced an image reference.
func (r QRResult) Succeeded() bool {
	return r.ImageReference != "" && r.ErrorMessage == ""
}

const (
	QRStatusSuccess = "SUCCESS"
	QRStatusFailed  = "FAILED"
)

// QRLog tracks each generation attempt in the local history.
type QRLog struct {
	ID             uint64    `json:"id"`
	DeviceID       DeviceID  `json:"deviceId"`
	DeviceName     string    `json:"deviceName"`
	Amount         float64   `json:"amount"`
	ImageReference string    `json:"imageReference,omitempty"`
	Message        string    `json:"message,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// QRLogFilter describes query parameters for history searching.
type QRLogFilter struct {
	DeviceID  DeviceID
	Status    string
	BeginTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}
