package model

import "strings"

// DeviceView hides the secret key when listing devices to clients.
type DeviceView struct {
	ID              DeviceID `json:"id"`
	Name            string   `json:"name"`
	ApplicationCode string   `json:"applicationCode"`
	SecretKey       string   `json:"secretKey"`
}

// ViewOf masks a device for display.
func ViewOf(d Device) DeviceView {
	return DeviceView{
		ID:              d.ID,
		Name:            d.Name,
		ApplicationCode: d.ApplicationCode,
		SecretKey:       MaskValue(d.SecretKey),
	}
}

// MaskValue keeps the first four runes and stars out the rest.
func MaskValue(value string) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= 4 {
		return value
	}
	return string(runes[:4]) + strings.Repeat("*", len(runes)-4)
}
