package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DeviceID is the backend-assigned identity of a device. The backend may emit it as a
// JSON number or a string; both decode to the same value.
type DeviceID string

// IsZero reports whether the id is unset.
func (id DeviceID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

func (id DeviceID) String() string {
	return string(id)
}

// MarshalJSON emits numeric ids as JSON numbers so they round-trip with the backend.
func (id DeviceID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts both number and string forms.
func (id *DeviceID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = DeviceID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("device id: %w", err)
	}
	*id = DeviceID(n.String())
	return nil
}

// Device is the console's view of a merchant QR-issuing credential set.
type Device struct {
	ID              DeviceID `json:"id"`
	Name            string   `json:"name"`
	ApplicationCode string   `json:"applicationCode"`
	SecretKey       string   `json:"secretKey"`
}

// DeviceDraft is the transient Add/Edit form state. ID is only set while editing.
type DeviceDraft struct {
	ID              DeviceID `json:"id,omitempty"`
	Name            string   `json:"name"`
	ApplicationCode string   `json:"applicationCode"`
	SecretKey       string   `json:"secretKey"`
}

// DraftFrom pre-populates an edit draft from an existing device.
func DraftFrom(d Device) DeviceDraft {
	return DeviceDraft{
		ID:              d.ID,
		Name:            d.Name,
		ApplicationCode: d.ApplicationCode,
		SecretKey:       d.SecretKey,
	}
}

// MissingField returns the label of the first empty required field, or "".
func (d DeviceDraft) MissingField() string {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return "name"
	case strings.TrimSpace(d.ApplicationCode) == "":
		return "application code"
	case strings.TrimSpace(d.SecretKey) == "":
		return "secret key"
	}
	return ""
}

// IsEmpty reports whether no field of the draft has been filled.
func (d DeviceDraft) IsEmpty() bool {
	return d == DeviceDraft{}
}
