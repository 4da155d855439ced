package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/qrpay-labs/merchant-console/internal/apperror"
	"github.com/qrpay-labs/merchant-console/internal/model"
)

// ListDevices returns the full device collection in backend order.
func (c *Client) ListDevices(ctx context.Context) ([]model.Device, error) {
	var payload []wireDevice
	if err := c.call(ctx, http.MethodGet, "/devices", true, nil, &payload); err != nil {
		return nil, err
	}
	devices := make([]model.Device, 0, len(payload))
	for _, w := range payload {
		devices = append(devices, fromWire(w))
	}
	return devices, nil
}

// CreateDevice registers a new device. The returned device is informational only; callers
// re-list to obtain the authoritative collection.
func (c *Client) CreateDevice(ctx context.Context, draft model.DeviceDraft) (model.Device, error) {
	if missing := draft.MissingField(); missing != "" {
		return model.Device{}, apperror.Validation("Device " + missing + " is required.")
	}
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodPost, "/add-device", true, toWire(draft), &raw); err != nil {
		return model.Device{}, err
	}
	// the representation is not part of the contract beyond success, so a body that is not
	// a device is tolerated
	var created wireDevice
	_ = json.Unmarshal(raw, &created)
	device := fromWire(created)
	if device.Name == "" {
		device.Name = draft.Name
		device.ApplicationCode = draft.ApplicationCode
		device.SecretKey = draft.SecretKey
	}
	return device, nil
}

// UpdateDevice fully replaces the device identified by id.
func (c *Client) UpdateDevice(ctx context.Context, id model.DeviceID, draft model.DeviceDraft) error {
	if id.IsZero() {
		return apperror.Validation("No device selected.")
	}
	if missing := draft.MissingField(); missing != "" {
		return apperror.Validation("Device " + missing + " is required.")
	}
	return c.call(ctx, http.MethodPut, "/devices/"+url.PathEscape(id.String()), true, toWire(draft), nil)
}

// DeleteDevice removes the device identified by id.
func (c *Client) DeleteDevice(ctx context.Context, id model.DeviceID) error {
	if id.IsZero() {
		return apperror.Validation("No device selected.")
	}
	return c.call(ctx, http.MethodDelete, "/devices/"+url.PathEscape(id.String()), true, nil, nil)
}
