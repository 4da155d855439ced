package apiclient

import "github.com/qrpay-labs/merchant-console/internal/model"

// wireDevice is a device as the backend lists it.
type wireDevice struct {
	ID              model.DeviceID `json:"id"`
	DeviceName      string         `json:"device_name"`
	ApplicationCode string         `json:"application_code"`
	SecretKey       string         `json:"secret_key"`
}

// wireDeviceWrite is the create/update body.
type wireDeviceWrite struct {
	Name            string `json:"name"`
	ApplicationCode string `json:"application_code"`
	SecretKey       string `json:"secret_key"`
}

// fromWire is the only place device_name becomes Name.
func fromWire(w wireDevice) model.Device {
	return model.Device{
		ID:              w.ID,
		Name:            w.DeviceName,
		ApplicationCode: w.ApplicationCode,
		SecretKey:       w.SecretKey,
	}
}

// toWire is the only place a draft becomes a request body.
func toWire(d model.DeviceDraft) wireDeviceWrite {
	return wireDeviceWrite{
		Name:            d.Name,
		ApplicationCode: d.ApplicationCode,
		SecretKey:       d.SecretKey,
	}
}
