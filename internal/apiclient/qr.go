package apiclient

import (
	"context"
	"net/http"

	"github.com/qrpay-labs/merchant-console/internal/apperror"
	"github.com/qrpay-labs/merchant-console/internal/model"
)

type generateQRRequest struct {
	Amount   float64        `json:"amount"`
	DeviceID model.DeviceID `json:"device_id"`
}

type generateQRResponse struct {
	QRURL string `json:"qr_url"`
}

// GenerateQR asks the backend for a payment QR for amount on the given device and returns
// the rendered image reference.
func (c *Client) GenerateQR(ctx context.Context, deviceID model.DeviceID, amount float64) (string, error) {
	if deviceID.IsZero() || amount <= 0 {
		return "", apperror.Validation("Please select a device and enter an amount.")
	}
	var resp generateQRResponse
	if err := c.call(ctx, http.MethodPost, "/generate-qr", true, generateQRRequest{Amount: amount, DeviceID: deviceID}, &resp); err != nil {
		return "", err
	}
	if resp.QRURL == "" {
		return "", apperror.Server(http.StatusOK, "")
	}
	return resp.QRURL, nil
}
