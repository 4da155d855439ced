package dashboard

import (
	"context"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/qrpay-labs/merchant-console/internal/apperror"
	"github.com/qrpay-labs/merchant-console/internal/model"
)

// SetAmount stores the amount as typed; it is parsed when a QR is generated.
func (c *Controller) SetAmount(amount string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.amount = amount
}

// ParseAmount accepts a present, finite, positive decimal.
func ParseAmount(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, apperror.Validation(MsgSelectAmount)
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, apperror.Validation(MsgInvalidAmount)
	}
	return amount, nil
}

// Generate requests a QR for the selected device and current amount. Each attempt replaces
// the previous result. Validation failures are reported in the result without a request.
// Only one generation runs at a time.
func (c *Controller) Generate(ctx context.Context) (model.QRResult, error) {
	c.mu.Lock()
	if c.closed() {
		c.mu.Unlock()
		return model.QRResult{}, ErrClosed
	}
	if c.generating {
		c.mu.Unlock()
		return model.QRResult{}, ErrBusy
	}
	id := c.selected
	var (
		amount float64
		err    error
	)
	if id.IsZero() {
		err = apperror.Validation(MsgSelectAmount)
	} else {
		amount, err = ParseAmount(c.amount)
	}
	if err != nil {
		result := model.QRResult{DeviceID: id, ErrorMessage: apperror.Message(err, MsgSelectAmount)}
		c.qrResult = &result
		c.mu.Unlock()
		return result, err
	}
	name := ""
	if i := c.indexOf(id); i >= 0 {
		name = c.devices[i].Name
	}
	c.generating = true
	c.qrResult = &model.QRResult{DeviceID: id, Amount: amount}
	c.mu.Unlock()

	opCtx, done := c.opContext(ctx)
	defer done()
	ref, err := c.qr.GenerateQR(opCtx, id, amount)

	c.mu.Lock()
	c.generating = false
	if c.closed() {
		c.mu.Unlock()
		return model.QRResult{}, ErrClosed
	}
	result := model.QRResult{DeviceID: id, Amount: amount}
	if err != nil {
		if abandoned(opCtx, err) {
			c.qrResult = nil
			c.mu.Unlock()
			return model.QRResult{}, err
		}
		result.ErrorMessage = apperror.Message(err, MsgGenerateFailed)
	} else {
		result.ImageReference = ref
	}
	c.qrResult = &result
	c.mu.Unlock()

	c.record(opCtx, result, name)
	return result, err
}

func (c *Controller) record(ctx context.Context, result model.QRResult, name string) {
	if c.recorder == nil {
		return
	}
	entry := model.QRLog{
		DeviceID:       result.DeviceID,
		DeviceName:     name,
		Amount:         result.Amount,
		ImageReference: result.ImageReference,
		Message:        result.ErrorMessage,
		Status:         model.QRStatusSuccess,
	}
	if !result.Succeeded() {
		entry.Status = model.QRStatusFailed
	}
	if err := c.recorder.Record(ctx, entry); err != nil {
		log.Printf("record qr generation: %v", err)
	}
}
