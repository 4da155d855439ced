// Package dashboard keeps the console's mirror of the merchant's devices and drives every
// device and QR operation against the backend.
//
// The mirror is never patched locally: each successful create, update or delete is followed
// by a full re-list, and the list read is issued only after the mutation is acknowledged.
// Every mutating action has an in-flight guard, and every request is bound to the
// controller's lifetime so Close abandons whatever is pending.
package dashboard

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/qrpay-labs/merchant-console/internal/apperror"
	"github.com/qrpay-labs/merchant-console/internal/model"
)

var (
	// ErrBusy is returned when the same action is already in flight.
	ErrBusy = errors.New("operation already in progress")
	// ErrModeConflict is returned when opening a form while another is open.
	ErrModeConflict = errors.New("another device form is already open")
	// ErrNoForm is returned by form actions while idle.
	ErrNoForm = errors.New("no device form is open")
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("dashboard closed")
	// ErrAborted is returned when a submission's form was cancelled before the reply arrived.
	ErrAborted = errors.New("operation aborted")
)

// Messages placed in the error slots when the backend supplies no detail.
const (
	MsgFetchFailed    = "Failed to fetch devices."
	MsgAddFailed      = "Failed to add device."
	MsgUpdateFailed   = "Failed to update device."
	MsgDeleteFailed   = "Failed to delete device."
	MsgGenerateFailed = "Failed to generate QR code."
	MsgSelectAmount   = "Please select a device and enter an amount."
	MsgInvalidAmount  = "Amount must be a positive number."
	MsgUnknownDevice  = "Device not found."
)

// DeviceRepository is the backend's device collection.
type DeviceRepository interface {
	ListDevices(ctx context.Context) ([]model.Device, error)
	CreateDevice(ctx context.Context, draft model.DeviceDraft) (model.Device, error)
	UpdateDevice(ctx context.Context, id model.DeviceID, draft model.DeviceDraft) error
	DeleteDevice(ctx context.Context, id model.DeviceID) error
}

// QRGenerator produces a rendered QR reference for a device and amount.
type QRGenerator interface {
	GenerateQR(ctx context.Context, deviceID model.DeviceID, amount float64) (string, error)
}

// Recorder keeps a history of generation attempts.
type Recorder interface {
	Record(ctx context.Context, entry model.QRLog) error
}

// State is a copy of everything the console renders.
type State struct {
	Devices    []model.Device    `json:"devices"`
	Mode       Mode              `json:"mode"`
	Draft      model.DeviceDraft `json:"draft"`
	SelectedID model.DeviceID    `json:"selectedId,omitempty"`
	Amount     string            `json:"amount"`
	QR         *model.QRResult   `json:"qr,omitempty"`
	Error      string            `json:"error,omitempty"`
	Loading    bool              `json:"loading"`
	Submitting bool              `json:"submitting"`
	Generating bool              `json:"generating"`
	Deleting   []model.DeviceID  `json:"deleting,omitempty"`
}

// Controller is safe for concurrent use. No lock is held across a network call.
type Controller struct {
	repo     DeviceRepository
	qr       QRGenerator
	recorder Recorder

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	devices []model.Device
	mode    Mode
	draft   model.DeviceDraft
	// formSeq changes whenever a form opens or closes; a submission whose form is gone
	// is discarded.
	formSeq    uint64
	submitting *pendingSubmit
	// selectionHeld is set once the operator picks a device or a selection is lost to a
	// refresh; from then on the first device is no longer picked automatically.
	selected      model.DeviceID
	selectionHeld bool
	amount        string
	qrResult      *model.QRResult
	generating    bool
	deleting      map[model.DeviceID]bool
	errMsg        string
	errFromFetch  bool
	fetching      int
	listSeq       uint64
	appliedSeq    uint64
}

type pendingSubmit struct {
	cancel context.CancelFunc
}

// New builds a controller whose requests live no longer than parent. recorder may be nil.
func New(parent context.Context, repo DeviceRepository, qr QRGenerator, recorder Recorder) *Controller {
	ctx, cancel := context.WithCancel(parent)
	return &Controller{
		repo:     repo,
		qr:       qr,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
		deleting: make(map[model.DeviceID]bool),
	}
}

// Close abandons every pending request. Replies that arrive afterwards are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
	if c.submitting != nil {
		c.submitting.cancel()
		c.submitting = nil
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Devices:    append([]model.Device(nil), c.devices...),
		Mode:       c.mode,
		Draft:      c.draft,
		SelectedID: c.selected,
		Amount:     c.amount,
		Error:      c.errMsg,
		Loading:    c.fetching > 0,
		Submitting: c.submitting != nil,
		Generating: c.generating,
	}
	if st.Devices == nil {
		st.Devices = []model.Device{}
	}
	if c.qrResult != nil {
		r := *c.qrResult
		st.QR = &r
	}
	for id := range c.deleting {
		st.Deleting = append(st.Deleting, id)
	}
	sort.Slice(st.Deleting, func(i, j int) bool { return st.Deleting[i] < st.Deleting[j] })
	return st
}

// Refresh replaces the mirror with the backend's list.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed() {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()
	opCtx, done := c.opContext(ctx)
	defer done()
	return c.fetch(opCtx)
}

// fetch lists and applies the result. A reply older than one already applied is ignored.
func (c *Controller) fetch(ctx context.Context) error {
	c.mu.Lock()
	c.listSeq++
	seq := c.listSeq
	c.fetching++
	c.mu.Unlock()

	devices, err := c.repo.ListDevices(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetching--
	if c.closed() {
		return ErrClosed
	}
	if err != nil {
		if !abandoned(ctx, err) {
			c.setError(apperror.Message(err, MsgFetchFailed))
			c.errFromFetch = true
		}
		return err
	}
	if seq < c.appliedSeq {
		return nil
	}
	c.appliedSeq = seq
	c.applyList(devices)
	if c.errFromFetch {
		c.setError("")
	}
	return nil
}

// applyList must be called with mu held.
func (c *Controller) applyList(devices []model.Device) {
	c.devices = append([]model.Device(nil), devices...)
	if !c.selected.IsZero() && c.indexOf(c.selected) < 0 {
		c.selected = ""
		c.selectionHeld = true
	}
	if c.selected.IsZero() && !c.selectionHeld && len(c.devices) > 0 {
		c.selected = c.devices[0].ID
	}
}

// Select chooses the device used for QR generation. An empty id clears the selection.
func (c *Controller) Select(id model.DeviceID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return ErrClosed
	}
	if !id.IsZero() && c.indexOf(id) < 0 {
		return apperror.Validation(MsgUnknownDevice)
	}
	c.selected = id
	c.selectionHeld = true
	return nil
}

// Delete removes a device and re-lists on success.
func (c *Controller) Delete(ctx context.Context, id model.DeviceID) error {
	c.mu.Lock()
	if c.closed() {
		c.mu.Unlock()
		return ErrClosed
	}
	if id.IsZero() {
		c.mu.Unlock()
		return apperror.Validation(MsgUnknownDevice)
	}
	if c.deleting[id] {
		c.mu.Unlock()
		return ErrBusy
	}
	c.deleting[id] = true
	c.setError("")
	c.mu.Unlock()

	opCtx, done := c.opContext(ctx)
	defer done()
	err := c.repo.DeleteDevice(opCtx, id)

	c.mu.Lock()
	delete(c.deleting, id)
	if c.closed() {
		c.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		// the backend's detail is not shown for deletes, an unknown id included
		if !abandoned(opCtx, err) {
			c.setError(MsgDeleteFailed)
		}
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	c.refreshAfterMutation(opCtx)
	return nil
}

// refreshAfterMutation re-lists once a mutation is acknowledged. A failed re-list only
// surfaces in the error slot; the mutation itself already succeeded.
func (c *Controller) refreshAfterMutation(ctx context.Context) {
	if err := c.fetch(ctx); err != nil && !errors.Is(err, ErrClosed) && !abandoned(ctx, err) {
		log.Printf("refresh devices after mutation: %v", err)
	}
}

// setError overwrites the single error slot. Must be called with mu held.
func (c *Controller) setError(msg string) {
	c.errMsg = msg
	c.errFromFetch = false
}

func (c *Controller) indexOf(id model.DeviceID) int {
	for i := range c.devices {
		if c.devices[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) closed() bool {
	return c.ctx.Err() != nil
}

// opContext derives a request context that ends with either the caller or the controller.
func (c *Controller) opContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// abandoned reports whether err only reflects the caller walking away.
func abandoned(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
