package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/qrpay-labs/merchant-console/internal/apperror"
	"github.com/qrpay-labs/merchant-console/internal/model"
)

// fakeBackend is an in-memory DeviceRepository and QRGenerator.
type fakeBackend struct {
	mu      sync.Mutex
	devices []model.Device
	nextID  int

	listErr   error
	createErr error
	updateErr error
	deleteErr error
	qrErr     error

	// when gate is non-nil, mutations and QR calls signal entered and then wait on gate
	gate    chan struct{}
	entered chan struct{}

	listCalls   int
	createCalls int
	updateCalls int
	deleteCalls int
	qrCalls     int
}

func newFakeBackend(devices ...model.Device) *fakeBackend {
	f := &fakeBackend{nextID: 1}
	for _, d := range devices {
		f.devices = append(f.devices, d)
		if n, err := strconv.Atoi(string(d.ID)); err == nil && n >= f.nextID {
			f.nextID = n + 1
		}
	}
	return f
}

func (f *fakeBackend) hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 8)
}

func (f *fakeBackend) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

func (f *fakeBackend) wait(ctx context.Context) error {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	entered <- struct{}{}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) snapshot() []model.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Device(nil), f.devices...)
}

func (f *fakeBackend) ListDevices(ctx context.Context) ([]model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Device(nil), f.devices...), nil
}

func (f *fakeBackend) CreateDevice(ctx context.Context, d model.DeviceDraft) (model.Device, error) {
	if err := f.wait(ctx); err != nil {
		return model.Device{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return model.Device{}, f.createErr
	}
	for _, existing := range f.devices {
		if existing.ApplicationCode == d.ApplicationCode {
			return model.Device{}, apperror.Server(400, "duplicate application code")
		}
	}
	dev := model.Device{ID: model.DeviceID(strconv.Itoa(f.nextID)), Name: d.Name, ApplicationCode: d.ApplicationCode, SecretKey: d.SecretKey}
	f.nextID++
	f.devices = append(f.devices, dev)
	return dev, nil
}

func (f *fakeBackend) UpdateDevice(ctx context.Context, id model.DeviceID, d model.DeviceDraft) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	for i := range f.devices {
		if f.devices[i].ID == id {
			f.devices[i] = model.Device{ID: id, Name: d.Name, ApplicationCode: d.ApplicationCode, SecretKey: d.SecretKey}
			return nil
		}
	}
	return apperror.Server(404, "Device not found")
}

func (f *fakeBackend) DeleteDevice(ctx context.Context, id model.DeviceID) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i := range f.devices {
		if f.devices[i].ID == id {
			f.devices = append(f.devices[:i], f.devices[i+1:]...)
			return nil
		}
	}
	return apperror.Server(404, "Device not found")
}

func (f *fakeBackend) GenerateQR(ctx context.Context, id model.DeviceID, amount float64) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qrCalls++
	if f.qrErr != nil {
		return "", f.qrErr
	}
	return fmt.Sprintf("https://qr.test/%s/%.2f.png", id, amount), nil
}

type memRecorder struct {
	mu      sync.Mutex
	entries []model.QRLog
}

func (r *memRecorder) Record(_ context.Context, e model.QRLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}
