package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qrpay-labs/merchant-console/internal/apperror"
	"github.com/qrpay-labs/merchant-console/internal/model"
)

var (
	pos1  = model.Device{ID: "1", Name: "POS1", ApplicationCode: "APP1", SecretKey: "SECRET1"}
	pos2  = model.Device{ID: "2", Name: "POS2", ApplicationCode: "APP2", SecretKey: "SECRET2"}
	kiosk = model.DeviceDraft{Name: "Kiosk", ApplicationCode: "A1", SecretKey: "S1"}
)

func newController(t *testing.T, f *fakeBackend) (*Controller, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	c := New(context.Background(), f, f, rec)
	t.Cleanup(c.Close)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}
	return c, rec
}

func waitEntered(t *testing.T, f *fakeBackend) {
	t.Helper()
	select {
	case <-f.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the backend")
	}
}

func sameDevices(a, b []model.Device) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRefreshSelectsFirstDevice(t *testing.T) {
	c, _ := newController(t, newFakeBackend(pos1, pos2))
	st := c.Snapshot()
	if len(st.Devices) != 2 || st.SelectedID != "1" || st.Mode != ModeIdle {
		t.Fatalf("state = %+v", st)
	}
}

func TestRefreshFailureFillsErrorSlot(t *testing.T) {
	f := newFakeBackend(pos1)
	c, _ := newController(t, f)

	f.listErr = apperror.Network(errors.New("connection refused"))
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	st := c.Snapshot()
	if st.Error != MsgFetchFailed || len(st.Devices) != 1 {
		t.Fatalf("state = %+v", st)
	}

	f.listErr = nil
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := c.Snapshot(); st.Error != "" {
		t.Fatalf("fetch error not cleared: %q", st.Error)
	}
}

func TestAddSuccessReturnsToIdleAndRelists(t *testing.T) {
	f := newFakeBackend()
	c, _ := newController(t, f)

	if err := c.BeginAdd(); err != nil {
		t.Fatal(err)
	}
	if err := c.SetDraft(kiosk); err != nil {
		t.Fatal(err)
	}
	listsBefore := f.listCalls
	if err := c.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := c.Snapshot()
	if st.Mode != ModeIdle || !st.Draft.IsEmpty() || st.Error != "" {
		t.Fatalf("state after add = %+v", st)
	}
	if f.listCalls != listsBefore+1 {
		t.Fatalf("expected one re-list, got %d", f.listCalls-listsBefore)
	}
	if !sameDevices(st.Devices, f.snapshot()) {
		t.Fatalf("mirror %v != backend %v", st.Devices, f.snapshot())
	}
	if st.SelectedID != st.Devices[0].ID {
		t.Fatalf("first device not auto-selected: %+v", st)
	}
}

func TestAddFailureKeepsFormAndDetail(t *testing.T) {
	f := newFakeBackend(model.Device{ID: "1", Name: "Old", ApplicationCode: "A1", SecretKey: "x"})
	c, _ := newController(t, f)

	c.BeginAdd()
	c.SetDraft(kiosk)
	err := c.Submit(context.Background())
	if !apperror.Is(err, apperror.KindServer) {
		t.Fatalf("err = %v", err)
	}
	st := c.Snapshot()
	if st.Mode != ModeAdding {
		t.Fatalf("mode = %v, want adding", st.Mode)
	}
	if st.Draft != kiosk {
		t.Fatalf("draft cleared on failure: %+v", st.Draft)
	}
	if st.Error != "duplicate application code" {
		t.Fatalf("error slot = %q", st.Error)
	}
}

func TestFailureWithoutDetailUsesFallback(t *testing.T) {
	f := newFakeBackend(pos1)
	c, _ := newController(t, f)

	f.updateErr = apperror.Server(500, "")
	c.BeginEdit("1")
	if err := c.Submit(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	st := c.Snapshot()
	if st.Mode != ModeEditing || st.Error != MsgUpdateFailed || st.Draft.ID != "1" {
		t.Fatalf("state = %+v", st)
	}

	f.updateErr = apperror.Network(errors.New("reset"))
	c.Submit(context.Background())
	if st := c.Snapshot(); st.Error != MsgUpdateFailed {
		t.Fatalf("error slot = %q", st.Error)
	}
}

func TestNewAttemptOverwritesErrorSlot(t *testing.T) {
	f := newFakeBackend(pos1)
	c, _ := newController(t, f)

	f.createErr = apperror.Server(400, "first failure")
	c.BeginAdd()
	c.SetDraft(kiosk)
	c.Submit(context.Background())
	f.createErr = apperror.Server(400, "second failure")
	c.Submit(context.Background())
	if st := c.Snapshot(); st.Error != "second failure" {
		t.Fatalf("error slot = %q", st.Error)
	}
}

func TestModesAreMutuallyExclusive(t *testing.T) {
	c, _ := newController(t, newFakeBackend(pos1))

	if err := c.BeginAdd(); err != nil {
		t.Fatal(err)
	}
	c.SetDraft(kiosk)
	if err := c.BeginEdit("1"); !errors.Is(err, ErrModeConflict) {
		t.Fatalf("BeginEdit while adding err = %v", err)
	}
	if err := c.BeginAdd(); !errors.Is(err, ErrModeConflict) {
		t.Fatalf("BeginAdd while adding err = %v", err)
	}
	st := c.Snapshot()
	if st.Mode != ModeAdding || st.Draft != kiosk {
		t.Fatalf("rejected transition changed state: %+v", st)
	}

	c.Cancel()
	if err := c.BeginEdit("1"); err != nil {
		t.Fatal(err)
	}
	if err := c.BeginAdd(); !errors.Is(err, ErrModeConflict) {
		t.Fatalf("BeginAdd while editing err = %v", err)
	}
	if st := c.Snapshot(); st.Mode != ModeEditing {
		t.Fatalf("mode = %v", st.Mode)
	}
}

func TestEditPrepopulatesAndUpdates(t *testing.T) {
	f := newFakeBackend(pos1, pos2)
	c, _ := newController(t, f)

	if err := c.BeginEdit("2"); err != nil {
		t.Fatal(err)
	}
	st := c.Snapshot()
	if st.Draft != model.DraftFrom(pos2) {
		t.Fatalf("draft = %+v", st.Draft)
	}
	edited := st.Draft
	edited.Name = "POS2-edited"
	edited.ID = "1" // the edit target is fixed once the form opens
	if err := c.SetDraft(edited); err != nil {
		t.Fatal(err)
	}
	if err := c.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	st = c.Snapshot()
	if st.Mode != ModeIdle || !st.Draft.IsEmpty() {
		t.Fatalf("state = %+v", st)
	}
	if st.Devices[1].Name != "POS2-edited" || st.Devices[0].Name != "POS1" || len(st.Devices) != 2 {
		t.Fatalf("devices = %+v", st.Devices)
	}
}

func TestBeginEditUnknownDevice(t *testing.T) {
	c, _ := newController(t, newFakeBackend(pos1))
	if err := c.BeginEdit("42"); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("err = %v", err)
	}
	if st := c.Snapshot(); st.Mode != ModeIdle {
		t.Fatalf("mode = %v", st.Mode)
	}
}

func TestSubmitValidatesRequiredFields(t *testing.T) {
	f := newFakeBackend()
	c, _ := newController(t, f)
	c.BeginAdd()
	c.SetDraft(model.DeviceDraft{Name: "Kiosk", ApplicationCode: "A1"})
	err := c.Submit(context.Background())
	if !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("err = %v", err)
	}
	if f.createCalls != 0 {
		t.Fatal("request sent for incomplete draft")
	}
	st := c.Snapshot()
	if st.Mode != ModeAdding || st.Error != "Device secret key is required." {
		t.Fatalf("state = %+v", st)
	}
}

func TestFormActionsWhileIdle(t *testing.T) {
	c, _ := newController(t, newFakeBackend())
	if err := c.SetDraft(kiosk); !errors.Is(err, ErrNoForm) {
		t.Fatalf("SetDraft err = %v", err)
	}
	if err := c.Submit(context.Background()); !errors.Is(err, ErrNoForm) {
		t.Fatalf("Submit err = %v", err)
	}
	c.Cancel()
	if st := c.Snapshot(); st.Mode != ModeIdle {
		t.Fatalf("mode = %v", st.Mode)
	}
}

func TestCancelClearsDraftAndError(t *testing.T) {
	f := newFakeBackend()
	c, _ := newController(t, f)
	f.createErr = apperror.Server(400, "nope")
	c.BeginAdd()
	c.SetDraft(kiosk)
	c.Submit(context.Background())
	c.Cancel()
	st := c.Snapshot()
	if st.Mode != ModeIdle || !st.Draft.IsEmpty() || st.Error != "" {
		t.Fatalf("state = %+v", st)
	}
}

func TestDeleteRelistsAndClearsSelection(t *testing.T) {
	f := newFakeBackend(pos1, pos2)
	c, _ := newController(t, f)
	if st := c.Snapshot(); st.SelectedID != "1" {
		t.Fatalf("selected = %q", st.SelectedID)
	}
	if err := c.Delete(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}
	st := c.Snapshot()
	if !sameDevices(st.Devices, []model.Device{pos2}) {
		t.Fatalf("devices = %+v", st.Devices)
	}
	if !st.SelectedID.IsZero() {
		t.Fatalf("selection should be cleared, got %q", st.SelectedID)
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := c.Snapshot(); !st.SelectedID.IsZero() {
		t.Fatalf("selection re-picked after loss: %q", st.SelectedID)
	}
}

func TestSelectionSurvivesUnrelatedCRUD(t *testing.T) {
	f := newFakeBackend(pos1, pos2)
	c, _ := newController(t, f)
	if err := c.Select("2"); err != nil {
		t.Fatal(err)
	}
	c.BeginAdd()
	c.SetDraft(kiosk)
	if err := c.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}
	if st := c.Snapshot(); st.SelectedID != "2" {
		t.Fatalf("selected = %q, want 2", st.SelectedID)
	}
}

func TestSelectUnknownDevice(t *testing.T) {
	c, _ := newController(t, newFakeBackend(pos1))
	if err := c.Select("9"); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("err = %v", err)
	}
	if st := c.Snapshot(); st.SelectedID != "1" {
		t.Fatalf("selection changed: %q", st.SelectedID)
	}
	if err := c.Select(""); err != nil {
		t.Fatal(err)
	}
	if st := c.Snapshot(); !st.SelectedID.IsZero() {
		t.Fatalf("selection not cleared: %q", st.SelectedID)
	}
}

func TestDeleteFailureKeepsList(t *testing.T) {
	f := newFakeBackend(pos1)
	c, _ := newController(t, f)
	f.deleteErr = apperror.Server(500, "")
	listsBefore := f.listCalls
	if err := c.Delete(context.Background(), "1"); err == nil {
		t.Fatal("expected error")
	}
	st := c.Snapshot()
	if st.Error != MsgDeleteFailed || len(st.Devices) != 1 {
		t.Fatalf("state = %+v", st)
	}
	if f.listCalls != listsBefore {
		t.Fatal("failed delete should not re-list")
	}
}

func TestDeleteTwiceIsOrdinaryFailure(t *testing.T) {
	f := newFakeBackend(pos1)
	c, _ := newController(t, f)
	if err := c.Delete(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}
	err := c.Delete(context.Background(), "1")
	if !apperror.Is(err, apperror.KindServer) {
		t.Fatalf("err = %v", err)
	}
	if f.deleteCalls != 2 {
		t.Fatalf("deleteCalls = %d, no retry expected", f.deleteCalls)
	}
	if st := c.Snapshot(); st.Error != MsgDeleteFailed {
		t.Fatalf("error slot = %q, want %q", st.Error, MsgDeleteFailed)
	}
}

func TestMirrorMatchesBackendAfterEverySuccess(t *testing.T) {
	f := newFakeBackend()
	c, _ := newController(t, f)
	ctx := context.Background()

	steps := []func() error{
		func() error { c.BeginAdd(); c.SetDraft(kiosk); return c.Submit(ctx) },
		func() error {
			c.BeginAdd()
			c.SetDraft(model.DeviceDraft{Name: "POS1", ApplicationCode: "APP1", SecretKey: "SECRET1"})
			return c.Submit(ctx)
		},
		func() error {
			c.BeginEdit("2")
			c.SetDraft(model.DeviceDraft{Name: "POS1-edited", ApplicationCode: "APP1", SecretKey: "SECRET1"})
			return c.Submit(ctx)
		},
		func() error { return c.Delete(ctx, "1") },
		func() error {
			c.BeginAdd()
			c.SetDraft(model.DeviceDraft{Name: "POS3", ApplicationCode: "APP3", SecretKey: "S3"})
			return c.Submit(ctx)
		},
		func() error { return c.Delete(ctx, "3") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got, want := c.Snapshot().Devices, f.snapshot(); !sameDevices(got, want) {
			t.Fatalf("step %d: mirror %+v != backend %+v", i, got, want)
		}
	}
}

func TestSubmitGuard(t *testing.T) {
	f := newFakeBackend()
	c, _ := newController(t, f)
	c.BeginAdd()
	c.SetDraft(kiosk)

	f.hold()
	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background()) }()
	waitEntered(t, f)

	if err := c.Submit(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Submit err = %v", err)
	}
	if err := c.SetDraft(model.DeviceDraft{Name: "x"}); !errors.Is(err, ErrBusy) {
		t.Fatalf("SetDraft while submitting err = %v", err)
	}
	if st := c.Snapshot(); !st.Submitting {
		t.Fatal("snapshot should report submitting")
	}
	f.release()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if f.createCalls != 1 || len(f.snapshot()) != 1 {
		t.Fatalf("createCalls = %d, devices = %d", f.createCalls, len(f.snapshot()))
	}
}

func TestCancelAbortsPendingSubmit(t *testing.T) {
	f := newFakeBackend()
	c, _ := newController(t, f)
	c.BeginAdd()
	c.SetDraft(kiosk)

	f.hold()
	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background()) }()
	waitEntered(t, f)
	c.Cancel()

	if err := <-done; !errors.Is(err, ErrAborted) {
		t.Fatalf("Submit err = %v, want ErrAborted", err)
	}
	f.release()
	st := c.Snapshot()
	if st.Mode != ModeIdle || st.Error != "" || st.Submitting {
		t.Fatalf("state = %+v", st)
	}
	if err := c.BeginAdd(); err != nil {
		t.Fatalf("form could not reopen: %v", err)
	}
}

func TestCloseAbandonsPendingRequests(t *testing.T) {
	f := newFakeBackend(pos1)
	c, _ := newController(t, f)
	c.SetAmount("5")

	f.hold()
	done := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background())
		done <- err
	}()
	waitEntered(t, f)
	c.Close()

	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("Generate err = %v, want ErrClosed", err)
	}
	f.release()
	if err := c.BeginAdd(); !errors.Is(err, ErrClosed) {
		t.Fatalf("BeginAdd after Close err = %v", err)
	}
	if err := c.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Refresh after Close err = %v", err)
	}
}

func TestCallerCancellationLeavesSlotAlone(t *testing.T) {
	f := newFakeBackend(pos1)
	c, _ := newController(t, f)

	f.hold()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Delete(ctx, "1") }()
	waitEntered(t, f)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	f.release()
	st := c.Snapshot()
	if st.Error != "" || len(st.Deleting) != 0 || len(st.Devices) != 1 {
		t.Fatalf("state = %+v", st)
	}
}

func TestDeleteGuardIsPerDevice(t *testing.T) {
	f := newFakeBackend(pos1, pos2)
	c, _ := newController(t, f)

	f.hold()
	done := make(chan error, 1)
	go func() { done <- c.Delete(context.Background(), "1") }()
	waitEntered(t, f)

	if err := c.Delete(context.Background(), "1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("repeat delete err = %v", err)
	}
	if st := c.Snapshot(); len(st.Deleting) != 1 || st.Deleting[0] != "1" {
		t.Fatalf("deleting = %v", st.Deleting)
	}
	f.release()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(context.Background(), "2"); err != nil {
		t.Fatal(err)
	}
	if st := c.Snapshot(); len(st.Devices) != 0 {
		t.Fatalf("devices = %+v", st.Devices)
	}
}

func TestGenerateValidationSendsNoRequest(t *testing.T) {
	cases := []struct {
		name     string
		selected model.DeviceID
		amount   string
		want     string
	}{
		{"no selection", "", "10", MsgSelectAmount},
		{"empty amount", "1", "", MsgSelectAmount},
		{"blank amount", "1", "   ", MsgSelectAmount},
		{"not a number", "1", "ten", MsgInvalidAmount},
		{"zero", "1", "0", MsgInvalidAmount},
		{"negative", "1", "-4", MsgInvalidAmount},
		{"not finite", "1", "Inf", MsgInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeBackend(pos1)
			c, rec := newController(t, f)
			if err := c.Select(tc.selected); err != nil {
				t.Fatal(err)
			}
			c.SetAmount(tc.amount)
			res, err := c.Generate(context.Background())
			if !apperror.Is(err, apperror.KindValidation) {
				t.Fatalf("err = %v", err)
			}
			if res.ErrorMessage != tc.want || res.ImageReference != "" {
				t.Fatalf("result = %+v", res)
			}
			if f.qrCalls != 0 || len(rec.entries) != 0 {
				t.Fatalf("qrCalls = %d, recorded = %d", f.qrCalls, len(rec.entries))
			}
			if st := c.Snapshot(); st.QR == nil || st.QR.ErrorMessage != tc.want {
				t.Fatalf("snapshot qr = %+v", st.QR)
			}
		})
	}
}

func TestGenerateSuccessAndFailure(t *testing.T) {
	f := newFakeBackend(pos1)
	c, rec := newController(t, f)
	c.SetAmount("10.50")

	res, err := c.Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.ImageReference != "https://qr.test/1/10.50.png" || res.ErrorMessage != "" || res.Amount != 10.5 {
		t.Fatalf("result = %+v", res)
	}

	f.qrErr = apperror.Server(404, "Device not found")
	res, err = c.Generate(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if res.ImageReference != "" || res.ErrorMessage != "Device not found" {
		t.Fatalf("result = %+v", res)
	}
	if st := c.Snapshot(); st.QR == nil || st.QR.ImageReference != "" || st.QR.ErrorMessage != "Device not found" {
		t.Fatalf("previous result not replaced: %+v", st.QR)
	}

	f.qrErr = apperror.Network(errors.New("timeout"))
	res, _ = c.Generate(context.Background())
	if res.ErrorMessage != MsgGenerateFailed {
		t.Fatalf("result = %+v", res)
	}

	if len(rec.entries) != 3 {
		t.Fatalf("recorded %d entries, want 3", len(rec.entries))
	}
	if e := rec.entries[0]; e.Status != model.QRStatusSuccess || e.DeviceName != "POS1" || e.Amount != 10.5 {
		t.Fatalf("first entry = %+v", e)
	}
	if e := rec.entries[1]; e.Status != model.QRStatusFailed || e.Message != "Device not found" {
		t.Fatalf("second entry = %+v", e)
	}
}

func TestGenerateGuard(t *testing.T) {
	f := newFakeBackend(pos1)
	c, _ := newController(t, f)
	c.SetAmount("3")

	f.hold()
	done := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background())
		done <- err
	}()
	waitEntered(t, f)

	if _, err := c.Generate(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Generate err = %v", err)
	}
	st := c.Snapshot()
	if !st.Generating || st.QR == nil || st.QR.ImageReference != "" || st.QR.ErrorMessage != "" {
		t.Fatalf("pending state = %+v", st)
	}
	f.release()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if f.qrCalls != 1 {
		t.Fatalf("qrCalls = %d", f.qrCalls)
	}
}

func TestParseAmount(t *testing.T) {
	if v, err := ParseAmount(" 10.50 "); err != nil || v != 10.5 {
		t.Fatalf("ParseAmount = %v, %v", v, err)
	}
	if _, err := ParseAmount("NaN"); apperror.Message(err, "") != MsgInvalidAmount {
		t.Fatalf("NaN err = %v", err)
	}
}

func TestSnapshotListsPendingDeletesInOrder(t *testing.T) {
	f := newFakeBackend(pos1, pos2)
	c, _ := newController(t, f)

	f.hold()
	done := make(chan error, 2)
	go func() { done <- c.Delete(context.Background(), "2") }()
	waitEntered(t, f)
	go func() { done <- c.Delete(context.Background(), "1") }()
	waitEntered(t, f)

	for i := 0; i < 20; i++ {
		st := c.Snapshot()
		if len(st.Deleting) != 2 || st.Deleting[0] != "1" || st.Deleting[1] != "2" {
			t.Fatalf("deleting = %v", st.Deleting)
		}
	}
	f.release()
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
}
