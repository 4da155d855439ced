package dashboard

import (
	"context"

	"github.com/qrpay-labs/merchant-console/internal/apperror"
	"github.com/qrpay-labs/merchant-console/internal/model"
)

// BeginAdd opens an empty Add form. It is rejected while any form is open.
func (c *Controller) BeginAdd() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return ErrClosed
	}
	if c.mode != ModeIdle {
		return ErrModeConflict
	}
	c.openForm(ModeAdding, model.DeviceDraft{})
	return nil
}

// BeginEdit opens the Edit form pre-populated from the mirrored device.
func (c *Controller) BeginEdit(id model.DeviceID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return ErrClosed
	}
	if c.mode != ModeIdle {
		return ErrModeConflict
	}
	i := c.indexOf(id)
	if i < 0 {
		return apperror.Validation(MsgUnknownDevice)
	}
	c.openForm(ModeEditing, model.DraftFrom(c.devices[i]))
	return nil
}

// SetDraft replaces the open form's fields. The edit target cannot be changed.
func (c *Controller) SetDraft(d model.DeviceDraft) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return ErrClosed
	}
	if c.mode == ModeIdle {
		return ErrNoForm
	}
	if c.submitting != nil {
		return ErrBusy
	}
	d.ID = c.draft.ID
	c.draft = d
	return nil
}

// Cancel closes the open form, discarding the draft and aborting a pending submission.
// Cancelling while idle is a no-op.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeIdle {
		return
	}
	if c.submitting != nil {
		c.submitting.cancel()
		c.submitting = nil
	}
	c.closeForm()
}

// Submit sends the open form. On success the form closes, the draft is cleared and the
// mirror is re-listed. On failure the form stays open with its draft and the error slot
// holds the backend's detail or a generic message.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.closed() {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.mode == ModeIdle {
		c.mu.Unlock()
		return ErrNoForm
	}
	if c.submitting != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	mode, draft, seq := c.mode, c.draft, c.formSeq
	if missing := draft.MissingField(); missing != "" {
		err := apperror.Validation("Device " + missing + " is required.")
		c.setError(err.Detail)
		c.mu.Unlock()
		return err
	}
	opCtx, done := c.opContext(ctx)
	defer done()
	pending := &pendingSubmit{cancel: done}
	c.submitting = pending
	c.setError("")
	c.mu.Unlock()

	var err error
	fallback := MsgAddFailed
	if mode == ModeAdding {
		_, err = c.repo.CreateDevice(opCtx, draft)
	} else {
		fallback = MsgUpdateFailed
		err = c.repo.UpdateDevice(opCtx, draft.ID, draft)
	}

	c.mu.Lock()
	if c.submitting == pending {
		c.submitting = nil
	}
	if c.closed() {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.formSeq != seq {
		c.mu.Unlock()
		return ErrAborted
	}
	if err != nil {
		if !abandoned(opCtx, err) {
			c.setError(apperror.Message(err, fallback))
		}
		c.mu.Unlock()
		return err
	}
	c.closeForm()
	c.mu.Unlock()

	c.refreshAfterMutation(opCtx)
	return nil
}

// openForm must be called with mu held.
func (c *Controller) openForm(mode Mode, draft model.DeviceDraft) {
	c.mode = mode
	c.draft = draft
	c.formSeq++
	c.setError("")
}

// closeForm must be called with mu held.
func (c *Controller) closeForm() {
	c.mode = ModeIdle
	c.draft = model.DeviceDraft{}
	c.formSeq++
	c.setError("")
}
