package storage

import (
	"context"
	"errors"

	"github.com/qrpay-labs/merchant-console/internal/model"
)

// ErrNotFound is returned when no credential has been persisted.
var ErrNotFound = errors.New("credential not found")

// Store abstracts the console's durable local state.
type Store interface {
	// LoadCredential returns ErrNotFound when no credential is persisted.
	LoadCredential(ctx context.Context) (string, error)
	SaveCredential(ctx context.Context, credential string) error
	DeleteCredential(ctx context.Context) error
	AppendQRLog(ctx context.Context, log *model.QRLog) error
	ListQRLogs(ctx context.Context) ([]*model.QRLog, error)
	Close() error
}
