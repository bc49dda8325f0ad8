package ports

import (
	"context"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// Notifier recibe el resumen de cada ciclo del watcher.
type Notifier interface {
	Notify(ctx context.Context, report domain.StatusReport) error
}
