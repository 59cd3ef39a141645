// Package notify sends desktop notifications.
package notify

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Desktop posts notifications through the platform notification service.
type Desktop struct {
	logger *zap.Logger
	send   func(title, message string) error
}

func NewDesktop(logger *zap.Logger) *Desktop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Desktop{
		logger: logger,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// Notify never fails the caller; headless sessions simply log the error.
func (d *Desktop) Notify(title, body string) {
	if err := d.send(title, body); err != nil {
		d.logger.Debug("desktop notification failed", zap.String("title", title), zap.Error(err))
	}
}
