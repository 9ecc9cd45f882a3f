package notifier

import (
	"context"

	"tiller/internal/logger"
)

// Log writes notifications to the structured log, the default sink when no
// external channel is configured.
type Log struct{}

func (Log) Notify(_ context.Context, title, body string) error {
	logger.Infof("notify: %s | %s", title, body)
	return nil
}
