package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// orGlobal lets every helper accept a nil Logger
func orGlobal(l Logger) Logger {
	if l == nil {
		return GetLogger()
	}
	return l
}

// LogDownload logs the outcome of one image download
func LogDownload(l Logger, account, url, file string, size int64, err error) {
	log := orGlobal(l).WithFields(map[string]interface{}{
		"account": account,
		"url":     url,
	})

	switch {
	case err != nil:
		log.WithError(err).Warn("Download failed")
	case file == "":
		log.Debug("Download skipped")
	default:
		log.InfoWithFields("Image saved", map[string]interface{}{
			"file":  file,
			"bytes": size,
		})
	}
}

// LogSnapshot logs the result of parsing one snapshot
func LogSnapshot(l Logger, account, timestamp string, images int, err error) {
	log := orGlobal(l).WithFields(map[string]interface{}{
		"account":   account,
		"timestamp": timestamp,
	})

	if err != nil {
		log.WithError(err).Warn("Snapshot failed")
		return
	}
	log.DebugWithFields("Snapshot parsed", map[string]interface{}{
		"images": images,
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, fields map[string]interface{}) {
	log := orGlobal(l).WithField("component", component)
	if len(fields) > 0 {
		log = log.WithFields(fields)
	}
	log.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component, reason string) {
	orGlobal(l).WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
