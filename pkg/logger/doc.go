// Package logger provides the structured logging interface used across the
// scraper.
//
// It wraps zerolog with a small field-oriented API. Console output is pretty
// printed unless the format is "json"; when a log file is configured the
// events are also written to a lumberjack rotating file.
//
//	err := logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("account", "nasa")
//	log.InfoWithFields("Image saved", map[string]interface{}{
//	    "file":  "nasa_abc.jpg",
//	    "bytes": 48213,
//	})
//
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
