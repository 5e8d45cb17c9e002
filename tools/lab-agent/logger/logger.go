package logger

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openstack-archive/fuel-qa-sub001/tools/lab-agent/config"
)

// InitLogger configures the standard logrus logger. Unknown levels fall
// back to info, an unwritable log file falls back to stdout.
func InitLogger(cfg *config.Logger) {
	log.SetReportCaller(cfg.ReportCaller)
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Encoding == "json" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	}

	log.SetOutput(os.Stdout)
	if cfg.Output == "file" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.WithError(err).WithField("file", cfg.File).Error("Cannot open log file, logging to stdout")
			return
		}
		log.SetOutput(file)
	}
}
