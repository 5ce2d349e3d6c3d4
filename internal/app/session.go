// Package app holds the process bootstrap shared by the binaries: the
// session log file, slog and the optional OTel providers. An enabled session
// installs its meter provider globally.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/autoeyes/compass/internal/config"
	"github.com/autoeyes/compass/internal/logging"
	intOtel "github.com/autoeyes/compass/internal/otel"
)

// Session is one run of a binary.
type Session struct {
	ID          string
	Start       time.Time
	LogFilePath string
	Logs        *logging.SlogManager
	Logger      *slog.Logger
	OTel        *intOtel.Provider

	logFile *os.File
}

// Start opens the session log in the configured logs directory and sets up
// logging. Config must already be loaded. When the log file cannot be
// created, logging falls back to stdout. Records carry the session id plus
// whatever the extra providers add.
func Start(name string, providers ...logging.ContextProvider) (*Session, error) {
	s := &Session{
		ID:    uuid.NewString(),
		Start: time.Now(),
	}
	s.Logs = logging.NewSlogManager(name).
		WithContext(logging.SessionContext(s.ID)).
		WithContext(providers...)

	level := config.GetString("logLevel")
	logsDir := config.GetString("logsDir")

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		s.Logs.Setup(nil, level, nil)
		s.Logger = s.Logs.Logger()
		s.Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
	} else {
		s.LogFilePath = logging.LogFilePath(logsDir, name, s.Start)
		s.logFile, err = os.OpenFile(s.LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			s.logFile = nil
			s.Logs.Setup(nil, level, nil)
			s.Logger = s.Logs.Logger()
			s.Logger.Error("Failed to create/open log file!", "error", err, "path", s.LogFilePath)
		}
	}

	otelCfg := config.GetOTelConfig()
	var err error
	s.OTel, err = intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		BatchTimeout:   otelCfg.BatchTimeout,
		MetricInterval: otelCfg.MetricInterval,
		Writer:         s.writer(),
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTel provider: %w", err)
	}
	s.OTel.Install()

	var otelLogProvider *sdklog.LoggerProvider
	if s.OTel.Enabled() {
		otelLogProvider = s.OTel.LoggerProvider()
	}
	if s.logFile != nil {
		s.Logs.Setup(s.logFile, level, otelLogProvider)
	} else {
		s.Logs.Setup(nil, level, otelLogProvider)
	}
	s.Logger = s.Logs.Logger()
	s.Logger.Info("Session started", "app", name, "logFile", s.LogFilePath, "otel", s.OTel.Enabled())

	return s, nil
}

// Close flushes telemetry and closes the log file.
func (s *Session) Close(ctx context.Context) {
	if err := s.Logs.Flush(ctx); err != nil {
		s.Logger.Warn("Failed to flush logs", "error", err)
	}
	if err := s.OTel.Flush(ctx); err != nil {
		s.Logger.Warn("Failed to flush OTel data", "error", err)
	}
	if err := s.OTel.Shutdown(ctx); err != nil {
		s.Logger.Warn("Failed to shut down OTel", "error", err)
	}
	s.Logger.Info("Session closed", "duration", time.Since(s.Start))
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
}

func (s *Session) writer() *os.File {
	if s.logFile != nil {
		return s.logFile
	}
	return os.Stdout
}
