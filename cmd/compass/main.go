// Command compass reads device orientation and user selections and keeps the
// actor coordination service up to date with the user's status.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autoeyes/compass/internal/api"
	"github.com/autoeyes/compass/internal/app"
	"github.com/autoeyes/compass/internal/config"
	"github.com/autoeyes/compass/internal/controller"
	"github.com/autoeyes/compass/internal/dispatcher"
	"github.com/autoeyes/compass/internal/handlers"
	"github.com/autoeyes/compass/internal/heading"
	"github.com/autoeyes/compass/internal/input"
	"github.com/autoeyes/compass/internal/logging"
	"github.com/autoeyes/compass/internal/sensor"
	"github.com/autoeyes/compass/internal/status"
)

// set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stderr io.Writer) error {
	fs := pflag.NewFlagSet("compass", pflag.ContinueOnError)
	configDir := fs.StringP("config", "c", ".", "directory containing "+config.FileName)
	fs.String("host", "", "actor service host")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("sensor", "", "orientation source (stdin, simulated, none)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	configErr := config.Load(*configDir)
	for key, flag := range map[string]string{
		"api.host":      "host",
		"logLevel":      "log-level",
		"sensor.source": "sensor",
	} {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}

	// Log records name the selected actor once the controller exists.
	var current atomic.Pointer[controller.Controller]
	session, err := app.Start("compass", logging.ActorContext(func() string {
		if c := current.Load(); c != nil {
			return c.CurrentIdentity()
		}
		return ""
	}))
	if err != nil {
		return err
	}
	logger := session.Logger
	if configErr != nil {
		logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		logger.Info("Loaded config")
	}
	logger.Info("Starting compass", "version", Version, "buildDate", BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	surface := status.New(stderr)

	apiCfg := config.GetAPIConfig()
	client := api.New(api.BaseURL(apiCfg.Host, apiCfg.Port, apiCfg.Version), apiCfg.Timeout)
	surface.Report(apiCfg.Host)
	logger.Info("Reporting to actor service", "url", client.BaseURL())

	go func() {
		if err := client.Healthcheck(ctx); err != nil {
			logger.Warn("Actor service healthcheck failed", "error", err)
		}
	}()

	// In-flight requests outlive the signal so the queue can drain.
	sendCtx, cancelSend := context.WithCancel(context.Background())
	defer cancelSend()
	sender, err := controller.NewAsyncSender(sendCtx, client, surface, logger)
	if err != nil {
		return err
	}

	ctrlCfg := config.GetControllerConfig()
	ctrl, err := controller.New(controller.Config{MinInterval: ctrlCfg.MinInterval}, sender, nil, logger.With("component", "controller"))
	if err != nil {
		return err
	}
	current.Store(ctrl)

	svc, err := handlers.NewService(handlers.Dependencies{
		Heading:    heading.New(),
		Controller: ctrl,
		Status:     surface,
		Logger:     logger.With("component", "handlers"),
	})
	if err != nil {
		return err
	}

	events, err := dispatcher.New(logging.NewDispatcherLogger(logger), ctrlCfg.QueueSize)
	if err != nil {
		return err
	}
	svc.Register(events)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		events.Run(context.Background())
	}()

	sensorCfg := config.GetSensorConfig()
	sensorDone := make(chan struct{})
	go func() {
		defer close(sensorDone)
		runSensor(ctx, sensorCfg, events, surface, logger)
	}()

	scanDone := make(chan error, 1)
	go func() {
		scanDone <- input.Scan(ctx, stdin, events.Submit, func(line string, err error) {
			logger.Warn("Rejected input", "line", line, "error", err)
		})
	}()

	select {
	case err := <-scanDone:
		if err != nil {
			logger.Error("Input stopped", "error", err)
		} else {
			logger.Info("Input closed")
		}
	case <-ctx.Done():
		logger.Info("Signal caught, shutting down")
	}
	stop()

	<-sensorDone
	events.Close()
	<-loopDone

	abort := time.AfterFunc(shutdownTimeout, cancelSend)
	sender.Wait()
	abort.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	session.Close(shutdownCtx)
	return nil
}

func runSensor(ctx context.Context, cfg config.SensorConfig, events *dispatcher.Dispatcher, surface status.Reporter, logger *slog.Logger) {
	var src sensor.Source
	switch cfg.Source {
	case "simulated":
		src = sensor.NewSimulated(cfg.Interval, cfg.Rate)
	case "none":
		src = sensor.None{}
	case "stdin", "":
		// orientation lines arrive with the rest of the input
		return
	default:
		logger.Warn("Unknown sensor source", "source", cfg.Source)
		src = sensor.None{}
	}

	err := sensor.Pump(ctx, src, func(s sensor.Sample) error {
		return events.Submit(input.SampleEvent(s))
	})
	if errors.Is(err, sensor.ErrUnsupported) {
		surface.Report("Not Capable")
		logger.Warn("No orientation sensor", "source", cfg.Source)
		return
	}
	if err != nil {
		logger.Error("Sensor stopped", "error", err)
	}
}
