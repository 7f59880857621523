package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PercentBoat4164/HardwareMixer/config"
	"github.com/PercentBoat4164/HardwareMixer/env"
	"github.com/PercentBoat4164/HardwareMixer/mixer"
	"github.com/PercentBoat4164/HardwareMixer/pulse"
	"github.com/PercentBoat4164/HardwareMixer/router"
)

var _ router.Backend = (*pulse.Client)(nil)
var _ router.Sampler = (*mixer.Session)(nil)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "hardwaremixer [config]",
	Short: "hardwaremixer routes a serial fader board to PulseAudio stream volumes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  run,
}

func init() {
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "log wire traffic")
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	environment := env.LoadEnv(logger)
	path := environment.ConfigPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = config.DefaultPath
	}
	table, err := config.Load(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := mixer.New(&mixer.PortDialer{
		Baud:      environment.SerialBaud,
		VendorIDs: environment.VendorIDs,
	}, logger)
	defer func() { _ = session.Close() }()

	logger.Info("waiting for mixer hardware")
	if err := session.Connect(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	backend, err := pulse.Dial(environment.PulseServer, map[string]string{
		"application.name":       "Hardware Mixer",
		"application.id":         "com.github.percentboat4164.hardwaremixer",
		"hardwaremixer.instance": uuid.NewString(),
	}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()
	if err := backend.SubscribeStreams(); err != nil {
		return err
	}

	wake := make(chan struct{}, 1)
	go func() {
		if err := session.Pump(ctx, wake); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("mixer pump stopped", zap.Error(err))
		}
	}()

	err = router.New(table, session, backend, logger).Run(ctx, wake)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
