/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/daw/engine"
	"github.com/spaghettifunk/daw/engine/core"
	"github.com/spaghettifunk/daw/testbed"
)

func loadConfig() (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if path := os.Getenv("DAW_CONFIG"); path != "" {
		var err error
		if cfg, err = engine.LoadConfig(path, cfg); err != nil {
			return cfg, err
		}
	}
	if os.Getenv("DAW_VALIDATION") == "1" {
		cfg.Renderer.EnableValidation = true
		cfg.Application.LogLevel = core.DebugLevel
	}
	return cfg, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tb := testbed.NewTestGame(&cfg)
	e, err := engine.New(tb.Game)
	if err != nil {
		return err
	}
	defer e.Shutdown()

	if err := e.Initialize(); err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		core.LogInfo("Signal received, stopping.")
		e.Stop()
	}()

	// Blocks the main goroutine; window events must be pumped from here.
	return e.Run()
}

func main() {
	if err := run(); err != nil {
		core.LogError("daw: %s", err)
		os.Exit(1)
	}
}
