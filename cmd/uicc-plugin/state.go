package main

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/areese/uicc-terminal/config"
	"github.com/areese/uicc-terminal/logger"
	"github.com/areese/uicc-terminal/terminal"
)

// configEnv names an explicit configuration file.
const configEnv = "UICC_CONFIG"

// state is what the exported entry points share for the lifetime of the
// library.
type state struct {
	plugin *terminal.Plugin
	log    logger.LogI
}

var (
	stateOnce sync.Once
	current   *state
)

func loaded() *state {
	stateOnce.Do(func() {
		current = load(os.Getenv(configEnv))
	})
	return current
}

// load builds the plugin from the configuration at path. The library has no
// way to report errors to its host, so a broken configuration or log file is
// reported on stderr and replaced by the defaults.
func load(path string) *state {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "uicc-plugin: %v, using defaults\n", err)
		cfg = config.Default()
	}

	var log logger.LogI = &logger.NopLogger{}
	if zl, err := logger.NewZeroLogger(cfg.Log.LoggerConfig("uicc-plugin")); err != nil {
		fmt.Fprintf(os.Stderr, "uicc-plugin: %v, logging disabled\n", err)
	} else {
		log = zl
	}

	s := &state{
		plugin: terminal.NewPlugin(cfg.TapiConstructor(), cfg.TerminalOptions(log)...),
		log:    log,
	}
	s.watch(cfg)
	return s
}

// watch applies timeout changes from the configuration file to the running
// terminal. Everything else takes effect on the next load.
func (s *state) watch(cfg *config.Config) {
	err := cfg.Watch(func(nc *config.Config, err error) {
		if err != nil {
			s.log.ErrorMsg(err, "reloading configuration")
			return
		}
		s.plugin.SetTimeout(nc.Terminal.Timeout)
		s.log.InfoMsgf("request timeout is now %s", nc.Terminal.Timeout)
	})
	if err != nil {
		s.log.DebugMsgf("not watching configuration: %v", err)
	}
}

// Status codes of the C entry points, see uicc_plugin.h.
const (
	codeOK = iota
	codeIllegalParam
	codeIOFailed
	codeTimeout
	codeNotInitialized
	codeInvalidInstance
)

func errorCode(err error) int {
	switch {
	case err == nil:
		return codeOK
	case errors.Is(err, terminal.ErrIllegalParam):
		return codeIllegalParam
	case errors.Is(err, terminal.ErrTimeout):
		return codeTimeout
	case errors.Is(err, terminal.ErrNotInitialized):
		return codeNotInitialized
	case errors.Is(err, terminal.ErrInvalidInstance):
		return codeInvalidInstance
	}
	return codeIOFailed
}
