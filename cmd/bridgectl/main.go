package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/native-bridge/bridge"
	"github.com/wippyai/native-bridge/config"
	"github.com/wippyai/native-bridge/dispatch"
	"github.com/wippyai/native-bridge/native"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to TOML config file")
		backend     = flag.String("backend", "", "Native backend: loopback, dylib or wasm")
		library     = flag.String("lib", "", "Path to the native client library (dylib backend)")
		wasmFile    = flag.String("wasm", "", "Path to the guest module (wasm backend)")
		method      = flag.String("method", "client.version", "Function to call")
		params      = flag.String("params", "", "Function params as JSON")
		ctxConfig   = flag.String("context", "", "Context config as JSON")
		list        = flag.Bool("list", false, "List available functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		listen      = flag.String("metrics", "", "Serve Prometheus metrics on this address")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fail(err)
	}
	if *backend != "" {
		cfg.Backend = config.Backend(*backend)
	}
	if *library != "" {
		cfg.Library = *library
	}
	if *wasmFile != "" {
		cfg.Module = *wasmFile
		if *backend == "" {
			cfg.Backend = config.BackendWasm
		}
	}
	if *ctxConfig != "" {
		cfg.ContextConfig = *ctxConfig
	}
	if *listen != "" {
		cfg.Metrics.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	if *params != "" && !json.Valid([]byte(*params)) {
		fail(fmt.Errorf("params are not valid JSON: %s", *params))
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
			fail(fmt.Errorf("interactive mode requires a terminal"))
		}
		if err := runInteractive(cfg); err != nil {
			fail(err)
		}
		return
	}

	if *list {
		*method = "client.get_api_reference"
		*params = ""
	}
	if err := run(cfg, *method, []byte(*params), *list); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// session is a bridge over a loaded backend with one context.
type session struct {
	svc     native.Service
	bridge  *bridge.Bridge
	log     *zap.Logger
	handle  native.ContextHandle
	cleanup []func()
}

func openSession(cfg *config.Config, sched func(*zap.Logger) dispatch.Scheduler) (*session, error) {
	log, err := cfg.Log.Logger()
	if err != nil {
		return nil, err
	}
	setLoggers(log)

	s := &session{log: log}
	m, stopMetrics := serveMetrics(cfg.Metrics, log)
	s.cleanup = append(s.cleanup, stopMetrics)

	svc, err := openService(context.Background(), cfg, log)
	if err != nil {
		s.close()
		return nil, err
	}
	s.svc = svc

	s.bridge = bridge.New(svc, sched(log), bridge.WithLogger(log), bridge.WithMetrics(m))
	s.handle, err = s.bridge.CreateContext([]byte(cfg.ContextConfig))
	if err != nil {
		s.close()
		return nil, fmt.Errorf("create context: %w", err)
	}
	return s, nil
}

func (s *session) close() {
	if s.bridge != nil {
		if s.handle != 0 {
			s.bridge.DestroyContext(s.handle)
		}
		if n := s.bridge.Shutdown(); n > 0 {
			s.log.Info("dropped outstanding requests", zap.Int("count", n))
		}
	}
	if s.svc != nil {
		if err := s.svc.Close(); err != nil {
			s.log.Warn("close backend", zap.Error(err))
		}
	}
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	_ = s.log.Sync()
}

// run issues one request and runs the host loop on the main goroutine until
// the request finishes or the process is interrupted.
func run(cfg *config.Config, method string, params []byte, listOnly bool) error {
	var loop *dispatch.Loop
	s, err := openSession(cfg, func(log *zap.Logger) dispatch.Scheduler {
		loop = dispatch.NewLoop(dispatch.LoopOptions{
			Logger:       log,
			QueueSize:    cfg.Queue.Size,
			OfferTimeout: cfg.Queue.OfferTimeout.Duration,
		})
		return loop
	})
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var callErr error
	_, err = s.bridge.BeginRequest(s.handle, method, params, func(result, errorJSON []byte, finished bool) {
		switch {
		case len(errorJSON) > 0:
			callErr = fmt.Errorf("%s failed: %s", method, errorJSON)
		case listOnly && finished:
			callErr = printAPI(result)
		case finished:
			fmt.Printf("Result: %s\n", result)
		default:
			fmt.Printf("Event: %s\n", result)
		}
		if finished {
			loop.Close()
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Calling %s on %s backend...\n", method, cfg.Backend)
	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	return callErr
}

func printAPI(result []byte) error {
	var ref struct {
		API []string `json:"api"`
	}
	if err := json.Unmarshal(result, &ref); err != nil {
		return fmt.Errorf("decode api reference: %w", err)
	}
	fmt.Printf("Functions:\n")
	for _, name := range ref.API {
		fmt.Printf("  %s\n", name)
	}
	return nil
}
