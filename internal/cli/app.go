// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/silohub/chat/internal/chat"
	"github.com/silohub/chat/internal/config"
	"github.com/silohub/chat/internal/history"
	"github.com/silohub/chat/internal/logging"
	"github.com/silohub/chat/internal/metrics"
	"github.com/silohub/chat/internal/server"
	"github.com/silohub/chat/internal/state"
	"github.com/silohub/chat/internal/transport"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// App holds the components shared by every command.
type App struct {
	Config     *config.Config
	Log        zerolog.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Store      *state.Store
	Sync       *history.Sync
	Controller *chat.Controller

	server *server.Server

	outMu     sync.Mutex
	out       io.Writer
	streaming bool
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFromPath(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	changed := false
	if opts.baseURL != "" {
		if cfg.History.URL == cfg.Service.BaseURL {
			cfg.History.URL = ""
		}
		cfg.Service.BaseURL = opts.baseURL
		changed = true
	}
	if opts.history != "" && opts.history != cfg.History.Backend {
		cfg.History.Backend = opts.history
		cfg.History.Path = ""
		cfg.History.URL = ""
		changed = true
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	if changed {
		cfg.Migrate()
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	config.SetGlobal(cfg)
	return cfg, nil
}

// newApp builds the component graph from cfg. Deltas and command output go
// to out; logs go to errOut.
func newApp(cfg *config.Config, out, errOut io.Writer) (*App, error) {
	log := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		Output:     errOut,
		WithCaller: cfg.Log.Caller,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history backend: %w", err)
	}

	st := state.NewStore()
	hs := history.NewSync(backend, st,
		history.WithLogger(log),
		history.WithMetrics(m),
		history.WithReadConcurrency(cfg.History.ReadConcurrency),
	)

	client := transport.NewClientWithConfig(&transport.Config{
		BaseURL:           cfg.Service.BaseURL,
		HeaderTimeout:     cfg.Service.HeaderTimeout(),
		RequestsPerSecond: cfg.Service.RequestsPerSecond,
		Burst:             cfg.Service.Burst,
		Headers:           cfg.Service.Headers,
	})

	app := &App{
		Config:    cfg,
		Log:       log,
		Registry:  reg,
		Metrics:   m,
		Store:     st,
		Sync:      hs,
		out:       out,
		streaming: true,
	}
	app.Controller = chat.NewController(client, st, hs,
		chat.WithLogger(log),
		chat.WithMetrics(m),
		chat.WithConfig(chat.Config{
			ExchangeTimeout: cfg.Exchange.Timeout(),
			ChunkSize:       cfg.Stream.ChunkSize,
			MaxRecordSize:   cfg.Stream.MaxRecordBytes,
		}),
		chat.WithDeltaHandler(app.printDelta),
	)
	return app, nil
}

// openBackend opens the configured history backend. BackendNone returns a
// nil Store.
func openBackend(cfg *config.Config) (history.Store, error) {
	switch cfg.History.Backend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0700); err != nil {
			return nil, err
		}
		return history.OpenSQLite(cfg.History.Path)
	case config.BackendFile:
		fs, err := history.NewFileStore(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		fs.MaxConversations = cfg.History.MaxConversations
		return fs, nil
	case config.BackendHTTP:
		return history.NewHTTPStore(history.HTTPConfig{
			BaseURL: cfg.History.URL,
			Timeout: cfg.History.Timeout(),
			Headers: cfg.Service.Headers,
		})
	default:
		return nil, nil
	}
}

// Start loads conversation history and, when enabled, the metrics endpoint.
// A history failure is logged, not returned; the client keeps working with
// local state.
func (a *App) Start(ctx context.Context) error {
	if err := a.Sync.Load(ctx); err != nil {
		a.Log.Warn().Err(err).Msg("history unavailable")
	}

	if a.Config.Metrics.Enabled {
		a.server = server.NewServer(a.Config.Metrics.Addr, a.Registry,
			server.WithHealth(a.Sync),
			server.WithLive(a.Controller),
			server.WithLogger(a.Log),
		)
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("start metrics endpoint: %w", err)
		}
	}
	return nil
}

// Close stops running exchanges and releases the backend.
func (a *App) Close() error {
	a.Controller.StopGenerating()
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.Log.Warn().Err(err).Msg("metrics endpoint shutdown")
		}
	}
	return a.Sync.Close()
}

// SetStreaming turns live printing of assistant text on or off.
func (a *App) SetStreaming(on bool) {
	a.outMu.Lock()
	a.streaming = on
	a.outMu.Unlock()
}

// printDelta writes streamed assistant text as it arrives.
func (a *App) printDelta(_, _, text string) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	if a.streaming {
		fmt.Fprint(a.out, text)
	}
}
