package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/atinyakov/liftlog/internal/client/config"
	"github.com/atinyakov/liftlog/internal/logger"
	"go.uber.org/zap"
)

// Options configure Run.
type Options struct {
	ConfigPath string
	In         io.Reader
	Out        io.Writer
}

// Run starts the interactive client and blocks until the user exits, input
// ends, or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	l := logger.New()
	if err := l.Init(cfg.LogLevel, cfg.LogPath()); err != nil {
		return err
	}
	log := l.Log
	defer func() { _ = log.Sync() }()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	con := &console{out: out}

	client, err := New(cfg, store, nil, con, log)
	if err != nil {
		return fmt.Errorf("init client: %w", err)
	}

	log.Info("client starting",
		zap.String("api_url", cfg.APIURL),
		zap.String("store", cfg.Store),
		zap.Int("queued", client.Queue.Len()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	client.Start(ctx)

	if !client.Session.IsAuthenticated() {
		con.Printf("Not signed in. Changes stay on this device until you run 'login'.\n")
	}
	newREPL(client, con, in).run(ctx)
	return nil
}
