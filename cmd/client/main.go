package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/atinyakov/liftlog/internal/client/app"
)

var (
	version   string
	buildDate string
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config.toml (default ~/.config/liftlog/config.toml)")
	showVer := flag.Bool("version", false, "show build version and date")
	flag.Parse()

	if *showVer {
		fmt.Printf("liftlog client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, app.Options{ConfigPath: *configPath}); err != nil {
		fmt.Fprintf(os.Stderr, "liftlog: %v\n", err)
		return 1
	}
	return 0
}
