// Package main starts the agencyhub service process lifecycle.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	agencyhubcmd "github.com/louisbranch/agencyhub/internal/cmd/agencyhub"
	"github.com/louisbranch/agencyhub/internal/platform/config"
)

func main() {
	cfg, err := agencyhubcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := agencyhubcmd.Run(ctx, cfg); err != nil {
		config.Exitf("failed to serve: %v", err)
	}
}
