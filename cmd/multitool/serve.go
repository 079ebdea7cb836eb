package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/positive-doo/multitool/pkg/server"
)

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	Address string `help:"Listen address, overrides server.address." placeholder:"HOST:PORT"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	if c.Address != "" {
		cfg.Server.Address = c.Address
	}

	rt, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.manager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	srv := server.New(cfg.Server, mgr, rt.metrics)
	fmt.Printf("multitool server listening on %s\n", cfg.Server.Address)
	fmt.Printf("   Sessions: POST http://%s/v1/sessions\n", displayAddr(cfg.Server.Address))
	fmt.Printf("   Metrics:  http://%s/metrics\n", displayAddr(cfg.Server.Address))
	return srv.Start(ctx)
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
