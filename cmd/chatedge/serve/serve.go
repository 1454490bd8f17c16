// Package servecmder provides the serve command that runs the proxy server.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coriolislabs/chatedge/pkg/config"
	"github.com/coriolislabs/chatedge/pkg/logger"
	"github.com/coriolislabs/chatedge/proxy"
)

type ServeCommander struct {
	listen string
	debug  bool
	logger *zap.Logger
}

const serveLongDesc string = `Run the chatedge proxy server.

The proxy accepts chat requests from browser clients, forwards them to the
configured completions API and re-streams the answer as SSE. Configuration
is read from the environment (CHATEDGE_* variables, .env honored); flags
override it.`

const serveShortDesc string = "Run the chatedge proxy server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (overrides CHATEDGE_LISTEN)")

	return cmd
}

func (c *ServeCommander) run(cmd *cobra.Command) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("listen") {
		settings.ListenAddr = c.listen
	}

	if settings.APIKey == "" {
		c.logger.Warn("no upstream API key configured; chat requests will fail until one is set")
	}

	p := proxy.New(settings, c.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		c.logger.Info("shutting down", zap.String("signal", sig.String()))
		return p.Close()
	}
}
