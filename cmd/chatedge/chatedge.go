// Package chatedgecmder
package chatedgecmder

import (
	"github.com/spf13/cobra"

	servecmder "github.com/coriolislabs/chatedge/cmd/chatedge/serve"
	versioncmder "github.com/coriolislabs/chatedge/cmd/version"
)

const chatedgeLongDesc string = `Chatedge is an edge proxy between browser chat clients and an
LLM completions API.

It re-streams the model's incremental output as normalized SSE while
absorbing upstream stalls, parameter rejections and timeouts:
  chatedge serve    Run the proxy server`

const chatedgeShortDesc string = "Chatedge - resilient LLM chat proxy"

func NewChatedgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatedge",
		Short: chatedgeShortDesc,
		Long:  chatedgeLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
