package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"uttervault/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the HTTP export daemon",
	}

	var development bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run uttervaultd in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := ""
			if ctx.logLevelFlag != nil {
				level = *ctx.logLevelFlag
			}
			return daemonrun.Run(commandCtx(cmd), cfg, daemonrun.Options{
				LogLevel:    level,
				Development: development,
				Ready: func(address string) {
					fmt.Fprintf(cmd.ErrOrStderr(), "uttervaultd listening on http://%s\n", address)
				},
			})
		},
	}
	runCmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	daemonCmd.AddCommand(runCmd)
	return daemonCmd
}
