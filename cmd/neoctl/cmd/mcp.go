package cmd

import (
	"github.com/pilab-dev/neoproxy/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Model Context Protocol tools",
	}

	var sessionID string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trading tools over stdio",
		Long: `Serves get_holdings, get_limits, get_positions, buy_order and sell_order to an
MCP client over stdin and stdout. Every tool call uses the session of the
current context unless --session-id is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			currentCtx, err := currentContext(flags)
			if err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = currentCtx.SessionID
			}
			if sessionID == "" {
				return errNotLoggedIn
			}

			client := newWorkerClient(flags, currentCtx)
			appLogger.Info(cmd.Context(), "Serving MCP tools over stdio", map[string]interface{}{"worker_url": currentCtx.WorkerURL})

			return mcp.NewServer(client, sessionID, Version).Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	serveCmd.Flags().StringVar(&sessionID, "session-id", "", "trading session id (defaults to the current context's)")

	mcpCmd.AddCommand(serveCmd)
	return mcpCmd
}
