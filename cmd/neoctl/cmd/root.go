package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pilab-dev/neoproxy/cmd/neoctl/config"
	"github.com/pilab-dev/neoproxy/log"
	"github.com/pilab-dev/neoproxy/workerclient"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Version is reported by the MCP server and `neoctl --version`.
var Version = "0.1.0"

var appLogger log.Logger

type globalFlags struct {
	workerURL string
	timeout   time.Duration
	output    string
	verbose   bool
}

// NewRootCmd builds the neoctl command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           config.AppName,
		Short:         "neoctl talks to a neoproxy worker",
		Long:          `A command-line client for logging in to the broker through a neoproxy worker, reading holdings, limits and positions, placing market orders, and serving the trading tools over MCP.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.WarnLevel
			if flags.verbose {
				level = zerolog.DebugLevel
			}
			// stdout carries command output and the MCP stream.
			appLogger = log.NewZerologAdapterWithWriter(cmd.ErrOrStderr(), level, true)

			if err := config.InitConfig(); err != nil {
				appLogger.Error(cmd.Context(), "Failed to initialize configuration", err)
				return err
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "",
		fmt.Sprintf("config file (default is $HOME/.%s/config.yaml)", config.AppName))
	rootCmd.PersistentFlags().StringVar(&flags.workerURL, "worker-url", "", "worker endpoint (overrides the current context)")
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", workerclient.DefaultTimeout, "request timeout")
	rootCmd.PersistentFlags().StringVarP(&flags.output, "output", "o", "yaml", "output format: yaml or json")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newLoginCmd(flags),
		newLogoutCmd(),
		newTradingCmd(flags, "holdings", "Show the holdings of the current session"),
		newTradingCmd(flags, "limits", "Show the funds and margin limits of the current session"),
		newTradingCmd(flags, "positions", "Show the open positions of the current session"),
		newOrderCmd(flags, "buy"),
		newOrderCmd(flags, "sell"),
		newConfigCmd(),
		newMCPCmd(flags),
	)

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if appLogger != nil {
			appLogger.Error(context.Background(), "CLI execution failed", err)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// currentContext returns the selected context, creating a "default" one on
// first use so that login works without prior setup.
func currentContext(flags *globalFlags) (*config.Context, error) {
	ctx, err := config.GetCurrentContext()
	if err == config.ErrNoContext {
		ctx = config.SetContext("default", flags.workerURL)
		config.GlobalConfig.CurrentContext = "default"
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return ctx, nil
}

func newWorkerClient(flags *globalFlags, ctx *config.Context) *workerclient.Client {
	url := ctx.WorkerURL
	if flags.workerURL != "" {
		url = flags.workerURL
	}
	return workerclient.New(url, flags.timeout)
}

// printPayload renders a JSON document in the selected output format.
func printPayload(w io.Writer, format string, payload any) error {
	if raw, ok := payload.(json.RawMessage); ok {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("unexpected response payload: %w", err)
		}
		payload = decoded
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	case "yaml", "":
		out, err := yaml.Marshal(payload)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
