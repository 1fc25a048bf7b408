package cmd

import (
	"fmt"
	"sort"

	"github.com/pilab-dev/neoproxy/cmd/neoctl/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage neoctl contexts",
	}

	var workerURL string
	setContextCmd := &cobra.Command{
		Use:   "set-context <name>",
		Short: "Create or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.SetContext(args[0], workerURL)
			if config.GlobalConfig.CurrentContext == "" {
				config.GlobalConfig.CurrentContext = args[0]
			}
			if err := config.SaveConfig(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Context '%s' saved.\n", args[0])
			return nil
		},
	}
	setContextCmd.Flags().StringVar(&workerURL, "worker-url", "", "worker endpoint")

	useContextCmd := &cobra.Command{
		Use:   "use-context <name>",
		Short: "Switch the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.UseContext(args[0]); err != nil {
				return err
			}
			if err := config.SaveConfig(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to context '%s'.\n", args[0])
			return nil
		},
	}

	getContextsCmd := &cobra.Command{
		Use:   "get-contexts",
		Short: "List contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, 0, len(config.GlobalConfig.Contexts))
			for name := range config.GlobalConfig.Contexts {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				marker := " "
				if name == config.GlobalConfig.CurrentContext {
					marker = "*"
				}
				ctx := config.GlobalConfig.Contexts[name]
				loggedIn := "no"
				if ctx.SessionID != "" {
					loggedIn = "yes"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\t%s\tlogged in: %s\n", marker, name, ctx.WorkerURL, loggedIn)
			}
			return nil
		},
	}

	configCmd.AddCommand(setContextCmd, useContextCmd, getContextsCmd)
	return configCmd
}
