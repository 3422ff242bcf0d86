package main

import (
	"fmt"
	"os"

	"github.com/reposync/reposyncd/configuration"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration file utilities",
	}
	configCmd.AddCommand(newConfigVerifyCmd())
	return configCmd
}

func newConfigVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <config>",
		Short: "Parse a configuration file and report errors without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open configuration: %w", err)
			}
			defer f.Close()

			cfg, err := configuration.Parse(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d repositories, %d users\n", len(cfg.Repositories), len(cfg.Users))
			return nil
		},
	}
}
