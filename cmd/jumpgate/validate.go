package main

import (
	"fmt"

	"github.com/spf13/cobra"

	infraconfig "github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/config"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/logging"
)

func newValidateCmd(rootFlags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "Validate a configuration file without starting the gateway",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootFlags.configPath
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(cmd, path)
		},
	}

	return cmd
}

func runValidate(cmd *cobra.Command, path string) error {
	if path == "" {
		return newCommandError("validate", "no configuration file given", fmt.Errorf("missing path"), "Pass a path argument or --config.")
	}

	loader := infraconfig.NewYAMLLoader(logging.NewNoOpLogger(), nil)
	if err := loader.Validate(cmd.Context(), path); err != nil {
		return newCommandError("validate", path, err, "Fix the reported field and run validate again.")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid\n", successStyle.Render("✓"), path)
	return nil
}
