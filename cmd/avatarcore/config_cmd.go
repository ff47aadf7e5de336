package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(load loadFunc) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := load()
			if err != nil {
				return err
			}
			settings := store.AllSettings()
			if speech, ok := settings["speech"].(map[string]any); ok {
				if openai, ok := speech["openai"].(map[string]any); ok && openai["api_key"] != "" {
					openai["api_key"] = "********"
				}
			}

			out, err := yaml.Marshal(settings)
			if err != nil {
				return err
			}
			if path := store.Path(); path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", path)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the current configuration to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := load()
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			if err := store.Save(cfg, path); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration saved")
			return nil
		},
	}

	configCmd.AddCommand(showCmd, initCmd)
	return configCmd
}
