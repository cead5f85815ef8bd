package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long:  "Prints the merged configuration (defaults, config file, environment) as YAML.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		redacted := *cfg
		if redacted.Geocode.GoogleAPIKey != "" {
			redacted.Geocode.GoogleAPIKey = "[redacted]"
		}
		out, err := yaml.Marshal(redacted)
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
