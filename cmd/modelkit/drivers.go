package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"modelkit/internal/config"
)

func (c *cli) newDriversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List storage drivers and show the configured one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			drivers := config.StorageDrivers()
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"configured": cfg.Storage.Driver,
					"available":  drivers,
				})
			}
			for _, d := range drivers {
				marker := " "
				if d == cfg.Storage.Driver {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, d)
			}
			return nil
		},
	}
}
