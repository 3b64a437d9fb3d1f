package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"modelkit/internal/core"
	"modelkit/internal/records"
	"modelkit/pkg/domain"
)

func (c *cli) newCountCmd() *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count the records of an entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(svc *core.Service) error {
				n, err := domain.InQuery(cmd.Context(), svc, func(acc domain.ReadAccessor) (int, error) {
					return acc.FetchCount(domain.Query{Entity: entity})
				})
				if err != nil {
					return err
				}
				if c.jsonOut {
					return printJSON(cmd.OutOrStdout(), map[string]any{"entity": entity, "count": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", entity, n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entity, "entity", records.EntityUser, "Entity name")
	return cmd
}
