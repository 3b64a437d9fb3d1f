package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"modelkit/internal/core"
	"modelkit/internal/records"
	"modelkit/pkg/domain"
)

func (c *cli) newIDsCmd() *cobra.Command {
	var (
		entity        string
		offset, limit int
		batch         int
	)
	cmd := &cobra.Command{
		Use:   "ids",
		Short: "List record identities of an entity in key order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if batch <= 0 {
				return fmt.Errorf("--batch must be positive, got %d", batch)
			}
			return c.withService(cmd, func(svc *core.Service) error {
				q := domain.Query{Entity: entity, Offset: offset, Limit: limit}
				ids, err := domain.InQuery(cmd.Context(), svc, func(acc domain.ReadAccessor) ([]domain.RecordID, error) {
					paged, err := acc.FetchIdentifiersBatched(q, batch)
					if err != nil {
						return nil, err
					}
					out := make([]domain.RecordID, 0, paged.Len())
					for id, err := range paged.All() {
						if err != nil {
							return nil, err
						}
						out = append(out, id)
					}
					return out, nil
				})
				if err != nil {
					return err
				}
				if c.jsonOut {
					keys := make([]string, len(ids))
					for i, id := range ids {
						keys[i] = id.Key
					}
					return printJSON(cmd.OutOrStdout(), map[string]any{"entity": entity, "ids": keys})
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id.Key)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entity, "entity", records.EntityUser, "Entity name")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many identities")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum identities to list (0 = all)")
	cmd.Flags().IntVar(&batch, "batch", 100, "Identities fetched per page")
	return cmd
}
