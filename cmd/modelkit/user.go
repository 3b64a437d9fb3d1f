package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modelkit/internal/core"
	"modelkit/internal/records"
	"modelkit/pkg/domain"
)

func (c *cli) newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user records",
	}
	cmd.AddCommand(c.newUserAddCmd(), c.newUserListCmd(), c.newUserDeleteCmd())
	return cmd
}

type userView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Age    *int   `json:"age,omitempty"`
	Gender string `json:"gender"`
}

func viewOf(u *records.User) userView {
	return userView{ID: u.RecordID().Key, Name: u.Name, Age: u.Age, Gender: u.Gender.String()}
}

func (c *cli) newUserAddCmd() *cobra.Command {
	var (
		name   string
		age    int
		gender string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Insert a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			g, err := records.ParseGender(gender)
			if err != nil {
				return err
			}
			var agePtr *int
			if cmd.Flags().Changed("age") {
				agePtr = records.IntPtr(age)
			}
			return c.withService(cmd, func(svc *core.Service) error {
				user := records.NewUser(name, agePtr, g)
				if err := svc.Transaction(cmd.Context(), func(acc domain.Accessor) error {
					return acc.Insert(user)
				}); err != nil {
					return err
				}
				if c.jsonOut {
					return printJSON(cmd.OutOrStdout(), viewOf(user))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", user.Name, user.RecordID().Key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "User name")
	cmd.Flags().IntVar(&age, "age", 0, "User age (omitted when unset)")
	cmd.Flags().StringVar(&gender, "gender", records.GenderUnspecified.String(), "unknown, male, female or unspecified")
	return cmd
}

func (c *cli) newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users ordered by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(svc *core.Service) error {
				users, err := domain.InQuery(cmd.Context(), svc, func(acc domain.ReadAccessor) ([]userView, error) {
					found, err := domain.Fetch[records.User](acc, records.Users())
					if err != nil {
						return nil, err
					}
					out := make([]userView, len(found))
					for i, u := range found {
						out[i] = viewOf(u)
					}
					return out, nil
				})
				if err != nil {
					return err
				}
				if c.jsonOut {
					return printJSON(cmd.OutOrStdout(), users)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tAGE\tGENDER\tID")
				for _, u := range users {
					age := "-"
					if u.Age != nil {
						age = fmt.Sprint(*u.Age)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Name, age, u.Gender, u.ID)
				}
				return w.Flush()
			})
		},
	}
}

func (c *cli) newUserDeleteCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every user with the given name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			return c.withService(cmd, func(svc *core.Service) error {
				changes, err := svc.TransactionChanges(cmd.Context(), func(acc domain.Accessor) error {
					return domain.DeleteWhere[records.User](acc, records.UsersNamed(name))
				})
				if err != nil {
					return err
				}
				n := len(changes.ForEntity(records.EntityUser).Deleted)
				if c.jsonOut {
					return printJSON(cmd.OutOrStdout(), map[string]any{"name": name, "deleted": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d user(s) named %s\n", n, name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "User name to delete")
	return cmd
}
