package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourorg/nearme-discovery/internal/discovery"
)

func newCategoriesCmd() *cobra.Command {
	var src sourceFlags

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the category chips derived from the feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			merchants, err := src.load(cmd.Context())
			if err != nil {
				return err
			}
			valid, _ := discovery.Sanitize(merchants)
			for _, c := range discovery.DeriveCategories(valid) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", c.Icon(), c)
			}
			return nil
		},
	}
	src.register(cmd)
	return cmd
}
