package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourorg/nearme-discovery/internal/circuitbreaker"
	"github.com/yourorg/nearme-discovery/internal/discovery"
)

func newValidateCmd() *cobra.Command {
	var (
		src         sourceFlags
		minCount    int
		maxRejected float64
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report malformed merchant records",
		Long: `Runs boundary validation over the feed and lists every rejected record.
Exits non-zero when the feed would trip the server's circuit breaker.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			merchants, err := src.load(cmd.Context())
			if err != nil {
				return err
			}

			valid, rejected := discovery.Sanitize(merchants)
			out := cmd.OutOrStdout()
			for _, re := range rejected {
				fmt.Fprintf(out, "#%d\t%q\t%s\n", re.Index, re.ID, re.Reason)
			}
			fmt.Fprintf(out, "%d valid, %d rejected\n", len(valid), len(rejected))

			breaker := circuitbreaker.New(circuitbreaker.Thresholds{
				MinMerchants:     minCount,
				MaxRejectedRatio: maxRejected,
			})
			if err := breaker.Check(valid, len(rejected)); err != nil {
				return fmt.Errorf("feed rejected: %w", err)
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().IntVar(&minCount, "min-merchants", 1, "minimum number of valid merchants")
	cmd.Flags().Float64Var(&maxRejected, "max-rejected-ratio", 0.5, "maximum share of malformed records")
	return cmd
}
