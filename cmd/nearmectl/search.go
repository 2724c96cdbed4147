package main

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourorg/nearme-discovery/internal/aggregate"
	"github.com/yourorg/nearme-discovery/internal/discovery"
	"github.com/yourorg/nearme-discovery/internal/geo"
	"github.com/yourorg/nearme-discovery/internal/model"
	"github.com/yourorg/nearme-discovery/internal/types"
)

func newSearchCmd() *cobra.Command {
	var (
		src      sourceFlags
		sel      = discovery.DefaultSelection()
		category string
		lat, lon float64
		limit    int
		asJSON   bool
		summary  bool
	)

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Rank and filter merchants like the app does",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				sel.SearchText = args[0]
			}
			if category != "" {
				sel.Category, _ = types.ParseCategory(category)
			}

			q := discovery.Query{Selection: sel}
			latSet, lonSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")
			if latSet != lonSet {
				return fmt.Errorf("--lat and --lon must be given together")
			}
			if latSet {
				loc := &model.Location{Latitude: lat, Longitude: lon}
				if !loc.Valid() {
					return fmt.Errorf("coordinates out of range: %v,%v", lat, lon)
				}
				q.UserLocation = loc
				q.DistanceFn = geo.Haversine
			}

			merchants, err := src.load(cmd.Context())
			if err != nil {
				return err
			}

			result := discovery.Discover(merchants, q)
			ranked := result.Merchants
			if limit > 0 && len(ranked) > limit {
				ranked = ranked[:limit]
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if summary {
					return enc.Encode(aggregate.Summarize(result.Merchants))
				}
				return enc.Encode(jsonSafe(ranked))
			}

			if len(result.Rejected) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d malformed records skipped (run validate for details)\n", len(result.Rejected))
			}
			if result.Empty() {
				fmt.Fprintln(out, "No merchants found")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tDISTANCE\tRATING\tTOKENS")
			for _, r := range ranked {
				fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
					r.ID, r.Name, r.Category.Icon(), r.Category,
					discovery.FormatDistance(r.Distance), stars(r.Rating),
					strings.Join(r.AcceptedTokens, ","))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if summary {
				s := aggregate.Summarize(result.Merchants)
				fmt.Fprintf(out, "\n%d merchants, average rating %.1f, median %.1f", s.Count, s.AverageRating, s.MedianRating)
				if s.NearestLabel != "" {
					fmt.Fprintf(out, ", nearest %s", s.NearestLabel)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVarP(&category, "category", "c", "", `category chip (default "All")`)
	cmd.Flags().StringVarP(&sel.Token, "token", "t", "", "only merchants accepting this token symbol")
	cmd.Flags().Float64Var(&lat, "lat", 0, "user latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "user longitude")
	cmd.Flags().Float64Var(&sel.MaxDistanceKm, "radius", 0, "maximum distance in km (0 = unlimited)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum merchants to print (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&summary, "summary", false, "print list statistics")
	return cmd
}

func stars(rating float64) string {
	s := discovery.Stars(rating)
	return strings.Repeat("★", s.Full) + strings.Repeat("½", s.Half) + strings.Repeat("☆", s.Empty)
}

// jsonSafe drops NaN distances of unlocatable merchants.
func jsonSafe(ranked []model.RankedMerchant) []model.RankedMerchant {
	out := make([]model.RankedMerchant, len(ranked))
	for i, r := range ranked {
		if r.Distance != nil && math.IsNaN(*r.Distance) {
			r.Distance = nil
		}
		out[i] = r
	}
	return out
}
