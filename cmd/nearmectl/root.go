package main

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourorg/nearme-discovery/internal/fetch"
	"github.com/yourorg/nearme-discovery/internal/logging"
	"github.com/yourorg/nearme-discovery/internal/model"
)

// sourceFlags are shared by every command that reads merchants.
type sourceFlags struct {
	files    []string
	storeURL string
	apiKey   string
	timeout  time.Duration
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.files, "file", "f", nil, "YAML or JSON merchant seed file (repeatable)")
	cmd.Flags().StringVar(&f.storeURL, "store", "", "merchant store REST base URL")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "merchant store API key")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 15*time.Second, "fetch timeout")
}

// load fetches the raw merchant list, store first.
func (f *sourceFlags) load(ctx context.Context) ([]model.Merchant, error) {
	var sources []fetch.Source
	if f.storeURL != "" {
		sources = append(sources, fetch.NewStoreClient(f.storeURL, f.apiKey))
	}
	for _, path := range f.files {
		sources = append(sources, fetch.NewFileSource(path))
	}
	if len(sources) == 0 {
		return nil, errors.New("no merchant source: pass --file or --store")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return fetch.NewMultiSource(0, sources...).Fetch(ctx)
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "nearmectl",
		Short:         "Inspect NearMe merchant feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if verbose {
				level = "debug"
			}
			logging.Setup(logging.Options{Level: level})
			logrus.SetOutput(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newSearchCmd(),
		newCategoriesCmd(),
		newValidateCmd(),
		newVerifyCmd(),
	)
	return root
}
