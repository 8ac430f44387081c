package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prospectlens/api/internal/model"
)

func newStartCmd(opts *options) *cobra.Command {
	var (
		criteria  model.Criteria
		limit     int
		noBrief   bool
		noPolling bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Create a session, discover prospects and poll until research settles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			api := opts.fetcher()

			created, err := api.CreateSession(ctx, criteria)
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			if created.IsExisting {
				fmt.Fprintf(out, "Reusing session %s\n", created.SessionID)
			} else {
				fmt.Fprintf(out, "Created session %s\n", created.SessionID)
			}

			found, err := api.DiscoverProspects(ctx, created.SessionID, model.DiscoverProspectsRequest{Limit: limit})
			if err != nil {
				return fmt.Errorf("discover prospects: %w", err)
			}
			fmt.Fprintf(out, "Discovered %d prospects, %d queued for research\n", len(found.Prospects), len(found.Jobs))

			if !noBrief {
				if _, err := api.ResearchAdvantages(ctx, created.SessionID, model.ResearchAdvantagesRequest{Deferred: true}); err != nil {
					return fmt.Errorf("request advantage brief: %w", err)
				}
			}
			if noPolling {
				return nil
			}
			return opts.runPoller(cmd, api, created.SessionID)
		},
	}

	cmd.Flags().StringSliceVar(&criteria.States, "states", nil, "two-letter states to search (required)")
	cmd.Flags().StringSliceVar(&criteria.TargetCategories, "categories", nil, "target organization categories")
	cmd.Flags().StringSliceVar(&criteria.Competitors, "competitors", nil, "known competitors; looked up when omitted")
	cmd.Flags().StringVar(&criteria.ProductDescription, "product", "", "what you sell")
	cmd.Flags().StringVar(&criteria.CompanyDomain, "domain", "", "your company's domain")
	cmd.Flags().IntVar(&limit, "limit", 10, "prospects to discover")
	cmd.Flags().BoolVar(&noBrief, "no-brief", false, "skip the advantage brief")
	cmd.Flags().BoolVar(&noPolling, "no-poll", false, "exit after queueing research")
	_ = cmd.MarkFlagRequired("states")
	return cmd
}
