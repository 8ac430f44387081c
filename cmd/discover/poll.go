package main

import (
	"github.com/spf13/cobra"
)

func newPollCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "poll <session-id>",
		Short: "Poll an existing session until research settles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runPoller(cmd, opts.fetcher(), args[0])
		},
	}
}
