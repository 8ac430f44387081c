package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/poller"
)

type options struct {
	apiURL  string
	token   string
	timeout time.Duration
	asJSON  bool
	verbose bool

	// background polls at the long interval, as when stdout is not a terminal.
	background bool

	short       time.Duration
	medium      time.Duration
	long        time.Duration
	maxDuration time.Duration
	maxErrors   int
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:           "discover",
		Short:         "Run prospect discovery sessions from the terminal",
		Long:          "discover creates discovery sessions against the ProspectLens API and polls them until every dossier has settled.",
		SilenceUsage:  true,
		SilenceErrors: false,
		// Flags win over PROSPECTLENS_API and PROSPECTLENS_TOKEN.
		PersistentPreRunE: func(*cobra.Command, []string) error {
			opts.apiURL = v.GetString("api")
			opts.token = v.GetString("token")
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("api", "http://localhost:8000", "API base URL (env PROSPECTLENS_API)")
	flags.String("token", "", "bearer token; omit for anonymous sessions (env PROSPECTLENS_TOKEN)")
	flags.DurationVar(&opts.timeout, "request-timeout", 2*time.Minute, "per-request timeout")
	flags.BoolVar(&opts.asJSON, "json", false, "print the final snapshot as JSON")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every poll")
	flags.BoolVar(&opts.background, "background", false, "poll slowly, as when nobody is watching")

	for key, env := range map[string]string{"api": "PROSPECTLENS_API", "token": "PROSPECTLENS_TOKEN"} {
		_ = v.BindPFlag(key, flags.Lookup(key))
		_ = v.BindEnv(key, env)
	}

	defaults := poller.DefaultConfig()
	flags.DurationVar(&opts.short, "short", defaults.Short, "poll delay while jobs are active")
	flags.DurationVar(&opts.medium, "medium", defaults.Medium, "poll delay while progress is below half")
	flags.DurationVar(&opts.long, "long", defaults.Long, "poll delay otherwise")
	flags.DurationVar(&opts.maxDuration, "max-duration", defaults.MaxDuration, "give up after this long")
	flags.IntVar(&opts.maxErrors, "max-errors", defaults.MaxErrors, "give up after this many consecutive failed polls")

	rootCmd.AddCommand(
		newStartCmd(opts),
		newPollCmd(opts),
	)
	return rootCmd
}

func (o *options) fetcher() *poller.HTTPFetcher {
	return poller.NewHTTPFetcher(o.apiURL, o.token, o.timeout)
}

func (o *options) logger(w io.Writer) *zap.Logger {
	level := zapcore.WarnLevel
	if o.verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

// runPoller polls sessionID to completion, printing one line per poll.
func (o *options) runPoller(cmd *cobra.Command, fetcher poller.Fetcher, sessionID string) error {
	out := cmd.OutOrStdout()
	log := o.logger(cmd.ErrOrStderr())
	defer func() { _ = log.Sync() }()

	cfg := poller.Config{
		Short:       o.short,
		Medium:      o.medium,
		Long:        o.long,
		MaxDuration: o.maxDuration,
		MaxErrors:   o.maxErrors,
		Hidden:      func() bool { return o.hidden(out) },
		OnUpdate: func(s *model.Snapshot) {
			if !o.asJSON {
				printProgress(out, s)
			}
		},
		OnComplete: func(s *model.Snapshot) {
			if !o.asJSON {
				printSummary(out, s)
			}
		},
	}

	snap, err := poller.New(fetcher, cfg, log).Run(cmd.Context(), sessionID)
	if err != nil {
		return fmt.Errorf("poll session %s: %w", sessionID, err)
	}
	if o.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	return nil
}

// hidden reports whether polling output goes nowhere a person is watching.
func (o *options) hidden(w io.Writer) bool {
	if o.background {
		return true
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

func printProgress(w io.Writer, s *model.Snapshot) {
	done := 0
	for _, j := range s.Jobs {
		if j.Status.Terminal() {
			done++
		}
	}
	fmt.Fprintf(w, "[%3d%%] %s  jobs %d/%d  brief %s\n",
		s.Progress, statusColor(string(s.Session.Status)), done, len(s.Jobs), s.AdvantageBriefStatus)
}

func printSummary(w io.Writer, s *model.Snapshot) {
	fmt.Fprintln(w)
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Session %s: %s\n", s.Session.ID, s.Session.Status)
	for _, p := range s.Prospects {
		score := "-"
		if p.Score != nil {
			score = fmt.Sprintf("%d", *p.Score)
		}
		line := fmt.Sprintf("  %-40s %-3s score %-3s %s", p.Name, p.State, score, statusColor(string(p.Status)))
		if p.Error != nil {
			line += "  " + *p.Error
		}
		fmt.Fprintln(w, line)
	}
	if s.AdvantageBrief != nil && s.AdvantageBrief.PositioningSummary != "" {
		bold.Fprintln(w, "Positioning")
		fmt.Fprintf(w, "  %s\n", s.AdvantageBrief.PositioningSummary)
	}
}

func statusColor(status string) string {
	switch status {
	case "ready", "complete":
		return color.GreenString(status)
	case "failed":
		return color.RedString(status)
	case "researching", "running":
		return color.YellowString(status)
	default:
		return status
	}
}
