package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foodscout/internal/auth"
	"github.com/xkilldash9x/foodscout/internal/config"
	"github.com/xkilldash9x/foodscout/internal/observability"
	"github.com/xkilldash9x/foodscout/internal/platform"
	"github.com/xkilldash9x/foodscout/internal/scrape"
)

const (
	promptUserID   = "User ID (for session reuse)"
	promptEmail    = "Email (leave empty to rely on the stored session)"
	promptPassword = "Password"
)

type scrapeOptions struct {
	Platform    string
	Query       string
	Location    string
	UserID      string
	Email       string
	Password    string
	CookiesFile string
}

func newScrapeCmd(factory ComponentFactory) *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Search a delivery platform and print the listings as JSON",
		Long: `Opens a browser, restores or establishes a signed-in session, sets the
delivery location and searches for the query. Results are printed to stdout.

When a captcha or one-time code is shown, solve it in the browser window and
press Enter in the terminal to continue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), cmd.OutOrStdout(), factory, config.Get(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Platform, "platform", "p", platform.Foodpanda.Name, "platform to search ("+strings.Join(platform.Names(), ", ")+")")
	f.StringVarP(&opts.Query, "query", "q", "", "restaurant or cuisine to search for")
	f.StringVarP(&opts.Location, "location", "l", "", "delivery address")
	f.StringVarP(&opts.UserID, "user", "u", "", "user id the stored session is kept under")
	f.StringVar(&opts.Email, "email", "", "account email for a manual login")
	f.StringVar(&opts.Password, "password", "", "account password (prompted without echo when omitted)")
	f.StringVar(&opts.CookiesFile, "cookies-file", "", "exported cookie file to try before the stored session")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func runScrape(ctx context.Context, out io.Writer, factory ComponentFactory, cfg *config.Config, opts *scrapeOptions) error {
	logger := observability.GetLogger()

	if _, err := platform.Lookup(opts.Platform); err != nil {
		return err
	}

	comps, err := factory.Create(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Shutdown()

	creds, err := resolveCredentials(ctx, comps.Operator, opts)
	if err != nil {
		return err
	}

	controller := scrape.NewController(comps.Browser, comps.Store, comps.Operator, comps.Fs, cfg, logger)
	results, err := controller.Run(ctx, scrape.Request{
		Platform:    opts.Platform,
		Query:       opts.Query,
		Location:    opts.Location,
		Credentials: creds,
		CookiesFile: opts.CookiesFile,
	})
	if err != nil {
		if scrape.IsSelectorExhausted(err) {
			logger.Warn("The page layout may have changed; see the diagnostic screenshot.",
				zap.String("path", cfg.ErrorScreenshotPath(opts.Platform)))
		}
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	if comps.Sink != nil {
		runID := uuid.NewString()
		if err := comps.Sink.Write(ctx, runID, results); err != nil {
			return fmt.Errorf("failed to persist results: %w", err)
		}
		logger.Info("Results persisted.", zap.String("run_id", runID))
	}
	return nil
}

// resolveCredentials asks for whatever was not given as a flag, but only when
// someone is at the terminal. The user id defaults to the email.
func resolveCredentials(ctx context.Context, p Prompter, opts *scrapeOptions) (auth.Credentials, error) {
	creds := auth.Credentials{UserID: opts.UserID, Email: opts.Email, Password: opts.Password}
	interactive := p != nil && p.Interactive()

	var err error
	if creds.UserID == "" && interactive {
		if creds.UserID, err = p.Prompt(ctx, promptUserID); err != nil {
			return creds, err
		}
	}
	if creds.Email == "" && interactive {
		if creds.Email, err = p.Prompt(ctx, promptEmail); err != nil {
			return creds, err
		}
	}
	if creds.Password == "" && creds.Email != "" && interactive {
		if creds.Password, err = p.Password(ctx, promptPassword); err != nil {
			return creds, err
		}
	}
	if creds.UserID == "" {
		creds.UserID = creds.Email
	}
	if creds.UserID == "" {
		return creds, fmt.Errorf("a user id is required to look up the stored session (use --user)")
	}
	return creds, nil
}
