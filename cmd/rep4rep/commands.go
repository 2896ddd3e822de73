package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rep4rep/steam-commenter/internal/service"
)

// withApp wires the services and runs fn with a context cancelled on
// SIGINT/SIGTERM.
func withApp(needsAPI bool, fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, needsAPI)
		if err != nil {
			return err
		}
		defer a.Close()

		return fn(ctx, a, args)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every account's commenting session once",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(ctx context.Context, a *app, _ []string) error {
		summary, err := a.runFleet(ctx)
		if err != nil {
			return err
		}
		logSummary(summary)
		return nil
	}),
}

var listProfilesCmd = &cobra.Command{
	Use:   "list-profiles",
	Short: "List stored accounts",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(ctx context.Context, a *app, _ []string) error {
		accounts, err := a.profiles.List(ctx)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No profiles stored. Add one with: rep4rep add-profile username:password:sharedSecret")
			return nil
		}
		fmt.Println(profilesTable(accounts, time.Now()))
		return nil
	}),
}

var authAllProfilesCmd = &cobra.Command{
	Use:   "auth-all-profiles",
	Short: "Log every stored account in and sync it with rep4rep",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(ctx context.Context, a *app, _ []string) error {
		_, err := a.profiles.AuthAll(ctx)
		return err
	}),
}

var addProfileCmd = &cobra.Command{
	Use:   "add-profile username:password:sharedSecret",
	Short: "Log a new account in and register it with rep4rep",
	Long: `Log a new account in and register it with rep4rep.

Email codes and captchas are prompted for on the terminal. The mobile
Steam Guard code is generated from the shared secret.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, args []string) error {
		creds, err := service.ParseAccountLine(args[0])
		if err != nil {
			return err
		}
		return a.profiles.AddProfile(ctx, creds)
	}),
}

var removeProfileCmd = &cobra.Command{
	Use:   "remove-profile username",
	Short: "Delete a stored account",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(false, func(ctx context.Context, a *app, args []string) error {
		_, err := a.profiles.RemoveProfile(ctx, args[0])
		return err
	}),
}

var addProfilesFromFileCmd = &cobra.Command{
	Use:   "add-profiles-from-file [file]",
	Short: "Add every account listed in the accounts file",
	Long: `Add every account listed in the accounts file, one
username:password:sharedSecret record per line. Defaults to ACCOUNTS_FILE.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, args []string) error {
		_, err := a.profiles.AddFromFile(ctx, accountsFile(args))
		return err
	}),
}

var addProfilesAndRunCmd = &cobra.Command{
	Use:   "add-profiles-and-run [file]",
	Short: "Add each account from the accounts file and run the fleet after each one",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, args []string) error {
		_, err := a.profiles.AddAndRun(ctx, accountsFile(args), func(ctx context.Context) error {
			summary, err := a.runFleet(ctx)
			if err != nil {
				return err
			}
			logSummary(summary)
			return nil
		})
		return err
	}),
}

var checkAndSyncProfilesCmd = &cobra.Command{
	Use:   "check-and-sync-profiles",
	Short: "Register every stored steam id with rep4rep without logging in",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(ctx context.Context, a *app, _ []string) error {
		_, err := a.profiles.CheckAndSync(ctx)
		return err
	}),
}

var checkCommentAvailabilityCmd = &cobra.Command{
	Use:   "check-comment-availability",
	Short: "Show how many comments each account can still post today",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(ctx context.Context, a *app, _ []string) error {
		rows, err := a.profiles.CommentAvailability(ctx)
		if err != nil {
			return err
		}
		fmt.Println(availabilityTable(rows))
		return nil
	}),
}

func accountsFile(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return cfg.AccountsFile
}

func logSummary(summary *service.FleetSummary) {
	for _, r := range summary.Accounts {
		event := log.Info()
		if r.Outcome == service.OutcomeFailed {
			event = log.Warn()
		}
		event.
			Str("account", r.Username).
			Str("outcome", string(r.Outcome)).
			Int("comments", r.Comments).
			Str("message", r.Message).
			Msg("account summary")
	}
	log.Info().
		Int("accounts", len(summary.Accounts)).
		Int("comments", summary.CommentsPosted()).
		Int("completed", summary.Count(service.OutcomeCompleted)).
		Int("failed", summary.Count(service.OutcomeFailed)).
		Msg("run finished")
}
