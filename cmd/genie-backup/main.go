package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/genie-ops/genie-backup/internal/app"
	"github.com/genie-ops/genie-backup/internal/databricks"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "genie-backup",
		Short:         "Back up Databricks Genie space configurations to git",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.LoadDotEnv()
		},
	}

	root.AddCommand(newRunCmd(), newVerifyCmd(), newSpacesCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var cfg app.Config

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch the Genie space configuration and commit it to the repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Finalize(); err != nil {
				return err
			}

			runner, err := app.NewRunner(cfg)
			if err != nil {
				return err
			}

			return runner.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.SpaceID, "space-id", "", "Genie space ID to back up (required)")
	flags.StringVar(&cfg.SecretScope, "secret-scope", "", "secret scope holding the git token (required)")
	flags.StringVar(&cfg.SecretKey, "secret-key", "", "secret key holding the git token (required)")
	flags.StringVar(&cfg.GitUsername, "git-username", "", "commit author name (default genie-backup-bot)")
	flags.StringVar(&cfg.GitEmail, "git-email", "", "commit author email (default bot@company.com)")
	flags.StringVar(&cfg.GitBranch, "git-branch", "", "branch to push to (default: remote default branch)")
	flags.StringVar(&cfg.RepoDir, "repo-dir", "", "repository checkout directory (default: working directory)")
	flags.StringVar(&cfg.SnapshotDir, "snapshot-dir", "", "snapshot directory relative to the repository (default genie_configs)")
	flags.BoolVar(&cfg.AllowEmptyCommit, "allow-empty-commit", false, "commit even when the configuration is unchanged")
	flags.BoolVar(&cfg.DryRun, "dry-run", false, "fetch and write the snapshot without touching git state")
	flags.StringVar(&cfg.LogLevel, "log-level", "", "log level: debug, info, warn, error (default info)")
	flags.StringVar(&cfg.LogFormat, "log-format", "", "log format: text or json (default text)")
	flags.StringVar(&cfg.ReportFile, "report-file", "", "path for a JSON run report (default $GENIE_BACKUP_REPORT)")

	return cmd
}

func newVerifyCmd() *cobra.Command {
	var spaceID string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Fetch a Genie space configuration without any git side effects",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := databricks.NewClientFromEnv()
			if err != nil {
				return err
			}

			if spaceID == "" {
				summaries, err := client.ListSpaces(ctx)
				if err != nil {
					return fmt.Errorf("list genie spaces: %w", err)
				}
				if len(summaries) == 0 {
					return fmt.Errorf("no genie spaces found in workspace %s", client.Host())
				}
				spaceID = summaries[0].SpaceID
				fmt.Fprintf(cmd.OutOrStdout(), "No --space-id given, using first listed space %s\n", spaceID)
			}

			config, err := client.GetSpace(ctx, spaceID)
			if err != nil {
				return fmt.Errorf("fetch genie space %s: %w", spaceID, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Space:          %s\n", config.SpaceID)
			fmt.Fprintf(out, "Title:          %s\n", config.Title)
			fmt.Fprintf(out, "Instructions:   %d characters\n", len(config.Instructions))
			fmt.Fprintf(out, "Trusted assets: %d\n", len(config.TrustedAssets))
			for _, asset := range config.TrustedAssets {
				fmt.Fprintf(out, "  - %s\n", asset)
			}
			fmt.Fprintf(out, "Example SQL:    %d statements\n", len(config.ExampleSQL))
			return nil
		},
	}

	cmd.Flags().StringVar(&spaceID, "space-id", "", "Genie space ID (default: first listed space)")

	return cmd
}

func newSpacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "spaces",
		Short: "List Genie spaces in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := databricks.NewClientFromEnv()
			if err != nil {
				return err
			}

			summaries, err := client.ListSpaces(cmd.Context())
			if err != nil {
				return fmt.Errorf("list genie spaces: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, s := range summaries {
				if s.Description != "" {
					fmt.Fprintf(out, "%s\t%s\t%s\n", s.SpaceID, s.Title, s.Description)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", s.SpaceID, s.Title)
			}
			return nil
		},
	}
}
