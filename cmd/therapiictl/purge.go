package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/therapii/api-server-go/internal/config"
	"github.com/therapii/api-server-go/internal/jobs"
	"github.com/therapii/api-server-go/internal/repository"
)

var purgeRetentionDays int

var purgeCommand = cobra.Command{
	Use:   "purge",
	Short: "Delete expired, unused invitations",
	Long: `Deletes invitations that were never redeemed and expired more than the
retention period ago. Defaults to INVITATION_RETENTION_DAYS.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		days := loadedConfig.InvitationRetentionDays
		if cmd.Flags().Changed("retention-days") {
			days = purgeRetentionDays
		}
		if days < 0 {
			return fmt.Errorf("retention-days must not be negative (got %d)", days)
		}

		db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		job := jobs.NewCleanupJob(
			repository.NewInvitationRepository(db.DB),
			time.Duration(days)*24*time.Hour,
			config.CleanupJobInterval,
		)
		count, err := job.RunOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("purge invitations: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d invitation(s)\n", count)
		return nil
	},
}

func init() {
	purgeCommand.Flags().IntVar(&purgeRetentionDays, "retention-days", 0, "keep expired invitations this many days")
}
