package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/referral"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/database"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/lock"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/migrations"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded SQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)

			if err := database.Migrate(cmd.Context(), db, migrations.FS); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), map[string]bool{"migrated": true}, func(w io.Writer) {
				fmt.Fprintln(w, "schema is up to date")
			})
		},
	}
}

// NewRepairCommand creates the repair-balances command.
func NewRepairCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repair-balances",
		Short: "Create ledger rows for users that have none",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := opts.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			created, err := svc.RepairMissingBalances(cmd.Context())
			if err != nil {
				return err
			}
			if created == nil {
				created = []uuid.UUID{}
			}
			return opts.print(cmd.OutOrStdout(), map[string]interface{}{"created": created}, func(w io.Writer) {
				fmt.Fprintf(w, "repaired %d balance rows\n", len(created))
			})
		},
	}
}

// NewBulkAssignCommand creates the bulk-assign command.
func NewBulkAssignCommand(opts *RootOptions) *cobra.Command {
	var adminID string

	cmd := &cobra.Command{
		Use:   "bulk-assign",
		Short: "Spread unassigned users over agents round-robin",
		Example: `  netsportsctl bulk-assign --admin 6f1c1f7e-1d7c-4a4e-9a53-0a4a2f7d3b10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(adminID)
			if err != nil {
				return fmt.Errorf("invalid --admin %q: %w", adminID, err)
			}

			svc, closeFn, err := opts.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := svc.BulkAutoAssign(cmd.Context(), id)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintln(w, result.Message)
			})
		},
	}
	cmd.Flags().StringVar(&adminID, "admin", "", "id of the requesting admin (required)")
	_ = cmd.MarkFlagRequired("admin")
	return cmd
}

// NewReferralCodeCommand creates the referral-code command.
func NewReferralCodeCommand(opts *RootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "referral-code",
		Short: "Print a user's referral code, issuing one if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user %q: %w", userID, err)
			}

			svc, closeFn, err := opts.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			issued, err := svc.GetOrCreateCode(cmd.Context(), id)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), issued.Code, func(w io.Writer) {
				fmt.Fprintln(w, issued.Code.ReferralCode)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// engine builds a referral service on fresh connections. closeFn releases them.
func (o *RootOptions) engine(ctx context.Context) (*referral.Service, func(), error) {
	db, err := o.openDB()
	if err != nil {
		return nil, nil, err
	}

	redisClient, err := database.NewRedis(ctx, o.RedisURL)
	if err != nil {
		database.ClosePostgres(db)
		return nil, nil, err
	}

	svc := referral.NewService(referral.NewPostgresStore(db), lock.NewLocker(redisClient), referral.Config{
		WelcomeCoins: o.cfg.WelcomeCoins,
		RewardAmount: o.cfg.ReferralReward,
		BulkLockTTL:  o.cfg.BulkAssignLockTTL,
	})
	closeFn := func() {
		database.CloseRedis(redisClient)
		database.ClosePostgres(db)
	}
	return svc, closeFn, nil
}
