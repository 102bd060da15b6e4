package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/config"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/database"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DatabaseURL string
	RedisURL    string
	Format      string // "json" | "text"

	cfg  *config.Config
	open func(url string) (*sqlx.DB, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for netsportsctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(config.Load(), database.NewPostgres)
}

func newRootCommand(cfg *config.Config, open func(string) (*sqlx.DB, error)) *cobra.Command {
	opts := &RootOptions{cfg: cfg, open: open}

	cmd := &cobra.Command{
		Use:   "netsportsctl",
		Short: "Operations tool for the netsports referral engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string")
	cmd.PersistentFlags().StringVar(&opts.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for the bulk assignment lock (empty disables it)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewRepairCommand(opts))
	cmd.AddCommand(NewBulkAssignCommand(opts))
	cmd.AddCommand(NewReferralCodeCommand(opts))

	return cmd
}

// Execute runs the root command and exits non-zero on failure. SIGINT
// cancels the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (o *RootOptions) openDB() (*sqlx.DB, error) {
	db, err := o.open(o.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// print writes v as indented JSON, or text via the fallback.
func (o *RootOptions) print(w io.Writer, v interface{}, text func(w io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
