// Command ballotctl performs administrative tasks against the issuer and
// recorder datastores: migrations, election resets, tallies and retention.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ericfisherdev/ballotbox/internal/config"
)

const (
	serviceIssuer   = "issuer"
	serviceRecorder = "recorder"
)

// globalOptions are the persistent flags shared by every subcommand. Flags
// override the BALLOTBOX_DB_* environment.
type globalOptions struct {
	service string
	driver  string
	dbPath  string
	dsn     string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:          "ballotctl",
		Short:        "Administer ballotbox datastores",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	addGlobalFlags(root.PersistentFlags(), opts)

	root.AddCommand(
		newMigrateCmd(opts),
		newResetCmd(opts),
		newTallyCmd(opts),
		newPruneCmd(opts),
	)
	return root
}

func addGlobalFlags(fs *pflag.FlagSet, opts *globalOptions) {
	fs.StringVar(&opts.service, "service", serviceRecorder, "datastore to operate on: issuer or recorder")
	fs.StringVar(&opts.driver, "driver", "", "database driver: sqlite or postgres (recorder only)")
	fs.StringVar(&opts.dbPath, "db-path", "", "sqlite database file")
	fs.StringVar(&opts.dsn, "dsn", "", "postgres connection string")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
}

// database resolves the datastore settings for the selected service.
func (o *globalOptions) database() (config.Database, error) {
	var defaultPath string
	switch o.service {
	case serviceIssuer:
		defaultPath = "issuer.db"
	case serviceRecorder:
		defaultPath = "recorder.db"
	default:
		return config.Database{}, fmt.Errorf("--service must be %q or %q, got %q", serviceIssuer, serviceRecorder, o.service)
	}

	db, err := config.LoadDatabase(defaultPath, o.service == serviceRecorder)
	if err != nil {
		return config.Database{}, err
	}

	if o.driver != "" {
		db.Driver = o.driver
	}
	if o.dbPath != "" {
		db.Path = o.dbPath
	}
	if o.dsn != "" {
		db.DSN = o.dsn
	}

	switch db.Driver {
	case config.DriverSQLite:
		if db.Path == "" {
			db.Path = defaultPath
		}
	case config.DriverPostgres:
		if o.service != serviceRecorder {
			return config.Database{}, fmt.Errorf("the %s datastore is sqlite only", o.service)
		}
		if db.DSN == "" {
			return config.Database{}, fmt.Errorf("--dsn or BALLOTBOX_DB_DSN is required for postgres")
		}
	default:
		return config.Database{}, fmt.Errorf("unknown driver %q", db.Driver)
	}
	return db, nil
}
