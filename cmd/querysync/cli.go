package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/arthur-debert/querysync/querysync/catalog"
	"github.com/arthur-debert/querysync/querysync/registry"
	"github.com/arthur-debert/querysync/querysync/storage"
	"github.com/arthur-debert/querysync/querysync/store"
)

// CLI is the querysync command line. Settings come from flags, QUERYSYNC_*
// environment variables (optionally from a .env file) and querysync.yaml,
// in that order of precedence.
type CLI struct {
	rootCmd   *cobra.Command
	viperInst *viper.Viper
	out       io.Writer
	errOut    io.Writer

	logger  *slog.Logger
	logFile io.Closer
}

// NewCLI creates the command tree writing to out and errOut
func NewCLI(out, errOut io.Writer) *CLI {
	cli := &CLI{
		viperInst: viper.New(),
		out:       out,
		errOut:    errOut,
		logger:    slog.Default(),
	}
	cli.setupViperConfig()
	cli.createRootCommand()
	cli.addCommands()
	return cli
}

// Execute runs the command line with args
func (cli *CLI) Execute(ctx context.Context, args []string) error {
	cli.rootCmd.SetArgs(args)
	cli.rootCmd.SetOut(cli.out)
	cli.rootCmd.SetErr(cli.errOut)
	defer cli.closeLog()
	return cli.rootCmd.ExecuteContext(ctx)
}

func (cli *CLI) setupViperConfig() {
	// a missing .env file is fine
	_ = godotenv.Load()

	if configFile := os.Getenv("QUERYSYNC_CONFIG"); configFile != "" {
		cli.viperInst.SetConfigFile(configFile)
	} else {
		cli.viperInst.SetConfigName(appName)
		cli.viperInst.SetConfigType("yaml")
		cli.viperInst.AddConfigPath(".")
		cli.viperInst.AddConfigPath("$HOME/.querysync")
		cli.viperInst.AddConfigPath("/etc/querysync")
	}

	cli.viperInst.SetEnvPrefix("QUERYSYNC")
	cli.viperInst.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cli.viperInst.AutomaticEnv()

	_ = cli.viperInst.ReadInConfig()
}

func (cli *CLI) createRootCommand() {
	cli.rootCmd = &cobra.Command{
		Use:   appName,
		Short: "Query state synchronization demo: URL codec, state cache and list server",
		Long: `querysync keeps list-view query state (filters, sorting, pagination,
layout and tab) in agreement between the URL, a persisted cache and route
defaults.

Configuration sources (in order of precedence):
  1. Command line flags
  2. Environment variables (QUERYSYNC_*), also read from ./.env
  3. Configuration file: QUERYSYNC_CONFIG, ./querysync.yaml,
     ~/.querysync/querysync.yaml or /etc/querysync/querysync.yaml

Examples:
  querysync encode '{"filter":{"role":"admin"},"pagination":{"page":2,"pageSize":20}}'
  querysync decode '/users?filter[role]=admin&pagination[page]=2'
  querysync state set /products layout list
  querysync list users 'filter[role]=admin&sorts[0][key]=name&sorts[0][order]=desc'
  querysync serve --addr :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = cli.viperInst.BindPFlags(cmd.Flags())

			if f := NewOutputFormatter(cli.viperInst.GetString("format")); !f.Valid() {
				return NewValidationError("parse flags", "format", cli.viperInst.GetString("format"),
					"Use one of: table, json, yaml")
			}

			logger, logFile, err := initLogging(
				cli.viperInst.GetString("log-level"),
				cli.viperInst.GetBool("verbose"),
				cli.errOut)
			if err != nil {
				// logging is best effort; commands still run
				fmt.Fprintf(cli.errOut, "Warning: %v\n", err)
				return nil
			}
			cli.logger = logger
			cli.logFile = logFile
			return nil
		},
	}
	cli.addGlobalFlags()
}

func (cli *CLI) addGlobalFlags() {
	flags := cli.rootCmd.PersistentFlags()
	flags.String("cache", filepath.Join(getXDGCacheDir(), "state.json"), "Persisted query state file")
	flags.String("routes", "", "YAML file with additional routes")
	flags.StringP("format", "f", "table", "Output format (table|json|yaml)")
	flags.String("log-level", "warn", "Log level (debug|info|warn|error)")
	flags.BoolP("verbose", "v", false, "Also log to stderr")

	for _, flag := range []string{"cache", "routes", "format", "log-level", "verbose"} {
		_ = cli.viperInst.BindPFlag(flag, flags.Lookup(flag))
	}
}

func (cli *CLI) addCommands() {
	cli.addServeCommand()
	cli.addRoutesCommand()
	cli.addCodecCommands()
	cli.addStateCommand()
	cli.addListCommand()
	cli.addConfigCommand()
}

func (cli *CLI) closeLog() {
	if cli.logFile != nil {
		_ = cli.logFile.Close()
		cli.logFile = nil
	}
}

func (cli *CLI) formatter() *OutputFormatter {
	return NewOutputFormatter(cli.viperInst.GetString("format"))
}

func (cli *CLI) write(t Table) error {
	return cli.formatter().Write(cli.out, t)
}

// registry returns the built-in routes, extended by the routes file when
// one is configured
func (cli *CLI) registry() (*registry.Registry, error) {
	reg := registry.Builtin()
	file := cli.viperInst.GetString("routes")
	if file == "" {
		return reg, nil
	}
	ext, err := reg.LoadFile(file)
	if err != nil {
		return nil, NewConfigError("load routes", err,
			"Check the routes file: each route needs a path starting with '/'",
			CommonSuggestions.CheckConfig)
	}
	cli.logger.Debug("routes loaded", "file", file, "paths", ext.Paths())
	return ext, nil
}

func (cli *CLI) storage() *storage.JSONStorage {
	return storage.NewJSONStorage(cli.viperInst.GetString("cache"), storage.WithLogger(cli.logger))
}

// openStore builds and hydrates the store persisted under the default key
func (cli *CLI) openStore(ctx context.Context) (*store.Store, func(), error) {
	reg, err := cli.registry()
	if err != nil {
		return nil, nil, err
	}
	st := cli.storage()
	s := store.New(reg, store.WithStorage(st), store.WithLogger(cli.logger))
	if err := s.Hydrate(ctx); err != nil {
		fmt.Fprintf(cli.errOut, "Warning: persisted state could not be loaded: %v\n", err)
	}
	return s, func() { _ = st.Close() }, nil
}

func (cli *CLI) catalog() (*catalog.Catalog, error) {
	return catalog.New(
		catalog.WithSeed(cli.viperInst.GetUint64("seed")),
		catalog.WithProductCount(cli.viperInst.GetInt("products")),
		catalog.WithExtraUsers(cli.viperInst.GetInt("extra-users")),
		catalog.WithLatency(cli.viperInst.GetDuration("latency")),
		catalog.WithLogger(cli.logger),
	)
}

// addCatalogFlags adds the dataset generation flags to fs
func addCatalogFlags(fs *pflag.FlagSet) {
	fs.Uint64("seed", 42, "Seed for generated records")
	fs.Int("products", 200, "Number of generated products")
	fs.Int("extra-users", 0, "Generated users added to the demo users")
	fs.Duration("latency", 0, "Simulated latency of every dataset fetch")
}

// requireRoute normalizes path and checks that reg knows it
func requireRoute(reg *registry.Registry, operation, path string) (string, error) {
	path = registry.NormalizePath(path)
	if !reg.Has(path) {
		return "", NewNotFoundError(operation, "route", path, CommonSuggestions.CheckRoutes)
	}
	return path, nil
}
