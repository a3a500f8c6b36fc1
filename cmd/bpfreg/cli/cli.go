package cli

import (
	"context"
	"log/slog"
	"os"
	"reflect"

	"github.com/alecthomas/kong"

	"github.com/frobware/bpfreg/config"
	"github.com/frobware/bpfreg/logging"
	"github.com/frobware/bpfreg/store"
	"github.com/frobware/bpfreg/store/sqlite"
)

// CLI is the root command structure for bpfreg.
type CLI struct {
	DB        DBPath `name:"db" help:"SQLite database path (default ${default_db_path}; set BPFREG_STATE_DIR to relocate)."`
	Log       string `name:"log" help:"Log spec (e.g., 'info,store=debug')." env:"BPFREG_LOG"`
	LogFormat string `name:"log-format" help:"Log format (text or json)." env:"BPFREG_LOG_FORMAT" default:"text"`

	Import  ImportCmd  `cmd:"" help:"Bulk-import programs, maps and links from JSON documents."`
	Inspect InspectCmd `cmd:"" help:"Dump raw registry tables."`
	Seed    SeedCmd    `cmd:"" help:"Populate the registry with a demonstration workload."`
	List    ListCmd    `cmd:"" help:"List registered programs, links or maps."`
	Get     GetCmd     `cmd:"" help:"Get details of one registered entity."`
}

// KongOptions returns the Kong configuration options for the CLI.
func KongOptions() []kong.Option {
	return []kong.Option{
		kong.Name("bpfreg"),
		kong.Description("BPF program, link and map registry."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.TypeMapper(reflect.TypeOf(RegistryID{}), registryIDMapper()),
		kong.TypeMapper(reflect.TypeOf(DBPath{}), dbPathMapper()),
		kong.Vars{
			"default_db_path": config.DefaultStateDir + "/db/registry.db",
		},
	}
}

// Logger creates a logger for CLI commands. Commands default to warn
// for quieter output unless --log or BPFREG_LOG says otherwise.
func (c *CLI) Logger() (*slog.Logger, error) {
	format, err := logging.ParseFormat(c.LogFormat)
	if err != nil {
		return nil, err
	}

	spec := c.Log
	if spec == "" {
		spec = "warn"
	}

	return logging.New(logging.Options{
		CLISpec: spec,
		Format:  format,
		Output:  os.Stderr,
	})
}

// DatabasePath resolves the database location: the --db flag when
// given, otherwise the runtime layout rooted at BPFREG_STATE_DIR
// (falling back to the packaged default). The env-derived layout has
// its directories created as a side effect, so a first run against a
// fresh state dir works without setup.
func (c *CLI) DatabasePath() (string, error) {
	if c.DB.Path != "" {
		return c.DB.Path, nil
	}
	rt, err := config.FromEnv()
	if err != nil {
		return "", err
	}
	if err := rt.EnsureDirectories(); err != nil {
		return "", err
	}
	return rt.DBPath(), nil
}

// OpenStore opens the registry store at the configured path.
func (c *CLI) OpenStore(ctx context.Context) (store.Store, error) {
	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}
	path, err := c.DatabasePath()
	if err != nil {
		return nil, err
	}
	return sqlite.New(ctx, path, logger)
}
