package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"modelkit/internal/config"
	"modelkit/internal/core"
)

// cli holds the persistent flags shared by every subcommand.
type cli struct {
	configPath string
	jsonOut    bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "modelkit",
		Short: "Inspect a modelkit persistence container",
		Long: `modelkit opens the persistence container described by the configuration
(modelkit.toml and MODELKIT_* environment variables) and reports on the records
it holds. Every command runs through the transactional model service.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to a TOML config file (default ./modelkit.toml when present)")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "Output in JSON format")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(
		c.newCountCmd(),
		c.newIDsCmd(),
		c.newDriversCmd(),
		c.newUserCmd(),
		newVersionCmd(),
	)
	return root
}

func execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *cli) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// openService opens the configured container behind a model service. The
// caller closes the service.
func (c *cli) openService(cmd *cobra.Command) (*core.Service, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr())
	svc, err := core.Open(cmd.Context(), cfg, core.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open %s container: %w", cfg.Storage.Driver, err)
	}
	return svc, nil
}

// withService runs fn against a freshly opened service and closes it.
func (c *cli) withService(cmd *cobra.Command, fn func(*core.Service) error) (err error) {
	svc, err := c.openService(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
