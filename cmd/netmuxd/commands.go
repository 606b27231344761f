package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/netmuxd/internal/infrastructure/config"
)

// defaultConfigPath is used when neither --config nor NETMUXD_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

// rootOptions holds the global flags.
type rootOptions struct {
	ConfigPath string
	EnvFile    string
}

// configPath resolves the config file: flag, then NETMUXD_CONFIG, then the default.
func (o *rootOptions) configPath() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	if path := os.Getenv("NETMUXD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the optional env file and then the config file.
func (o *rootOptions) loadConfig() (*config.Config, string, error) {
	if err := config.LoadEnvFile(o.EnvFile); err != nil {
		return nil, "", fmt.Errorf("loading env file: %w", err)
	}
	path := o.configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// newRootCommand builds the CLI. With no subcommand it runs the daemon.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "netmuxd",
		Short: "Network device heartbeat supervisor",
		Long: `netmuxd supervises heartbeat sessions to devices reached by direct
network address and keeps the multiplexer's device table in step with
which devices are alive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default $NETMUXD_CONFIG or "+defaultConfigPath+")")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the config; ignored when missing")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCheckConfigCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "run",
		Short:         "Run the daemon until interrupted",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
}

func newCheckConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "check-config",
		Short:         "Validate the configuration and exit",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := opts.loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config OK: %s\n", path)
			fmt.Fprintf(out, "  targets:   %d\n", len(cfg.Targets))
			for _, t := range cfg.Targets {
				fmt.Fprintf(out, "    %s (%s)\n", t.Address, t.PairRecordID)
			}
			fmt.Fprintf(out, "  heartbeat: port %d, poll every %s\n", cfg.Heartbeat.Port, cfg.Supervisor.PollInterval)
			fmt.Fprintf(out, "  database:  %s\n", cfg.Database.Path)
			fmt.Fprintf(out, "  mqtt:      %s\n", enabledString(cfg.MQTT.Enabled, fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)))
			fmt.Fprintf(out, "  influxdb:  %s\n", enabledString(cfg.InfluxDB.Enabled, cfg.InfluxDB.URL))
			fmt.Fprintf(out, "  api:       %s\n", enabledString(cfg.API.Enabled, fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)))
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "netmuxd %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func enabledString(enabled bool, detail string) string {
	if !enabled {
		return "disabled"
	}
	return detail
}
