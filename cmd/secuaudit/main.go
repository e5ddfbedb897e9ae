package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andrej220/secuaudit/pkg/config"
)

// Version is set at build time via ldflags
var Version = "dev"

var errChecksFailed = errors.New("one or more checks did not pass")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := config.Defaults()
	var configFile, saveConfig string

	cmd := &cobra.Command{
		Use:           "secuaudit",
		Short:         "Run security compliance checks against a local or remote host",
		Long:          "secuaudit runs the shell checks of a YAML rule set on localhost or over SSH and reports PASS, FAIL or ERROR for each.",
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := resolveSettings(cmd, configFile, &flags)
			if err != nil {
				return err
			}
			if saveConfig != "" {
				if err := config.SaveTo(config.NewFileStore(saveConfig), settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "settings written to %s\n", saveConfig)
				return nil
			}
			return run(cmd.Context(), settings, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "YAML settings file; flags override its values")
	f.StringVar(&saveConfig, "save-config", "", "write the effective settings to this file and exit")

	f.StringVar(&flags.Target.Host, "target", flags.Target.Host, "target host (localhost runs checks locally)")
	f.IntVar(&flags.Target.Port, "port", flags.Target.Port, "SSH port")
	f.StringVar(&flags.Target.User, "user", flags.Target.User, "SSH username")
	f.StringVar(&flags.Target.Password, "password", "", "SSH password")
	f.StringVar(&flags.Target.KeyFile, "key-file", "", "SSH private key file")
	f.StringVar(&flags.Target.KeyPassphrase, "key-passphrase", "", "passphrase of the SSH private key")
	f.StringVar(&flags.Target.HostKeyPolicy, "host-key-policy", "auto-accept", "host key verification: auto-accept (insecure), tofu or strict")
	f.StringVar(&flags.Target.KnownHostsFile, "known-hosts", "", "known_hosts file for tofu and strict (default ~/.ssh/known_hosts)")
	f.IntVar(&flags.Target.ConnectRetries, "connect-retries", 0, "extra SSH dial attempts after a network error")

	f.StringVar(&flags.Rules, "rules", flags.Rules, "path to the rules file")
	f.StringSliceVar(&flags.IDs, "id", nil, "run only the rule with this id (repeatable)")
	f.DurationVar(&flags.Timeout, "timeout", flags.Timeout, "timeout for each check")
	f.StringVar(&flags.Output.Format, "output-format", flags.Output.Format, "report format: text, html or json")
	f.StringVar(&flags.Output.File, "output-file", "", "also write the report to this file")
	f.BoolVar(&flags.Output.NoOverwrite, "no-overwrite", false, "fail instead of replacing an existing output file")

	f.StringVar(&flags.Mongo.URI, "mongo-uri", "", "publish reports to this MongoDB")
	f.StringVar(&flags.Mongo.DB, "mongo-db", flags.Mongo.DB, "MongoDB database")
	f.StringVar(&flags.Mongo.Collection, "mongo-collection", flags.Mongo.Collection, "MongoDB collection")
	f.StringSliceVar(&flags.Kafka.Brokers, "kafka-brokers", nil, "publish results to these Kafka brokers")
	f.StringVar(&flags.Kafka.Topic, "kafka-topic", flags.Kafka.Topic, "Kafka topic")

	f.BoolVar(&flags.Watch, "watch", false, "re-run the audit whenever the rules file changes")
	f.BoolVar(&flags.Log.Debug, "debug", false, "enable debug logging")
	f.StringVar(&flags.Log.Format, "log-format", flags.Log.Format, "log format: console or json")

	return cmd
}

func resolveSettings(cmd *cobra.Command, configFile string, flags *config.Settings) (config.Settings, error) {
	if configFile == "" {
		s := *flags
		return s, s.Validate()
	}
	s, err := config.LoadSettings(configFile)
	if err != nil {
		return config.Settings{}, err
	}
	config.Overlay(&s, flags, cmd.Flags().Changed)
	return s, s.Validate()
}
