// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/config"
	"github.com/xkilldash9x/sdsbook/internal/observability"
	"github.com/xkilldash9x/sdsbook/internal/service"
)

// rootOptions is the state shared by the root command and its subcommands.
type rootOptions struct {
	cfgFile string
	factory service.ComponentFactory
	cfg     *config.Config
}

// NewRootCommand builds a fresh command tree backed by the production factory.
func NewRootCommand() *cobra.Command {
	return newRootCommand(service.NewComponentFactory())
}

func newRootCommand(factory service.ComponentFactory) *cobra.Command {
	opts := &rootOptions{factory: factory}

	rootCmd := &cobra.Command{
		Use:   "sdsbook",
		Short: "sdsbook automates vehicle lookup, availability checks and booking on the service-scheduling portal.",
		// Version is set at build time. See cmd/version.go.
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd); err != nil {
				return err
			}
			observability.GetLogger().Debug("Starting sdsbook", zap.String("version", Version), zap.String("command", cmd.Name()))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("backend", "", "browser backend (chromedp or playwright)")
	flags.Bool("headless", true, "run the browser without a window")
	flags.Int("max-sessions", 0, "maximum concurrent browser sessions")
	rootCmd.SetVersionTemplate(`{{printf "sdsbook version %s\n" .Version}}`)

	rootCmd.AddCommand(
		newLookupCmd(opts),
		newAvailabilityCmd(opts),
		newBookCmd(opts),
		newServeCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		return err
	}
	return nil
}

// load reads the config file, environment and flags, then initializes logging.
func (o *rootOptions) load(cmd *cobra.Command) error {
	v := viper.New()
	config.SetDefaults(v)

	if o.cfgFile != "" {
		path, err := homedir.Expand(o.cfgFile)
		if err != nil {
			return fmt.Errorf("invalid config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SDSBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	pflags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"logger.level":         "log-level",
		"browser.backend":      "backend",
		"browser.headless":     "headless",
		"browser.max_sessions": "max-sessions",
	} {
		if f := pflags.Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		observability.InitializeLogger(config.NewDefaultConfig().Logger())
		return err
	}
	observability.InitializeLogger(cfg.Logger())
	o.cfg = cfg
	return nil
}

// components creates the services for commands that drive the portal.
func (o *rootOptions) components(ctx context.Context) (*service.Components, error) {
	if err := o.cfg.Portal().ValidatePortal(); err != nil {
		return nil, err
	}
	return o.factory.Create(ctx, o.cfg, observability.GetLogger())
}

// printJSON writes v as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
