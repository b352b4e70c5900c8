/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package main implements the dnpack CLI, which builds DAppNode packages
// into release directories and uploads them to IPFS or Swarm.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cowdogmoo/dnpack/config"
	"github.com/cowdogmoo/dnpack/logging"
)

// configKeyAnnotation names the config key a flag overrides when it differs
// from the flag's command path.
const configKeyAnnotation = "dnpack_config_key"

type configKeyType struct{}

var (
	configKey = configKeyType{}

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dnpack",
	Short: "dnpack - DAppNode package builder",
	Long: `dnpack builds DAppNode packages: it validates the manifest and compose
files, builds the images for every architecture, assembles the release
directory and uploads it to IPFS or Swarm.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is $XDG_CONFIG_HOME/dnpack/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json, color)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Quiet mode - only show errors")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose mode - show debug output")
	annotateConfigKey(rootCmd.PersistentFlags(), "log-level", "log.level")
	annotateConfigKey(rootCmd.PersistentFlags(), "log-format", "log.format")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(increaseCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(pinsCmd)
	rootCmd.AddCommand(versionCmd)
}

// annotateConfigKey binds flag name to key instead of its command path.
func annotateConfigKey(flags *pflag.FlagSet, name, key string) {
	if err := flags.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("annotate flag %s: %v", name, err))
	}
}

// configFromContext retrieves the config from the command context.
// Returns nil if no config is stored in context.
func configFromContext(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey).(*config.Config); ok {
		return cfg
	}
	return nil
}

// initConfig loads configuration with the precedence
// CLI flags > environment > config file > defaults, sets up logging and
// stores both in the command context.
func initConfig(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(cfgFile)
	if err != nil && !config.IsNotFoundError(err) {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if v == nil {
		return fmt.Errorf("config file %s not found", cfgFile)
	}

	BindCommandFlagsToViper(v, cmd)

	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := logging.NewCustomLoggerWithOptions(cfg.Log.Level, cfg.Log.Format, quiet, verbose)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = logging.WithLogger(ctx, logger)
	cmd.SetContext(ctx)

	if used := v.ConfigFileUsed(); used != "" {
		logging.DebugContext(ctx, "Using config file %s", used)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	rootCmd.Version = version
	return rootCmd.Execute()
}

// BindFlagsToViper binds all flags of cmd to v. Keys are the flag names
// with dashes replaced by underscores, prefixed with viperKey, unless the
// flag carries a config key annotation.
func BindFlagsToViper(v *viper.Viper, cmd *cobra.Command, viperKey string) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(flagKey(f, viperKey), f); err != nil {
			logging.FromContext(cmd.Context()).Warn("failed to bind flag %s to viper: %v", f.Name, err)
		}
	})
}

// BindCommandFlagsToViper binds the local flags of cmd under its command
// path and the persistent flags inherited from its parents.
func BindCommandFlagsToViper(v *viper.Viper, cmd *cobra.Command) {
	BindFlagsToViper(v, cmd, getCommandPath(cmd))

	cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(flagKey(f, ""), f); err != nil {
			logging.FromContext(cmd.Context()).Warn("failed to bind inherited flag %s to viper: %v", f.Name, err)
		}
	})
}

func flagKey(f *pflag.Flag, prefix string) string {
	if keys := f.Annotations[configKeyAnnotation]; len(keys) > 0 {
		return keys[0]
	}
	key := strings.ReplaceAll(f.Name, "-", "_")
	if prefix != "" {
		key = prefix + "." + key
	}
	return key
}

// getCommandPath returns the command path for Viper key namespacing.
// For example, "dnpack pins clean-old" returns "pins.clean-old".
func getCommandPath(cmd *cobra.Command) string {
	var parts []string
	for current := cmd; current != nil && current.Parent() != nil; current = current.Parent() {
		parts = append([]string{current.Name()}, parts...)
	}
	return strings.Join(parts, ".")
}

// packageDir returns the package directory argument, defaulting to the
// working directory.
func packageDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 && args[0] != "" {
		dir = args[0]
	}
	abs, err := filepath.Abs(config.ResolvePath(dir))
	if err != nil {
		return "", fmt.Errorf("failed to resolve package directory %s: %w", dir, err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", fmt.Errorf("package directory %s does not exist", dir)
	}
	return abs, nil
}
