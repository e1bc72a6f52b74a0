package main

import (
	"os"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/reflow/cmd/reflow/cmds"
)

var rootCmd = &cobra.Command{
	Use:   "reflow",
	Short: "reflow edits chat conversations and replays their completions",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// flags are parsed by now, pick up --log-level and co
		setupLogging(logSettingsFromViper(), os.Stderr)
	},
	SilenceUsage: true,
}

// configFileFromArgs finds --config before cobra has parsed anything.
func configFileFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	return ""
}

func loadConfig(flags *cobra.Command, configFile string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.reflow")
		if dir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(dir + "/reflow")
		}
	}

	var notFound viper.ConfigFileNotFoundError
	if err := viper.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return err
	}

	viper.SetEnvPrefix("reflow")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags.PersistentFlags()); err != nil {
		return err
	}

	setupLogging(logSettingsFromViper(), os.Stderr)
	log.Debug().Str("config", viper.ConfigFileUsed()).Msg("Loaded configuration")
	return nil
}

func registerCommands(root *cobra.Command) error {
	historyCmd, err := cmds.NewHistoryCommand()
	if err != nil {
		return err
	}
	modelsCommand, err := cmds.NewModelsCommand()
	if err != nil {
		return err
	}
	modelsCmd, err := cli.BuildCobraCommandFromGlazeCommand(modelsCommand)
	if err != nil {
		return err
	}

	root.AddCommand(
		cmds.NewChatCommand(),
		cmds.NewReplayCommand(),
		historyCmd,
		modelsCmd,
	)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Bool("with-caller", false, "Log caller")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	flags.String("log-format", "auto", "Log format (auto, json, text)")
	flags.String("log-file", "", "Also log to this file, rotated")
	flags.Bool("verbose", false, "Verbose output")
	flags.String("config", "", "Path to config file (default ~/.reflow/config.yaml)")
	cmds.AddPersistentFlags(rootCmd)

	cobra.CheckErr(loadConfig(rootCmd, configFileFromArgs(os.Args)))
	cobra.CheckErr(registerCommands(rootCmd))
}
