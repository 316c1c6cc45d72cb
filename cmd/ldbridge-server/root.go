package main

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/launchdarkly/flutter-client-bridge/util"
)

// settings resolves every flag from, in order, the command line, LDBRIDGE_* environment
// variables and the flag defaults.
var settings = newSettings()

func newSettings() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("LDBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

var rootCmd = &cobra.Command{
	Use:   "ldbridge-server",
	Short: "Serve the LaunchDarkly client bridge over an HTTP method channel",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := settings.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		level, err := log.ParseLevel(settings.GetString("log-level"))
		if err != nil {
			return err
		}
		log.SetLevel(level)
		if settings.GetBool("log-json") {
			log.SetFormatter(&log.JSONFormatter{})
		}
		util.SetLogger(newLogrusLogger(log.StandardLogger()))
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")
}
