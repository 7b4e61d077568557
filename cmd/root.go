/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/allbin/boardrun/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "boardrun",
	Short: "Run test binaries on attached embedded boards",
	Long: `Install test binaries on USB-attached development boards, reset them and
capture their serial console.

Boards are discovered by pairing USB serial ports with the mass-storage drive
the board exposes, or declared statically under "devices:" in the config file.

Configuration is read from $HOME/.boardrun.yaml (or --config) and from
BOARDRUN_* environment variables, e.g. BOARDRUN_SERIAL_BAUD=115200.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if err := logging.Init(cfg.Log); err != nil {
			return err
		}
		if used := viper.ConfigFileUsed(); used != "" {
			log.Debug().Str("file", used).Msg("Using config file")
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.boardrun.yaml)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.Bool("debug", false, "Enable debug logging")
	pf.String("log-format", "console", "Log format: console, json")
	pf.IntP("baud", "b", 9600, "Baud rate")
	pf.Duration("read-timeout", 0, "Serial read timeout (default 10s)")

	cobra.CheckErr(viper.BindPFlag("log.level", pf.Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("log.debug", pf.Lookup("debug")))
	cobra.CheckErr(viper.BindPFlag("log.format", pf.Lookup("log-format")))
	cobra.CheckErr(viper.BindPFlag("serial.baud", pf.Lookup("baud")))
	cobra.CheckErr(viper.BindPFlag("serial.read_timeout", pf.Lookup("read-timeout")))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".boardrun")
	}

	viper.SetEnvPrefix("BOARDRUN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			cobra.CheckErr(err)
		}
	}
}
