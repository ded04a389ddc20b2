package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var (
	log    = logging.Logger("cmd")
	tracer = otel.Tracer("cmd")
)

var rootCmd = &cobra.Command{
	Use:   "remora",
	Short: "Inspect and repair Ceph RGW data consistency",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		applyLogLevel()
		span := trace.SpanFromContext(cmd.Context())
		setSpanAttributes(cmd, span)
	},
	// We handle errors ourselves when they're returned from ExecuteContext.
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	cobra.EnableTraverseRunHooks = true
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	// Flags must exist before cobra parses the command line; only the
	// config file lookup waits for initializers.
	initRootFlags()
	cobra.OnInitialize(initConfig)
}

var cfgFilePath string

func initRootFlags() {
	// default remora dir: ~/.remora
	homedir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("failed to get user home directory: %w", err))
	}

	rootCmd.PersistentFlags().StringVar(
		&cfgFilePath,
		"config",
		"",
		"Path to the config file",
	)

	rootCmd.PersistentFlags().String(
		"data-dir",
		filepath.Join(homedir, ".remora"),
		"Directory holding state that outlives a run, such as the demo database (default: ~/.remora)",
	)
	cobra.CheckErr(viper.BindPFlag("repo.data_dir", rootCmd.PersistentFlags().Lookup("data-dir")))
	cobra.CheckErr(viper.BindEnv("repo.data_dir", "REMORA_DATA_DIR"))

	rootCmd.PersistentFlags().String(
		"log-level",
		"",
		"Log level for remora subsystems (debug, info, warn, error)",
	)
	cobra.CheckErr(viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")))
	cobra.CheckErr(viper.BindEnv("log.level", "REMORA_LOG_LEVEL"))
}

func initConfig() {
	// check if environment variables match any of the existing keys
	// as an example a key is 'repo.data_dir'
	viper.AutomaticEnv()
	// when checking for env vars, rename keys searched for from 'repo.data_dir' to 'repo_data_dir'
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// when checking for env vars, search for keys prefixed with REMORA
	viper.SetEnvPrefix("REMORA")

	// when searching for a config file look for files named "remora-config.yaml"
	viper.SetConfigName("remora-config")
	viper.SetConfigType("yaml")

	// if no config file was provided, first look in the current directory _then_ look in
	// $XDG_CONFIG_HOME/remora/
	if cfgFilePath == "" {
		viper.AddConfigPath(".")
		if configDir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(configDir, "remora"))
		}
	} else {
		// else a config was provided over the cli via a flag, read it in directly
		viper.SetConfigFile(cfgFilePath)
	}

	// viper only reports ConfigFileNotFoundError when searching; a config
	// file named explicitly but missing surfaces as a path error and fails.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			cobra.CheckErr(err)
		}
	}
}

// applyLogLevel applies the configured log level to every remora logger.
// An empty level leaves the go-log defaults (and any GOLOG_LOG_LEVEL
// setting) alone.
func applyLogLevel() {
	if lvl := viper.GetString("log.level"); lvl != "" {
		cobra.CheckErr(logging.SetLogLevel("*", lvl))
	}
}

// ExecuteContext adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func ExecuteContext(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "cli")
	defer span.End()

	return rootCmd.ExecuteContext(ctx)
}
