package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PPGateway/global/config"
	"PPGateway/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ppgateway",
	Short: "Realtime chat gateway",
	Long: `ppgateway terminates authenticated websocket connections, tracks
user presence in Redis and forwards chat commands to the backend services
over NATS request/reply.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway until SIGINT or SIGTERM",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger.Configure(cfg.Log.Level, cfg.Log.Color)
		defer logger.Sync()
		if cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, err := newGateway(ctx, cfg)
		if err != nil {
			return err
		}
		return g.run(ctx)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.Redis.Password != "" {
			cfg.Redis.Password = "***"
		}
		if cfg.Nats.Password != "" {
			cfg.Nats.Password = "***"
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", *cfg)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); "+config.EnvPrefix+"_* variables override it")
	rootCmd.AddCommand(serveCmd, configCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
