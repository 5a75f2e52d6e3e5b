package main

import (
	"context"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/codemurf/auth-gateway/internal/account/sqlite"
	"github.com/codemurf/auth-gateway/internal/auth"
	"github.com/codemurf/auth-gateway/internal/config"
	"github.com/codemurf/auth-gateway/internal/logger"
	"github.com/codemurf/auth-gateway/internal/server"
)

func main() {
	Execute()
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "auth-gateway",
	Short: "OAuth login gateway for CodeMurf",
	Long: `auth-gateway terminates the OAuth authorization-code flow against
Google and GitHub, maps external identities onto CodeMurf accounts, and
issues signed session tokens to the front end.`,
	Run: runServer,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	// Place version check in PreRun to ensure flags are parsed first
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	config.InitFlags()
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")
}

func runServer(cmd *cobra.Command, args []string) {
	app := fx.New(
		fx.Provide(config.Load),
		sqlite.Module,
		auth.Module,
		server.Module,
		fx.WithLogger(func(cfg *config.Config) fxevent.Logger {
			if err := logger.InitLogger(&cfg.Logging); err != nil {
				pterm.Error.Println(err)
				os.Exit(1)
			}
			return &fxevent.ZapLogger{Logger: logger.GetLogger()}
		}),
		fx.Invoke(startServer),
	)

	app.Run()
}

// startServer launches the HTTP server and shuts the fx app down if it stops
// on its own.
func startServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, srv *server.Server) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(ctx); err != nil {
					logger.Error("Server stopped", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			_ = logger.Sync()
			return nil
		},
	})
}
