package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/accesscore/internal/config"
	"github.com/dropDatabas3/accesscore/internal/http/server"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
	"github.com/dropDatabas3/accesscore/internal/revocation"
	"github.com/dropDatabas3/accesscore/internal/security/secretbox"
	"github.com/dropDatabas3/accesscore/internal/store/pg"
	migrations "github.com/dropDatabas3/accesscore/migrations/postgres"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath = envOr("ACCESSCORE_CONFIG", "")
		envFile = ".env"
		cfg     *config.Config
	)

	root := &cobra.Command{
		Use:           "accesscore",
		Short:         "Core de autenticación y autorización multi-tenant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			if !cmd.Flags().Changed("config") {
				cfgPath = envOr("ACCESSCORE_CONFIG", cfgPath)
			}
			c, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg = c
			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: cfg.App.Name,
				Version:     version,
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Archivo YAML de configuración (env ACCESSCORE_CONFIG)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "Archivo .env opcional; vacío para no cargar ninguno")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Levanta el servidor HTTP y el loop de purga de revocaciones",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				cfg.App.Version = version
				app, err := server.Build(ctx, cfg, nil)
				if err != nil {
					return err
				}
				defer app.Close()
				return server.Run(ctx, cfg, app)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Aplica las migraciones pendientes de PostgreSQL",
			RunE: func(cmd *cobra.Command, args []string) error {
				if cfg.Storage.Driver != "postgres" {
					return fmt.Errorf("migrate requiere storage.driver=postgres (actual: %s)", cfg.Storage.Driver)
				}
				st, err := pg.Open(pg.Config{DSN: cfg.Storage.DSN, MaxOpenConns: 2})
				if err != nil {
					return err
				}
				defer st.Close()
				applied, err := pg.Migrate(cmd.Context(), st.DB(), migrations.FS)
				if err != nil {
					return err
				}
				for _, name := range applied {
					fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "purge-revoked",
			Short: "Borra una vez las revocaciones vencidas",
			RunE: func(cmd *cobra.Command, args []string) error {
				st, _, err := server.OpenStore(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer st.Close()
				n, err := server.PurgeOnce(cmd.Context(), revocation.New(st.RevokedTokens()))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d revoked token(s)\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "encrypt <valor>",
			Short: "Cifra un secreto con SECRETBOX_MASTER_KEY para usarlo como enc:... en la config",
			Args:  cobra.ExactArgs(1),
			// no necesita config válida, solo la clave maestra
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return loadEnvFile(envFile)
			},
			RunE: func(cmd *cobra.Command, args []string) error {
				box, err := secretbox.FromEnv()
				if err != nil {
					return err
				}
				sealed, err := box.Seal(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), sealed)
				return nil
			},
		},
	)
	return root
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
