package main

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/moviebot/internal/auth"
	"github.com/MarcoPoloResearchLab/moviebot/internal/config"
	"github.com/MarcoPoloResearchLab/moviebot/internal/database"
	"github.com/MarcoPoloResearchLab/moviebot/internal/logging"
	"github.com/MarcoPoloResearchLab/moviebot/internal/tokens"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newCleanupTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-tokens",
		Short: "Delete download tokens older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewLogger(viper.GetString("log.level"))
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := database.OpenSQLite(viper.GetString("database.path"), logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			tokenService, err := tokens.NewService(tokens.ServiceConfig{Database: db, Logger: logger})
			if err != nil {
				return err
			}
			removed, err := tokenService.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("token cleanup finished", zap.Int64("deleted", removed))
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d tokens\n", removed)
			return nil
		},
	}
}

func newAdminTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "admin-token",
		Short: "Print a bearer token for the admin HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if !appConfig.AdminAPIEnabled() {
				return fmt.Errorf("admin.signing_secret is required")
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.AdminSigningSecret),
				Issuer:        auth.DefaultIssuer,
				Audience:      auth.DefaultAudience,
				TokenTTL:      appConfig.AdminTokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.Issue(auth.AdminSubject(appConfig.AdminID))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n# expires in %ds\n", token, expiresIn)
			return nil
		},
	}
}
