package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/SanteonNL/bptrafficlight/cmd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "bptrafficlight",
		Short:         "Blood pressure traffic light",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(dashboardCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func loadConfig() (*cmd.Config, error) {
	config, err := cmd.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cmd.ConfigureLogging(*config)
	return config, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(command *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			log.Info().Msgf("Public interface listens on %s", config.Public.Address)
			log.Info().Msgf("Using %s storage", config.Storage.Type)
			if config.FHIR.BaseURL != "" {
				log.Info().Msgf("Using FHIR server on %s", config.FHIR.BaseURL)
			}
			if err := cmd.Start(command.Context(), *config); err != nil {
				return err
			}
			log.Info().Msg("Goodbye!")
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a smartwatch export into the stored readings",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			return cmd.Import(command.Context(), *config, file, command.OutOrStdout())
		},
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Print the dashboard of the stored readings as JSON",
		RunE: func(command *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			return cmd.Dashboard(command.Context(), *config, command.OutOrStdout())
		},
	}
}
