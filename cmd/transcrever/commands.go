package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chaz8081/transcrever/internal/config"
	"github.com/chaz8081/transcrever/internal/models"
	"github.com/chaz8081/transcrever/internal/transcribe"
)

func (a *app) modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage local whisper.cpp model weights",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List model tiers and whether their weights are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			dir := modelsDir(cfg)
			for _, tier := range transcribe.Tiers() {
				status := "missing"
				if models.Installed(dir, tier.String()) {
					status = "installed"
				}
				marker := " "
				if tier == transcribe.DefaultTier {
					marker = "*"
				}
				fmt.Fprintf(a.stdout, "%s %-7s %-22s %s\n", marker, tier, models.FileName(tier.String()), status)
			}
			return nil
		},
	}

	download := &cobra.Command{
		Use:   "download [model...]",
		Short: "Download whisper.cpp weights (default: " + transcribe.DefaultTier.String() + ")",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if len(args) == 0 {
				args = []string{transcribe.DefaultTier.String()}
			}

			tiers := make([]transcribe.ModelTier, 0, len(args))
			for _, arg := range args {
				tier, err := transcribe.ParseModelTier(arg)
				if err != nil {
					return err
				}
				tiers = append(tiers, tier)
			}

			dir := modelsDir(cfg)
			d := models.NewDownloader()
			for _, tier := range tiers {
				path, err := d.Download(cmd.Context(), dir, tier.String(), a.stderr)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stderr, "%s: %s\n", tier, path)
			}
			return nil
		},
	}

	cmd.AddCommand(list, download)
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.WriteDefault()
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintf(a.stderr, "config already exists at %s\n", config.DefaultConfigPath())
				return nil
			}
			fmt.Fprintln(a.stdout, path)
			return nil
		},
	})
	return cmd
}

func modelsDir(cfg *config.Config) string {
	if cfg.Engine.ModelsDir != "" {
		return cfg.Engine.ModelsDir
	}
	return config.DefaultModelsDir()
}
