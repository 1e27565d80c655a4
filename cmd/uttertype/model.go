package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uttertype/uttertype/internal/config"
	"github.com/uttertype/uttertype/internal/models/mlx"
	"github.com/uttertype/uttertype/internal/provider"
	"github.com/uttertype/uttertype/internal/transcriber"
)

func modelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage transcription models",
	}

	cmd.AddCommand(modelListCmd())
	cmd.AddCommand(modelDownloadCmd())
	cmd.AddCommand(modelRemoveCmd())

	return cmd
}

// modelStore opens the local MLX store configured by the user.
func modelStore() (*mlx.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return mlx.NewStore(cfg.MLX.ModelsDir, cfg.MLX.HFToken)
}

func modelListCmd() *cobra.Command {
	var providerFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available transcription models",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := provider.ListProviders()
			if providerFilter != "" {
				if provider.GetProvider(providerFilter) == nil {
					return fmt.Errorf("unknown provider: %s", providerFilter)
				}
				names = []string{strings.ToLower(providerFilter)}
			}

			store, err := modelStore()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				p := provider.GetProvider(name)
				fmt.Fprintf(out, "\n%s:\n", p.Label())
				for _, m := range p.Models() {
					fmt.Fprintln(out, modelLine(m, store.IsInstalled))
				}
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerFilter, "provider", "", "filter by provider name")
	return cmd
}

func modelLine(m provider.Model, installed func(string) bool) string {
	prefix := "  "
	if m.Local {
		if installed(m.ID) {
			prefix = "  [x]"
		} else {
			prefix = "  [ ]"
		}
	}

	var parts []string
	if slices.Equal(m.SupportedLanguages, []string{"en"}) {
		parts = append(parts, "english only")
	}
	if m.Size != "" {
		parts = append(parts, m.Size)
	}

	line := fmt.Sprintf("%s %s", prefix, m.ID)
	if m.Description != "" {
		line += fmt.Sprintf(" - %s", m.Description)
	}
	if len(parts) > 0 {
		line += fmt.Sprintf(" [%s]", strings.Join(parts, ", "))
	}
	return line
}

func modelDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <model-name>",
		Short: "Download a local MLX model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			out := cmd.OutOrStdout()
			if provider.FindModel(transcriber.ProviderMLX, id) == nil && mlx.GetModel(id) == nil {
				return fmt.Errorf("unknown model: %s", id)
			}

			store, err := modelStore()
			if err != nil {
				return err
			}
			if store.IsInstalled(id) {
				fmt.Fprintf(out, "model '%s' is already installed at %s\n", id, store.Path(id))
				return nil
			}

			fmt.Fprintf(out, "downloading %s...\n", id)
			lastPercent := map[string]int{}
			path, err := store.Ensure(cmd.Context(), id, func(file string, downloaded, total int64) {
				if total <= 0 {
					return
				}
				percent := int(downloaded * 100 / total)
				if percent >= lastPercent[file]+10 {
					fmt.Fprintf(out, "%s %d%%\n", file, percent)
					lastPercent[file] = percent
				}
			})
			if err != nil {
				return fmt.Errorf("download failed: %w", err)
			}
			fmt.Fprintf(out, "download complete: %s\n", path)
			return nil
		},
	}
}

func modelRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <model-name>",
		Short: "Remove a downloaded local model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if provider.FindModel(transcriber.ProviderOpenAI, id) != nil || provider.FindModel(transcriber.ProviderGoogle, id) != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "model '%s' is a cloud model, nothing to remove\n", id)
				return nil
			}

			store, err := modelStore()
			if err != nil {
				return err
			}
			if !store.IsInstalled(id) {
				return fmt.Errorf("model '%s' is not installed", id)
			}
			if err := store.Remove(id); err != nil {
				return fmt.Errorf("failed to remove model: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model '%s' removed successfully\n", id)
			return nil
		},
	}
}
