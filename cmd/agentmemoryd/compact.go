package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentmemory/internal/compaction"
	"github.com/nextlevelbuilder/agentmemory/internal/config"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
)

func compactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Run a one-shot manual compaction of every partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, err := storage.Open(config.ExpandHome(cfg.DatabaseDir))
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			if err := compaction.NewJob(store).Run(context.Background()); err != nil {
				return fmt.Errorf("compact: %w", err)
			}

			slog.Info("agentmemoryd.compact_complete")
			return nil
		},
	}
}
