package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pqaidevteam/pqai-db/internal/app"
	"github.com/pqaidevteam/pqai-db/internal/documents"
	"github.com/pqaidevteam/pqai-db/internal/logging"
	"github.com/pqaidevteam/pqai-db/internal/storage"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Copy a local data directory into the configured storage",
	Long: `Seed walks DIR and writes every file under patents/, images/ and
bibliography/ to the dataset that serves it, keyed by its path relative to DIR.
JSON records are validated before they are written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("data")

		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := seed(cmd.Context(), a.Service, dir)
		for dataset, n := range counts {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", dataset, n)
		}
		return err
	},
}

// seed copies the files under dir into svc's backends and returns how many
// were written per dataset. Files outside the known top-level directories
// are skipped.
func seed(ctx context.Context, svc *documents.Service, dir string) (map[string]int, error) {
	targets := map[string]storage.Backend{
		"patents":      svc.Patents,
		"images":       svc.Drawings,
		"bibliography": svc.Bibliography,
	}
	counts := make(map[string]int)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		top, _, _ := strings.Cut(key, "/")

		backend := targets[top]
		if backend == nil {
			logging.Debug("seed: skipping", zap.String("key", key))
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if strings.HasSuffix(key, ".json") && !json.Valid(data) {
			return fmt.Errorf("%s: invalid JSON", key)
		}
		if err := backend.Put(ctx, key, data); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		counts[top]++
		return nil
	})

	logging.Info("seed finished",
		zap.String("dir", dir),
		zap.Int("patents", counts["patents"]),
		zap.Int("images", counts["images"]),
		zap.Int("bibliography", counts["bibliography"]))
	return counts, err
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringP("data", "d", "", "Directory holding patents/, images/ and bibliography/")
	if err := seedCmd.MarkFlagRequired("data"); err != nil {
		panic(fmt.Errorf("failed to mark flag `data` as required: %w", err))
	}
}
