package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/avalanche-logfilter/pkg/utils"
)

func remove(c *cli.Context) error {
	sugar, err := utils.NewSugaredLogger(true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	dataDir := c.String("data-dir")
	if err := removeDataDir(dataDir); err != nil {
		return err
	}

	sugar.Infof("log store successfully removed from %s", dataDir)
	return nil
}

func removeDataDir(dataDir string) error {
	if dataDir == "" {
		return errors.New("data dir is required")
	}
	info, err := os.Stat(dataDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", dataDir)
	}
	if err := os.RemoveAll(dataDir); err != nil {
		return fmt.Errorf("failed to remove data dir: %w", err)
	}
	return nil
}
