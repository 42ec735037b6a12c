package reader

import (
	"fmt"
	"os"
	"path/filepath"
)

// Suffixes for the scratch build directory and the backup taken during a swap.
const (
	scratchSuffix = ".__new"
	backupSuffix  = ".__old"
)

// buildDirAtomic builds output for finalDir without ever corrupting a
// previously committed version. All artifacts are written by build into a
// private scratch directory; only after build succeeds is the scratch swapped
// into place. If build or the swap fails, the scratch is deleted and any
// prior output is left (or restored) unchanged.
func buildDirAtomic(finalDir string, build func(scratch string) error) error {
	scratch := finalDir + scratchSuffix

	// A leftover scratch from a crashed run is stale by definition.
	if err := os.RemoveAll(scratch); err != nil {
		return fmt.Errorf("reader: clear stale scratch %s: %w", scratch, err)
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return fmt.Errorf("reader: create scratch %s: %w", scratch, err)
	}

	if err := build(scratch); err != nil {
		os.RemoveAll(scratch)
		return err
	}

	if err := commitDir(scratch, finalDir); err != nil {
		os.RemoveAll(scratch)
		return err
	}
	return nil
}

// commitDir atomically replaces finalDir with scratch. When a prior output
// exists it is first renamed to a backup; if the scratch rename then fails,
// the backup is restored before the error propagates, so the previously
// served output is never left partially overwritten.
func commitDir(scratch, finalDir string) error {
	if _, err := os.Stat(finalDir); os.IsNotExist(err) {
		if err := os.Rename(scratch, finalDir); err != nil {
			return fmt.Errorf("reader: commit %s: %w", finalDir, err)
		}
		return nil
	}

	backup := finalDir + backupSuffix
	if err := os.RemoveAll(backup); err != nil {
		return fmt.Errorf("reader: clear stale backup %s: %w", backup, err)
	}
	if err := os.Rename(finalDir, backup); err != nil {
		return fmt.Errorf("reader: back up %s: %w", finalDir, err)
	}
	if err := os.Rename(scratch, finalDir); err != nil {
		// Restore the prior output before surfacing the failure.
		if restoreErr := os.Rename(backup, finalDir); restoreErr != nil {
			return fmt.Errorf("reader: commit %s failed (%v) and restore failed: %w", finalDir, err, restoreErr)
		}
		return fmt.Errorf("reader: commit %s: %w", finalDir, err)
	}
	if err := os.RemoveAll(backup); err != nil {
		return fmt.Errorf("reader: remove backup %s: %w", backup, err)
	}
	return nil
}

// writeFileAtomic writes data to path via a temp file and rename, so readers
// never observe a partially written file.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reader: create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("reader: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("reader: rename %s: %w", path, err)
	}
	return nil
}
