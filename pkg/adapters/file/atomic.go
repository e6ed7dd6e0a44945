package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

const tmpPrefix = "tmp-"

// checkID rejects identifiers that cannot safely be used as a file name.
func checkID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty: %w", kind, domain.ErrInvalidID)
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." || strings.HasPrefix(id, tmpPrefix) {
		return fmt.Errorf("%s %q: %w", kind, id, domain.ErrInvalidID)
	}
	return nil
}

// writeTemp marshals v into a fsynced, closed temp file in dir and returns its path.
// We use the same directory as the destination to stay on one filesystem (required for rename and link).
func writeTemp(dir, id string, v any) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, tmpPrefix+id+"-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Close before rename (cannot rename open file on Windows)
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return tmpPath, nil
}

// replaceAtomic writes v to path, replacing any previous content.
// Readers observe either the old or the new file, never a partial one.
func replaceAtomic(path, id string, v any) error {
	tmpPath, err := writeTemp(filepath.Dir(path), id, v)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpPath) }()

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// createOnce writes v to path only if path does not exist yet.
// The content is fully written before it becomes visible under path, so a crash
// never leaves a half-written file that would block later writes.
// Returns os.ErrExist when another writer got there first.
func createOnce(path, id string, v any) error {
	tmpPath, err := writeTemp(filepath.Dir(path), id, v)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpPath) }()

	if err := os.Link(tmpPath, path); err != nil {
		if os.IsExist(err) {
			return os.ErrExist
		}
		return fmt.Errorf("failed to publish file: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// listIDs returns the base names of the .json files in dir, skipping temp files.
func listIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
