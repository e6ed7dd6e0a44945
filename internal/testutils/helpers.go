package testutils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stretchr/testify/require"
)

// SetupTestRepo creates a temporary directory and initializes a Loam repository in it.
// It returns the absolute path to the temp dir and the initialized repository.
// It fails the test immediately on error.
func SetupTestRepo(t *testing.T, opts ...loam.Option) (string, core.Repository) {
	t.Helper()

	tmpDir := t.TempDir()

	// Loam sometimes prefers absolute paths, though t.TempDir usually returns one.
	absPath, err := filepath.Abs(tmpDir)
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	opts = append([]loam.Option{loam.WithVersioning(false)}, opts...)
	repo, err := loam.Init(absPath, opts...)
	require.NoError(t, err, "Failed to init loam repo")

	return absPath, repo
}

// WriteClaim writes c as <root>/<dir>/claim.json and returns the claim directory.
// dir defaults to the claim ID.
func WriteClaim(t *testing.T, root, dir string, c domain.Claim) string {
	t.Helper()

	if dir == "" {
		dir = c.ClaimID
	}
	claimDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(claimDir, 0755))

	data, err := json.MarshalIndent(c, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(claimDir, "claim.json"), data, 0644))
	return claimDir
}
