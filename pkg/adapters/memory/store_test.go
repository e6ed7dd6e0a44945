package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/memory"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, memory.NewStore())
}

func TestMemoryArchive_Contract(t *testing.T) {
	ports.RunArchiveContract(t, memory.NewArchive())
}

func TestMemorySink_Contract(t *testing.T) {
	ports.RunDecisionSinkContract(t, memory.NewSink())
}

func TestMemorySource(t *testing.T) {
	src := memory.NewSource(
		domain.Claim{ClaimID: "CLM-2"},
		domain.Claim{ClaimID: "CLM-1"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	claims, err := src.List(ctx)
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, "CLM-1", claims[0].ClaimID)

	_, err = src.Get(ctx, "CLM-9")
	assert.ErrorIs(t, err, domain.ErrClaimNotFound)

	events, err := src.Watch(ctx)
	require.NoError(t, err)

	src.Add(domain.Claim{ClaimID: "CLM-3"})
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("expected watch notification")
	}

	c, err := src.Get(ctx, "CLM-3")
	require.NoError(t, err)
	assert.Equal(t, "CLM-3", c.ClaimID)
}
