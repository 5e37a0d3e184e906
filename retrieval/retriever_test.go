package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHandbook_Retrieve(t *testing.T) {
	h := NewHandbook(DefaultPolicies(), zaptest.NewLogger(t))

	got, err := h.Retrieve(context.Background(), "What is the overtime policy?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "handbook/overtime", got[0].Source)
	assert.LessOrEqual(t, len(got), 3)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestHandbook_PhraseMatchBoosts(t *testing.T) {
	h := NewHandbook(DefaultPolicies(), nil)
	got, err := h.Retrieve(context.Background(), "minimum wage", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "handbook/minimum-wage", got[0].Source)
}

func TestHandbook_EmptyResultsAreValid(t *testing.T) {
	h := NewHandbook(DefaultPolicies(), nil)

	got, err := h.Retrieve(context.Background(), "xylophone", 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = h.Retrieve(context.Background(), "the of and", 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = NewHandbook(nil, nil).Retrieve(context.Background(), "overtime", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHandbook_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHandbook(DefaultPolicies(), nil).Retrieve(ctx, "overtime", 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"overtime", "rules", "2024"}, tokenize("What are the overtime rules (2024)?"))
}
