package worker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"dupligone/internal/dgerr"
)

func TestIsRetryableStorageAndCatalogErrors(t *testing.T) {
	require.True(t, isRetryable(dgerr.Storage("put", errors.New("timeout"))))
	require.True(t, isRetryable(dgerr.Catalog("insert", errors.New("timeout"))))
}

func TestIsRetryableFalseForValidationAndProcessing(t *testing.T) {
	require.False(t, isRetryable(dgerr.Validation("bad file")))
	require.False(t, isRetryable(dgerr.Processing("img-1", errors.New("decode"))))
	require.False(t, isRetryable(dgerr.Clustering("degenerate")))
}

func TestIsRetryableFalseForWrappedValidation(t *testing.T) {
	wrapped := fmt.Errorf("wrapping: %w", dgerr.Validation("bad"))
	require.False(t, isRetryable(wrapped))
}

func TestIsRetryablePlainError(t *testing.T) {
	require.False(t, isRetryable(errors.New("mystery")))
}
