package dgerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"dupligone/internal/dgerr"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", dgerr.Validation("bad file %q", "x.png"), 400},
		{"not found", dgerr.NotFound("session", "abc"), 404},
		{"storage", dgerr.Storage("put", errors.New("boom")), 500},
		{"catalog", dgerr.Catalog("insert", errors.New("boom")), 500},
		{"processing", dgerr.Processing("img-1", errors.New("decode failed")), 500},
		{"clustering", dgerr.Clustering("degenerate input"), 500},
		{"timeout", dgerr.Timeout("job-1"), 500},
		{"plain error", errors.New("unrelated"), 500},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, dgerr.HTTPStatus(c.err))
		})
	}
}

func TestHTTPStatusUsesOutermostCoder(t *testing.T) {
	inner := dgerr.NotFound("image", "img-1")
	wrapped := dgerr.Storage("get", inner)
	require.Equal(t, 500, dgerr.HTTPStatus(wrapped), "StorageError's own code wins, not the wrapped NotFoundError's")
}

func TestStorageErrorUnwrap(t *testing.T) {
	inner := errors.New("network blip")
	err := dgerr.Storage("put", inner)
	require.ErrorIs(t, err, inner)
}

func TestErrorMessagesIncludeContext(t *testing.T) {
	require.Contains(t, dgerr.NotFound("cluster", "c-1").Error(), "c-1")
	require.Contains(t, dgerr.Processing("img-9", errors.New("x")).Error(), "img-9")
	require.Contains(t, dgerr.Timeout("job-7").Error(), "job-7")
}
