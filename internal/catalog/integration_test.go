package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dupligone/internal/catalog"
)

// fakeStore is a minimal in-memory stand-in for the SQL-over-HTTP row store
// the Client talks to (Cloudflare D1 in the teacher's original, or any
// compatible endpoint): enough of the sessions table to exercise
// InsertSession/GetSession/UpdateSessionStatus end to end against the real
// wire format.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]interface{}
}

type wireRequest struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params"`
}

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := &fakeStore{sessions: map[string]map[string]interface{}{}}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wireRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		store.mu.Lock()
		defer store.mu.Unlock()

		var results []map[string]interface{}
		ok := true

		switch {
		case strings.Contains(req.SQL, "CREATE TABLE"), strings.Contains(req.SQL, "CREATE INDEX"):
			// no-op

		case strings.Contains(req.SQL, "INSERT INTO sessions"):
			row := map[string]interface{}{
				"session_id":                  req.Params[0],
				"token":                       req.Params[1],
				"status":                      req.Params[2],
				"created_at":                  req.Params[3],
				"updated_at":                  req.Params[4],
				"total_images":                req.Params[5],
				"processed_images":            req.Params[6],
				"clusters_found":              req.Params[7],
				"images_flagged_for_deletion": req.Params[8],
				"blob_prefix":                 req.Params[9],
				"metadata":                    req.Params[10],
			}
			store.sessions[req.Params[0].(string)] = row

		case strings.Contains(req.SQL, "SELECT * FROM sessions WHERE session_id"):
			if row, found := store.sessions[req.Params[0].(string)]; found {
				results = append(results, row)
			}

		case strings.Contains(req.SQL, "UPDATE sessions SET status"):
			id := req.Params[2].(string)
			fromStatus := req.Params[3].(string)
			row, found := store.sessions[id]
			if !found || row["status"] != fromStatus {
				ok = true // D1-style: affects 0 rows, still "successful"
				break
			}
			row["status"] = req.Params[0]
			row["updated_at"] = req.Params[1]

		default:
			ok = false
		}

		resp := struct {
			Success bool `json:"success"`
			Errors  []struct {
				Message string `json:"message"`
			} `json:"errors"`
			Result []struct {
				Results []map[string]interface{} `json:"results"`
				Success bool                      `json:"success"`
			} `json:"result"`
		}{Success: ok}
		if ok {
			resp.Result = []struct {
				Results []map[string]interface{} `json:"results"`
				Success bool                      `json:"success"`
			}{{Results: results, Success: true}}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestClientInsertGetUpdateSessionRoundTrip(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()

	client := catalog.New(srv.URL, "testdb", "")
	ctx := context.Background()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sess := catalog.Session{
		SessionID:  "sess-1",
		Token:      "tok-1",
		Status:     catalog.StatusUploading,
		CreatedAt:  now,
		UpdatedAt:  now,
		BlobPrefix: "sess-1",
	}
	require.NoError(t, client.InsertSession(ctx, sess))

	got, err := client.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", got.SessionID)
	require.Equal(t, catalog.StatusUploading, got.Status)

	require.NoError(t, client.UpdateSessionStatus(ctx, "sess-1", catalog.StatusUploading, catalog.StatusUploaded))

	got, err = client.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, catalog.StatusUploaded, got.Status)
}

func TestClientGetSessionNotFound(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()

	client := catalog.New(srv.URL, "testdb", "")
	_, err := client.GetSession(context.Background(), "missing")
	require.Error(t, err)
}

func TestClientUpdateSessionStatusRejectsIllegalTransition(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()

	client := catalog.New(srv.URL, "testdb", "")
	err := client.UpdateSessionStatus(context.Background(), "sess-1", catalog.StatusCompleted, catalog.StatusUploading)
	require.Error(t, err)
}

func TestEnsureSchemaSucceeds(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()

	client := catalog.New(srv.URL, "testdb", "")
	require.NoError(t, client.EnsureSchema(context.Background()))
}
