package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQdrantStore_UpsertSearchCount(t *testing.T) {
	t.Parallel()

	var createCalls, upsertCalls atomic.Int64
	mux := http.NewServeMux()

	mux.HandleFunc("/collections/user_profile", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		createCalls.Add(1)
		// 第二次以后视为已存在
		if createCalls.Load() > 1 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","result":true}`))
	})

	mux.HandleFunc("/collections/user_profile/points", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "wait=true", r.URL.RawQuery)
		upsertCalls.Add(1)

		var req struct {
			Points []struct {
				ID      string         `json:"id"`
				Vector  []float64      `json:"vector"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Points, 1)
		assert.Equal(t, qdrantPointID("doc-1"), req.Points[0].ID)
		assert.Equal(t, "doc-1", req.Points[0].Payload["doc_id"])
		assert.Equal(t, "my cv", req.Points[0].Payload["content"])
		_, _ = w.Write([]byte(`{"status":"ok","result":{"status":"completed"}}`))
	})

	mux.HandleFunc("/collections/user_profile/points/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 1, req["limit"])
		filter := req["filter"].(map[string]any)
		must := filter["must"].([]any)
		require.Len(t, must, 1)
		assert.Equal(t, "metadata.type", must[0].(map[string]any)["key"])

		_, _ = w.Write([]byte(`{"status":"ok","result":[
			{"id":"p1","score":0.92,"payload":{"doc_id":"doc-1","content":"my cv","metadata":{"type":"cv"}}},
			{"id":"p2","score":0.40,"payload":{"content":"orphan"}}
		]}`))
	})

	mux.HandleFunc("/collections/user_profile/points/count", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","result":{"count":7}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store, err := NewQdrantStore(QdrantConfig{
		BaseURL:              srv.URL + "/",
		APIKey:               "secret",
		Collection:           "user_profile",
		AutoCreateCollection: true,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	doc := Document{ID: "doc-1", Content: "my cv", Embedding: []float64{0.1, 0.2}, Metadata: map[string]any{"type": "cv"}}
	require.NoError(t, store.Upsert(ctx, []Document{doc}))
	require.NoError(t, store.Upsert(ctx, []Document{doc}))
	assert.EqualValues(t, 1, createCalls.Load(), "collection is created once")
	assert.EqualValues(t, 2, upsertCalls.Load())

	hits, err := store.Search(ctx, []float64{0.1, 0.2}, 1, map[string]any{"type": "cv"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc-1", hits[0].Document.ID)
	assert.Equal(t, "cv", hits[0].Document.Metadata["type"])
	assert.InDelta(t, 0.92, hits[0].Score, 1e-9)
	assert.Equal(t, "p2", hits[1].Document.ID)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestQdrantStore_ConflictOnCreateIsOK(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/collections/c", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	mux.HandleFunc("/collections/c/points", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store, err := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, Collection: "c", AutoCreateCollection: true}, nil)
	require.NoError(t, err)

	err = store.Upsert(context.Background(), []Document{{ID: "a", Embedding: []float64{1}}})
	assert.NoError(t, err)
}

func TestQdrantStore_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	t.Cleanup(srv.Close)

	store, err := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, Collection: "c"}, nil)
	require.NoError(t, err)

	_, err = store.Search(context.Background(), []float64{1}, 3, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=500")
	assert.Contains(t, err.Error(), "boom")
}

func TestQdrantStore_Validation(t *testing.T) {
	_, err := NewQdrantStore(QdrantConfig{}, nil)
	assert.Error(t, err)

	store, err := NewQdrantStore(QdrantConfig{Collection: "c", VectorSize: 2}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, store.Upsert(ctx, nil))
	assert.Error(t, store.Upsert(ctx, []Document{{Embedding: []float64{1, 2}}}))
	assert.Error(t, store.Upsert(ctx, []Document{{ID: "a"}}))
	assert.Error(t, store.Upsert(ctx, []Document{{ID: "a", Embedding: []float64{1}}}))

	hits, err := store.Search(ctx, []float64{1}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
	_, err = store.Search(ctx, nil, 1, nil)
	assert.Error(t, err)
}

func TestQdrantPointID_Stable(t *testing.T) {
	assert.Equal(t, qdrantPointID("abc"), qdrantPointID("abc"))
	assert.NotEqual(t, qdrantPointID("abc"), qdrantPointID("abd"))
}
