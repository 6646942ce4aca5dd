package commentclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larder/internal/models"
)

func TestClient_FetchComments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/comments", r.URL.Path)
		assert.Equal(t, "recipes/soup", r.URL.Query().Get("page_slug"))
		_, _ = w.Write([]byte(`[{"id":"` + uuid.NewString() + `","author_name":"ana","status":"approved","replies":[]}]`))
	}))
	defer srv.Close()

	tree, err := NewClient(srv.URL).FetchComments(context.Background(), "recipes/soup")
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "ana", tree[0].AuthorName)
	assert.Equal(t, models.CommentStatusApproved, tree[0].Status)
}

func TestClient_FetchCommentsNullBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	}))
	defer srv.Close()

	tree, err := NewClient(srv.URL).FetchComments(context.Background(), "recipes/soup")
	require.NoError(t, err)
	assert.NotNil(t, tree)
	assert.Empty(t, tree)
}

func TestClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"VERIFICATION_FAILED","message":"expired","reason":"timeout-or-duplicate"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Submit(context.Background(), SubmitRequest{PageSlug: "recipes/soup"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "VERIFICATION_FAILED", apiErr.Code)
	assert.Equal(t, "timeout-or-duplicate", apiErr.Reason)
}

func TestClient_ErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Delete(context.Background(), uuid.New())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "Bad Gateway", apiErr.Code)
}

func TestClient_AdminCalls(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPatch && r.URL.Path == "/api/comments/"+id.String():
			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "approved", body["status"])
			assert.Equal(t, true, body["is_admin"])
			_ = json.NewEncoder(w).Encode(models.Comment{ID: id, Status: models.CommentStatusApproved, IsAdmin: true})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/comments/"+id.String():
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/api/admin/comments":
			assert.Equal(t, "pending", r.URL.Query().Get("status"))
			_, _ = w.Write([]byte(`{"comments":[],"counts":{"total":5,"pending":2,"approved":3,"spam":0}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", WithAdminToken("s3cret"))
	ctx := context.Background()

	yes := true
	updated, err := client.UpdateStatus(ctx, id, models.CommentStatusApproved, &yes)
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin)

	require.NoError(t, client.Delete(ctx, id))

	view, err := client.ListAdmin(ctx, AdminFilter{Status: models.CommentStatusPending})
	require.NoError(t, err)
	assert.Equal(t, models.CommentCounts{Total: 5, Pending: 2, Approved: 3}, view.Counts)
}
