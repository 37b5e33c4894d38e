package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fridgemind/internal/inventory"
	"fridgemind/internal/shared"
	"fridgemind/internal/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeDispatcher struct {
	sendToUser   func(ctx context.Context, id string) (int, error)
	sendAll      func(ctx context.Context) (int, error)
	notifyDirect func(ctx context.Context, id, title, body string) error
}

func (f *fakeDispatcher) SendToUser(ctx context.Context, id string) (int, error) {
	return f.sendToUser(ctx, id)
}

func (f *fakeDispatcher) SendAll(ctx context.Context) (int, error) {
	return f.sendAll(ctx)
}

func (f *fakeDispatcher) NotifyDirect(ctx context.Context, id, title, body string) error {
	return f.notifyDirect(ctx, id, title, body)
}

type fakeLabeler struct {
	labels []string
	err    error
}

func (f *fakeLabeler) Annotate(context.Context, string) ([]string, error) {
	return f.labels, f.err
}

func newTestRouter(t *testing.T, opts Options) (*gin.Engine, store.Store) {
	t.Helper()
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.VAPIDPublicKey == "" {
		opts.VAPIDPublicKey = "test-public-key"
	}
	return NewRouter(opts), opts.Store
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, Options{})
	w := doJSON(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	r, _ := newTestRouter(t, Options{VAPIDPublicKey: "BPub123"})
	w := doJSON(t, r, http.MethodGet, "/vapidPublicKey", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BPub123", decodeBody(t, w)["publicKey"])
}

func TestSubscribe(t *testing.T) {
	r, s := newTestRouter(t, Options{})

	w := doJSON(t, r, http.MethodPost, "/subscribe", map[string]any{
		"email":        "alice@example.com",
		"subscription": map[string]string{"endpoint": "https://push/alice"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["ok"])

	user, err := s.GetUser(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, user.HasSubscription())
}

func TestSubscribeValidation(t *testing.T) {
	r, _ := newTestRouter(t, Options{})

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing email", map[string]any{"subscription": map[string]string{"endpoint": "x"}}},
		{"missing subscription", map[string]any{"email": "a@example.com"}},
		{"null subscription", map[string]any{"email": "a@example.com", "subscription": nil}},
		{"empty body", map[string]any{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/subscribe", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "email and subscription required", decodeBody(t, w)["error"])
		})
	}
}

func TestSubscribeReplacesPrevious(t *testing.T) {
	r, s := newTestRouter(t, Options{})

	for _, endpoint := range []string{"https://push/old", "https://push/new"} {
		w := doJSON(t, r, http.MethodPost, "/subscribe", map[string]any{
			"email":        "bob@example.com",
			"subscription": map[string]string{"endpoint": endpoint},
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	user, err := s.GetUser(context.Background(), "bob@example.com")
	require.NoError(t, err)
	assert.Contains(t, string(user.Subscription), "https://push/new")
}

func TestUpsertItems(t *testing.T) {
	r, s := newTestRouter(t, Options{})

	w := doJSON(t, r, http.MethodPost, "/upsert-items", map[string]any{
		"email": "carol@example.com",
		"items": []map[string]any{
			{"name": "Milk", "expiry": "2025-06-12"},
			{"name": "Rice", "expiry": "2025-07-10"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	user, err := s.GetUser(context.Background(), "carol@example.com")
	require.NoError(t, err)
	require.Len(t, user.Items, 2)
	assert.Equal(t, "Milk", user.Items[0].Name)
}

func TestUpsertItemsEmptyArrayClears(t *testing.T) {
	r, s := newTestRouter(t, Options{})

	require.NoError(t, s.UpsertItems(context.Background(), "dave@example.com", []inventory.Item{
		{Name: "Milk", Expiry: "2025-06-12"},
	}))

	w := doJSON(t, r, http.MethodPost, "/upsert-items", map[string]any{
		"email": "dave@example.com",
		"items": []any{},
	})
	require.Equal(t, http.StatusOK, w.Code)

	user, err := s.GetUser(context.Background(), "dave@example.com")
	require.NoError(t, err)
	assert.Empty(t, user.Items)
}

func TestUpsertItemsValidation(t *testing.T) {
	r, _ := newTestRouter(t, Options{})

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing email", map[string]any{"items": []any{}}},
		{"missing items", map[string]any{"email": "a@example.com"}},
		{"null items", map[string]any{"email": "a@example.com", "items": nil}},
		{"items not a list", map[string]any{"email": "a@example.com", "items": "Milk"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/upsert-items", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "email and items[] required", decodeBody(t, w)["error"])
		})
	}
}

func TestSendNowSingleUser(t *testing.T) {
	d := &fakeDispatcher{
		sendToUser: func(_ context.Context, id string) (int, error) {
			assert.Equal(t, "erin@example.com", id)
			return 2, nil
		},
	}
	r, _ := newTestRouter(t, Options{Dispatcher: d})

	w := doJSON(t, r, http.MethodPost, "/send-now", map[string]any{"email": "erin@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(2), body["sent"])
}

func TestSendNowUnknownUser(t *testing.T) {
	d := &fakeDispatcher{
		sendToUser: func(context.Context, string) (int, error) {
			return 0, shared.Wrap(shared.ErrNotFound, "user")
		},
	}
	r, _ := newTestRouter(t, Options{Dispatcher: d})

	w := doJSON(t, r, http.MethodPost, "/send-now", map[string]any{"email": "ghost@example.com"})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "user or subscription not found", decodeBody(t, w)["error"])
}

func TestSendNowAllUsers(t *testing.T) {
	d := &fakeDispatcher{
		sendAll: func(context.Context) (int, error) { return 7, nil },
	}
	r, _ := newTestRouter(t, Options{Dispatcher: d})

	// No body at all: batch dispatch.
	req := httptest.NewRequest(http.MethodPost, "/send-now", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(7), decodeBody(t, w)["sent"])
}

func TestNotify(t *testing.T) {
	var gotTitle, gotBody string
	d := &fakeDispatcher{
		notifyDirect: func(_ context.Context, id, title, body string) error {
			assert.Equal(t, "frank@example.com", id)
			gotTitle, gotBody = title, body
			return nil
		},
	}
	r, _ := newTestRouter(t, Options{Dispatcher: d})

	w := doJSON(t, r, http.MethodPost, "/notify", map[string]any{
		"email": "frank@example.com",
		"title": "FridgeMind",
		"body":  "dinner time",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "FridgeMind", gotTitle)
	assert.Equal(t, "dinner time", gotBody)
}

func TestNotifyMissingEmail(t *testing.T) {
	r, _ := newTestRouter(t, Options{})

	w := doJSON(t, r, http.MethodPost, "/notify", map[string]any{"title": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email required", decodeBody(t, w)["error"])
}

func TestNotifyNoSubscription(t *testing.T) {
	d := &fakeDispatcher{
		notifyDirect: func(context.Context, string, string, string) error {
			return shared.Wrap(shared.ErrNotFound, "no subscription")
		},
	}
	r, _ := newTestRouter(t, Options{Dispatcher: d})

	w := doJSON(t, r, http.MethodPost, "/notify", map[string]any{"email": "ghost@example.com"})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no subscription found for this email", decodeBody(t, w)["error"])
}

func TestNotifyTransportFailure(t *testing.T) {
	d := &fakeDispatcher{
		notifyDirect: func(context.Context, string, string, string) error {
			return shared.MarkKind(errors.New("endpoint rejected"), shared.KindTransport)
		},
	}
	r, _ := newTestRouter(t, Options{Dispatcher: d})

	w := doJSON(t, r, http.MethodPost, "/notify", map[string]any{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestVision(t *testing.T) {
	r, _ := newTestRouter(t, Options{Labeler: &fakeLabeler{labels: []string{"Milk", "Dairy"}}})

	w := doJSON(t, r, http.MethodPost, "/vision", map[string]any{"image": "aGVsbG8="})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"Milk", "Dairy"}, decodeBody(t, w)["labels"])
}

func TestVisionNoImage(t *testing.T) {
	r, _ := newTestRouter(t, Options{Labeler: &fakeLabeler{}})

	w := doJSON(t, r, http.MethodPost, "/vision", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no image provided", decodeBody(t, w)["error"])
}

func TestVisionUnavailable(t *testing.T) {
	r, _ := newTestRouter(t, Options{})

	w := doJSON(t, r, http.MethodPost, "/vision", map[string]any{"image": "x"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestVisionUpstreamFailure(t *testing.T) {
	labeler := &fakeLabeler{err: shared.MarkKind(errors.New("status 500"), shared.KindUpstream)}
	r, _ := newTestRouter(t, Options{Labeler: labeler})

	w := doJSON(t, r, http.MethodPost, "/vision", map[string]any{"image": "x"})
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "vision request failed", decodeBody(t, w)["error"])
}

func TestRateLimiting(t *testing.T) {
	r, _ := newTestRouter(t, Options{RateInterval: time.Minute})

	body := map[string]any{
		"email":        "rate@example.com",
		"subscription": map[string]string{"endpoint": "x"},
	}
	w := doJSON(t, r, http.MethodPost, "/subscribe", body)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/subscribe", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Read-only routes stay exempt.
	w = doJSON(t, r, http.MethodGet, "/vapidPublicKey", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/subscribe", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}
