package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanse/internal/domain"
)

const unreachable = "Não consegui me conectar ao cérebro do bot. Tente novamente mais tarde."

type fakeAnswerer struct {
	mu    sync.Mutex
	calls [][2]string
}

func (f *fakeAnswerer) Answer(_ context.Context, channelID, query string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{channelID, query})
	return "answer to " + query
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAskEndpoint(t *testing.T) {
	a := &fakeAnswerer{}
	h := NewServer(a, quietLogger()).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"query":"Jhin build?","channel_id":"42"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp AskResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "answer to Jhin build?", resp.Answer)
	assert.Equal(t, [][2]string{{"42", "Jhin build?"}}, a.calls)
}

func TestAskRejectsMalformedBody(t *testing.T) {
	a := &fakeAnswerer{}
	h := NewServer(a, quietLogger()).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, a.calls)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAskRequiresChannel(t *testing.T) {
	a := &fakeAnswerer{}
	h := NewServer(a, quietLogger()).Handler()

	for _, body := range []string{`{"query":"Kayn?"}`, `{"query":"Kayn?","channel_id":"  "}`} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"error":"channel_id is required"}`, rec.Body.String())
	}
	assert.Empty(t, a.calls)
}

func TestAccessLogTagsRequests(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := NewServer(&fakeAnswerer{}, logger).Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"query":"Jhin?","channel_id":"c7"}`))
	req.Header.Set(RequestIDHeader, "req-1")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, logs.String(), "request_id=req-1")
	assert.Contains(t, logs.String(), "channel_id=c7")
	assert.Contains(t, logs.String(), "status=200")

	logs.Reset()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{`)))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader), "an id is generated when none is sent")
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "status=400")
}

func TestRootAndHealth(t *testing.T) {
	h := NewServer(&fakeAnswerer{}, quietLogger()).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var root map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&root))
	assert.Equal(t, WelcomeMessage, root["message"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoverAndChainOrder(t *testing.T) {
	var order []int
	mw := func(n int) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, n)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, 0)
		panic("boom")
	}), Recover(quietLogger()), mw(1), mw(2))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
	assert.Equal(t, []int{1, 2, 0}, order)
}

func TestClientRoundTripsThroughServer(t *testing.T) {
	a := &fakeAnswerer{}
	srv := httptest.NewServer(NewServer(a, quietLogger()).Handler())
	defer srv.Close()

	c := NewClient(srv.URL+"/", unreachable, 5*time.Second, quietLogger())
	answer, err := c.Ask(context.Background(), "chan", "Kayn?")
	require.NoError(t, err)
	assert.Equal(t, "answer to Kayn?", answer)
	assert.Equal(t, "answer to Smolder?", c.Answer(context.Background(), "chan", "Smolder?"))
}

func TestClientFailuresAreTransportErrors(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>")
	}))
	defer garbage.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	for name, url := range map[string]string{"status": bad.URL, "decode": garbage.URL, "refused": closedURL} {
		t.Run(name, func(t *testing.T) {
			c := NewClient(url, unreachable, 2*time.Second, quietLogger())
			_, err := c.Ask(context.Background(), "chan", "q")
			assert.ErrorIs(t, err, domain.ErrTransport)
			assert.Equal(t, unreachable, c.Answer(context.Background(), "chan", "q"))
		})
	}
}
