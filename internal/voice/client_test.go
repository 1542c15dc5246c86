package voice

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardRelaysStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/channels", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"lobby"}`, string(body))
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	status, out, err := New(srv.URL).Forward(context.Background(), http.MethodPost, "/channels", []byte(`{"name":"lobby"}`))
	require.NoError(t, err)
	// upstream error statuses are relayed verbatim, not translated
	assert.Equal(t, http.StatusTeapot, status)
	assert.JSONEq(t, `{"id":1}`, string(out))
}

func TestForwardTransportFailure(t *testing.T) {
	c := New("http://127.0.0.1:1")
	_, _, err := c.Forward(context.Background(), http.MethodGet, "/ping", nil)
	assert.Error(t, err)
}
