package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lumenview/marquee/shared"
)

func TestNewHTTPClient_SetsUserAgentAndTimeout(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewHTTPClient(10 * time.Second)
	assert.Equal(t, 10*time.Second, client.Timeout)

	res, err := client.Get(srv.URL)
	assert.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, shared.USER_AGENT, got)
}

func TestUARoundtripper_DefaultsToStandardTransport(t *testing.T) {
	rt := &UARoundtripper{}
	req := httptest.NewRequest(http.MethodGet, "http://device.local/", nil)

	// The transport fills in the header before delegating; a nil inner
	// RoundTripper must fall back to http.DefaultTransport rather than
	// panic. The request itself fails (no such host) and that is fine.
	rt.RoundTrip(req)
	assert.Equal(t, shared.USER_AGENT, req.Header.Get("User-Agent"))
}
