package httpclient

import (
	"context"
	"encoding/json"
	"net/netip"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/sentinel/errors"
)

func TestNewSaferClient_Defaults(t *testing.T) {
	client := NewSaferClient(30 * time.Second)

	require.NotNil(t, client)
	assert.Equal(t, 30*time.Second, client.Timeout)
	assert.Equal(t, defaultMaxRedirects, client.maxRedirects)
	assert.False(t, client.allowPrivate)
	assert.NotNil(t, client.Transport, "private IP blocking installs a dialer")
}

func TestNewSaferClientWithOptions(t *testing.T) {
	client := NewSaferClientWithOptions(5*time.Second, SaferClientOptions{
		Schemes:      []string{"https"},
		MaxRedirects: 2,
		AllowPrivate: true,
	})

	assert.Equal(t, []string{"https"}, client.schemes)
	assert.Equal(t, 2, client.maxRedirects)
	assert.True(t, client.allowPrivate)
	assert.Nil(t, client.Transport)

	_, err := client.ValidateURL("http://example.com")
	assert.ErrorContains(t, err, "scheme")
	_, err = client.ValidateURL("https://localhost:8000")
	assert.NoError(t, err)
}

func TestValidateURL(t *testing.T) {
	client := NewSaferClient(30 * time.Second)

	tests := []struct {
		name        string
		url         string
		errContains string
	}{
		{"valid https", "https://api.quantum.example.com/runtime", ""},
		{"valid http", "http://example.com", ""},
		{"file scheme", "file:///etc/passwd", "scheme"},
		{"ftp scheme", "ftp://example.com", "scheme"},
		{"localhost", "http://localhost/admin", "localhost"},
		{"localhost subdomain", "http://api.localhost", "localhost"},
		{"loopback ip", "http://127.0.0.1:8080", "private IP"},
		{"rfc1918", "http://192.168.1.10", "private IP"},
		{"link-local metadata", "http://169.254.169.254/latest", "private IP"},
		{"ipv6 loopback", "http://[::1]/", "private IP"},
		{"credential confusion", "http://evil.com@localhost/", "@"},
		{"missing host", "http:///path", "hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ValidateURL(tt.url)
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestIsBlocked(t *testing.T) {
	blocked := []string{"10.1.2.3", "172.16.0.1", "192.168.0.1", "127.0.0.1", "0.0.0.0", "169.254.169.254",
		"224.0.0.1", "250.1.1.1", "::ffff:127.0.0.1", "fc00::1", "fd12::1", "fe80::1", "fec0::1", "2001:db8::1"}
	public := []string{"8.8.8.8", "1.1.1.1", "2606:4700:4700::1111"}

	for _, s := range blocked {
		assert.True(t, isBlocked(netip.MustParseAddr(s)), s)
	}
	for _, s := range public {
		assert.False(t, isBlocked(netip.MustParseAddr(s)), s)
	}
}

func TestIsLocalhost(t *testing.T) {
	assert.True(t, isLocalhost("LOCALHOST"))
	assert.True(t, isLocalhost("localhost."))
	assert.True(t, isLocalhost("synth.localhost"))
	assert.False(t, isLocalhost("localhost.example.com"))
}

func TestDo_BlocksLocalhostWhenProtected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client := NewSaferClient(time.Second)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSRF")
}

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "ibm_torino", in["backend"])

		_ = json.NewEncoder(w).Encode(map[string]string{"id": "sess-1"})
	}))
	defer srv.Close()

	client := WrapClient(srv.Client())
	var out struct {
		ID string `json:"id"`
	}
	err := client.DoJSON(context.Background(), http.MethodPost, srv.URL+"/sessions", "secret",
		map[string]string{"backend": "ibm_torino"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", out.ID)
}

func TestDoJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		http.Error(w, "quota exhausted", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := WrapClient(srv.Client())
	err := client.DoJSON(context.Background(), http.MethodDelete, srv.URL+"/sessions/x", "", nil, nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, "quota exhausted", se.Body)
}

func TestDoJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out map[string]any
	err := WrapClient(srv.Client()).DoJSON(context.Background(), http.MethodGet, srv.URL, "", nil, &out)
	assert.ErrorContains(t, err, "decode")
}

func TestDoJSON_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WrapClient(srv.Client()).DoJSON(ctx, http.MethodGet, srv.URL, "", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
