package volumeservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCinder is a minimal block storage API
type fakeCinder struct {
	mu       sync.Mutex
	services []map[string]string
	types    []*VolumeType
	pools    []string
	deleted  []string
	tokens   []string
	failures int32 // Requests answered with 503 before serving
}

func (f *fakeCinder) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/os-services", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var out []map[string]string
		for _, s := range f.services {
			if s["binary"] == r.URL.Query().Get("binary") {
				out = append(out, s)
			}
		}
		writeJSON(w, map[string]interface{}{"services": out})
	})
	mux.HandleFunc("/types", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, map[string]interface{}{"volume_types": f.types})
		case http.MethodPost:
			var req typeEnvelope
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			req.VolumeType.ID = "type-" + req.VolumeType.Name
			f.types = append(f.types, req.VolumeType)
			writeJSON(w, req)
		}
	})
	mux.HandleFunc("/types/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.URL.Path[len("/types/"):]
		for i, t := range f.types {
			if t.ID == id {
				f.types = append(f.types[:i], f.types[i+1:]...)
				f.deleted = append(f.deleted, id)
				w.WriteHeader(http.StatusAccepted)
				return
			}
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/scheduler-stats/get_pools", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var out []map[string]string
		for _, p := range f.pools {
			out = append(out, map[string]string{"name": p})
		}
		writeJSON(w, map[string]interface{}{"pools": out})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokens = append(f.tokens, r.Header.Get("X-Auth-Token"))
		f.mu.Unlock()
		if atomic.AddInt32(&f.failures, -1) >= 0 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func newTestClient(t *testing.T, f *fakeCinder, retries int) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(HTTPConfig{
		Endpoint:      srv.URL + "/",
		Token:         "secret",
		Retries:       retries,
		RetryInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestHTTPClient_ListHosts(t *testing.T) {
	f := &fakeCinder{services: []map[string]string{
		{"binary": "cinder-volume", "host": "ctrl-1@lvm-1"},
		{"binary": "cinder-volume", "host": "ctrl-2@rbd-1"},
		{"binary": "cinder-volume", "host": "ctrl-1@rbd-1"},
		{"binary": "cinder-volume", "host": "ctrl-3"},
		{"binary": "cinder-scheduler", "host": "ctrl-9"},
	}}
	c := newTestClient(t, f, 0)

	hosts, err := c.ListHosts(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ctrl-1", "ctrl-2", "ctrl-3"}, hosts)

	hosts, err = c.ListHosts(context.Background(), DefaultBinary, "rbd-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ctrl-1", "ctrl-2"}, hosts)

	assert.Contains(t, f.tokens, "secret")
}

func TestHTTPClient_VolumeTypes(t *testing.T) {
	f := &fakeCinder{}
	c := newTestClient(t, f, 0)
	ctx := context.Background()

	_, err := c.GetVolumeType(ctx, "gold")
	assert.True(t, errdefs.IsNotFound(err))

	created, err := c.CreateBackendType(ctx, "gold", "gold_backend")
	require.NoError(t, err)
	assert.Equal(t, "type-gold", created.ID)
	assert.Equal(t, "gold_backend", created.BackendName())

	// Second create returns the existing type
	again, err := c.CreateBackendType(ctx, "gold", "gold_backend")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Len(t, f.types, 1)

	byID, err := c.GetVolumeType(ctx, "type-gold")
	require.NoError(t, err)
	assert.Equal(t, "gold", byID.Name)

	require.NoError(t, c.DeleteBackendType(ctx, "type-gold"))
	assert.Equal(t, []string{"type-gold"}, f.deleted)

	err = c.DeleteBackendType(ctx, "type-gold")
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))
}

func TestHTTPClient_GetPoolInfo(t *testing.T) {
	f := &fakeCinder{
		types: []*VolumeType{
			{ID: "1", Name: "bronze", ExtraSpecs: map[string]string{BackendNameSpec: "rbd-backend"}},
			{ID: "2", Name: "silver", ExtraSpecs: map[string]string{BackendNameSpec: "iscsi_backend"}},
			{ID: "3", Name: "plain"},
		},
		pools: []string{
			"ihcontroller@lvm-1#iscsi_backend",
			"ihcontroller@rbd-1#rbd-backend",
			"garbage",
		},
	}
	c := newTestClient(t, f, 0)

	info, err := c.GetPoolInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]PoolInfo{
		"bronze": {Host: "ihcontroller", Section: "rbd-1", BackendName: "rbd-backend"},
		"silver": {Host: "ihcontroller", Section: "lvm-1", BackendName: "iscsi_backend"},
	}, info)
}

func TestHTTPClient_Retries(t *testing.T) {
	tests := []struct {
		name     string
		failures int32
		retries  int
		wantErr  bool
	}{
		{name: "no failures", failures: 0, retries: 0},
		{name: "recovers within budget", failures: 2, retries: 2},
		{name: "budget exhausted", failures: 3, retries: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeCinder{failures: tt.failures}
			c := newTestClient(t, f, tt.retries)

			_, err := c.ListHosts(context.Background(), DefaultBinary, "")
			if tt.wantErr {
				assert.True(t, errdefs.IsUnavailable(err), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewHTTPClient_InvalidEndpoint(t *testing.T) {
	_, err := NewHTTPClient(HTTPConfig{Endpoint: "cinder:8776"})
	assert.Error(t, err)
}

func TestParsePoolName(t *testing.T) {
	tests := []struct {
		in   string
		want PoolInfo
		ok   bool
	}{
		{"host@section#backend", PoolInfo{"host", "section", "backend"}, true},
		{"host#backend", PoolInfo{}, false},
		{"host@section", PoolInfo{}, false},
		{"a@b#c#d", PoolInfo{}, false},
	}
	for _, tt := range tests {
		got, ok := parsePoolName(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
