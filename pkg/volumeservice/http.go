package volumeservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/log"
	"github.com/rs/zerolog"
)

// HTTPConfig configures the REST client
type HTTPConfig struct {
	Endpoint string // Base URL including project path, e.g. http://cinder:8776/v2/<project>
	Token    string // Sent as X-Auth-Token
	Timeout  time.Duration
	Retries  int // Extra attempts for connection failures and 5xx replies

	// RetryInterval is the first backoff wait; later waits grow exponentially
	RetryInterval time.Duration
}

// HTTPClient speaks the block storage REST API
type HTTPClient struct {
	endpoint *url.URL
	token    string
	retries  int
	interval time.Duration
	http     *http.Client
	logger   zerolog.Logger
}

// NewHTTPClient creates a client for cfg.Endpoint
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid volume service endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid volume service endpoint %q: %w", cfg.Endpoint, errdefs.ErrInvalidArgument)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		endpoint: u,
		token:    cfg.Token,
		retries:  cfg.Retries,
		interval: cfg.RetryInterval,
		http:     &http.Client{Timeout: timeout},
		logger:   log.WithComponent("volumeservice"),
	}, nil
}

// statusError is a non-2xx reply
type statusError struct {
	method string
	path   string
	code   int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.method, e.path, e.code, e.body)
}

func (e *statusError) Unwrap() error {
	switch {
	case e.code == http.StatusNotFound:
		return errdefs.ErrNotFound
	case e.code == http.StatusConflict:
		return errdefs.ErrAlreadyExists
	case e.code == http.StatusBadRequest:
		return errdefs.ErrInvalidArgument
	case e.code == http.StatusUnauthorized || e.code == http.StatusForbidden:
		return errdefs.ErrPermissionDenied
	case e.code >= 500:
		return errdefs.ErrUnavailable
	default:
		return errdefs.ErrUnknown
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint.String()+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("X-Auth-Token", c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("%s %s: %v: %w", method, path, err, errdefs.ErrUnavailable)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &statusError{method: method, path: path, code: resp.StatusCode, body: strings.TrimSpace(string(data))}
			if resp.StatusCode >= 500 {
				return serr
			}
			return backoff.Permanent(serr)
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s %s: %w", method, path, err))
		}
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	if c.interval > 0 {
		exp.InitialInterval = c.interval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.retries)), ctx)
	return backoff.RetryNotify(attempt, b, func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Dur("wait", wait).Msg("Retrying volume service request")
	})
}

type serviceList struct {
	Services []struct {
		Binary string `json:"binary"`
		Host   string `json:"host"`
		Status string `json:"status"`
		State  string `json:"state"`
	} `json:"services"`
}

func (c *HTTPClient) ListHosts(ctx context.Context, binary, backendName string) ([]string, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	var list serviceList
	if err := c.do(ctx, http.MethodGet, "/os-services?binary="+url.QueryEscape(binary), nil, &list); err != nil {
		return nil, fmt.Errorf("list %s services: %w", binary, err)
	}

	seen := make(map[string]struct{})
	for _, svc := range list.Services {
		if svc.Binary != binary {
			continue
		}
		if host, ok := serviceHost(svc.Host, backendName); ok {
			seen[host] = struct{}{}
		}
	}
	return sortedHosts(seen), nil
}

type typeList struct {
	VolumeTypes []*VolumeType `json:"volume_types"`
}

type typeEnvelope struct {
	VolumeType *VolumeType `json:"volume_type"`
}

func (c *HTTPClient) listTypes(ctx context.Context) ([]*VolumeType, error) {
	var list typeList
	if err := c.do(ctx, http.MethodGet, "/types", nil, &list); err != nil {
		return nil, fmt.Errorf("list volume types: %w", err)
	}
	return list.VolumeTypes, nil
}

func (c *HTTPClient) GetVolumeType(ctx context.Context, ref string) (*VolumeType, error) {
	types, err := c.listTypes(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range types {
		if t.Name == ref || t.ID == ref {
			return t, nil
		}
	}
	return nil, fmt.Errorf("volume type %s: %w", ref, errdefs.ErrNotFound)
}

func (c *HTTPClient) CreateBackendType(ctx context.Context, typeName, backendName string) (*VolumeType, error) {
	existing, err := c.GetVolumeType(ctx, typeName)
	if err == nil {
		if existing.BackendName() != backendName {
			c.logger.Warn().
				Str("type", typeName).
				Str("want", backendName).
				Str("have", existing.BackendName()).
				Msg("Volume type already bound to a different backend name")
		}
		return existing, nil
	}
	if !errdefs.IsNotFound(err) {
		return nil, err
	}

	req := typeEnvelope{VolumeType: &VolumeType{
		Name:       typeName,
		ExtraSpecs: map[string]string{BackendNameSpec: backendName},
	}}
	var created typeEnvelope
	if err := c.do(ctx, http.MethodPost, "/types", req, &created); err != nil {
		return nil, fmt.Errorf("create volume type %s: %w", typeName, err)
	}
	if created.VolumeType == nil {
		return c.GetVolumeType(ctx, typeName)
	}
	return created.VolumeType, nil
}

func (c *HTTPClient) DeleteBackendType(ctx context.Context, typeID string) error {
	if err := c.do(ctx, http.MethodDelete, "/types/"+url.PathEscape(typeID), nil, nil); err != nil {
		return fmt.Errorf("delete volume type %s: %w", typeID, err)
	}
	return nil
}

type poolList struct {
	Pools []struct {
		Name string `json:"name"`
	} `json:"pools"`
}

func (c *HTTPClient) GetPoolInfo(ctx context.Context) (map[string]PoolInfo, error) {
	types, err := c.listTypes(ctx)
	if err != nil {
		return nil, err
	}
	var list poolList
	if err := c.do(ctx, http.MethodGet, "/scheduler-stats/get_pools", nil, &list); err != nil {
		return nil, fmt.Errorf("get scheduler pools: %w", err)
	}

	var pools []PoolInfo
	for _, p := range list.Pools {
		info, ok := parsePoolName(p.Name)
		if !ok {
			c.logger.Debug().Str("pool", p.Name).Msg("Skipping unparseable scheduler pool name")
			continue
		}
		pools = append(pools, info)
	}
	return poolInfoByType(types, pools), nil
}
