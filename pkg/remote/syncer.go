package remote

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/iniconf"
	"github.com/cuemby/sdscompose/pkg/log"
	"github.com/cuemby/sdscompose/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Request describes one configuration change to apply on every host
type Request struct {
	Path   string // Configuration file on the host
	User   string // Remote account used for copies
	Search iniconf.Sections
	Update iniconf.Sections
	Mode   iniconf.Mode
}

// HostResult is a successfully reconciled host
type HostResult struct {
	Host       string
	Sections   iniconf.Sections  // Update set under on-disk section names
	Renames    map[string]string // Logical -> on-disk name
	BackupPath string            // Copy of the original file on the host
	Duration   time.Duration
}

// Options configures a Syncer
type Options struct {
	ScratchDir  string // Local directory for fetched copies; "" uses os.TempDir
	GroupingKey string
	Strict      bool // Fail on ambiguous section matches
	Verify      bool // Re-read every rewritten file before pushing it

	// Parallel > 1 reconciles up to that many hosts at once and collects
	// every failure instead of stopping at the first
	Parallel int

	// MaxRetries > 0 retries retryable copy failures with exponential backoff
	MaxRetries    int
	RetryInterval time.Duration
}

// Syncer applies configuration changes to remote hosts
type Syncer struct {
	transport Transport
	opts      Options
	newID     func() string
	logger    zerolog.Logger
}

// NewSyncer creates a syncer copying files with transport
func NewSyncer(transport Transport, opts Options) *Syncer {
	return &Syncer{
		transport: transport,
		opts:      opts,
		newID:     uuid.NewString,
		logger:    log.WithComponent("remote"),
	}
}

// ReconcileHost fetches the configuration file from host, rewrites it,
// stores the original next to it as <path>.orig.<uuid> and pushes the
// rewritten file. Local scratch copies are removed on success and kept on
// failure for inspection.
func (s *Syncer) ReconcileHost(ctx context.Context, host string, req Request) (*HostResult, error) {
	timer := metrics.NewTimer()
	logger := s.logger.With().Str("host", host).Str("path", req.Path).Str("mode", string(req.Mode)).Logger()
	logger.Debug().Msg("Reconciling host configuration")

	result, scratch, err := s.reconcileHost(ctx, host, req, logger)

	timer.ObserveDurationVec(metrics.HostReconcileDuration, string(req.Mode))
	if err != nil {
		metrics.HostReconcilesTotal.WithLabelValues(string(req.Mode), "failed").Inc()
		logger.Warn().Err(err).Strs("scratch_files", scratch).Msg("Host reconcile failed, scratch files left in place")
		return nil, err
	}

	for _, path := range scratch {
		if err := os.Remove(path); err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("Failed to remove scratch file")
		}
	}

	result.Duration = timer.Duration()
	metrics.HostReconcilesTotal.WithLabelValues(string(req.Mode), "success").Inc()
	logger.Info().
		Str("backup", result.BackupPath).
		Strs("sections", result.Sections.Names()).
		Dur("duration", result.Duration).
		Msg("Host configuration updated")
	return result, nil
}

func (s *Syncer) reconcileHost(ctx context.Context, host string, req Request, logger zerolog.Logger) (*HostResult, []string, error) {
	var scratch []string
	live := Location{User: req.User, Host: host, Path: req.Path}

	// Fetch
	src, err := s.scratchFile("sdscompose-orig-*.conf")
	if err != nil {
		return nil, scratch, err
	}
	scratch = append(scratch, src)

	if err := s.copy(ctx, host, StageFetch, live, Local(src)); err != nil {
		return nil, scratch, err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, scratch, fmt.Errorf("read fetched copy of %s from %s: %w", req.Path, host, err)
	}

	// Rewrite
	change, err := iniconf.ChangeBackends(data, req.Search, req.Update, req.Mode, iniconf.Options{
		GroupingKey: s.opts.GroupingKey,
		Strict:      s.opts.Strict,
	})
	if err != nil {
		return nil, scratch, fmt.Errorf("%s on host %s: %w", StageRewrite, host, err)
	}
	if s.opts.Verify {
		if err := iniconf.Verify(change.Output, change, req.Mode, s.opts.GroupingKey); err != nil {
			return nil, scratch, fmt.Errorf("%s on host %s: %w", StageVerify, host, err)
		}
	}

	dst, err := s.scratchFile("sdscompose-new-*.conf")
	if err != nil {
		return nil, scratch, err
	}
	scratch = append(scratch, dst)
	if err := os.WriteFile(dst, change.Output, 0600); err != nil {
		return nil, scratch, fmt.Errorf("write rewritten copy: %w", err)
	}
	logger.Debug().Int("bytes", len(change.Output)).Interface("renames", change.Renames).Msg("Configuration rewritten")

	// Backup strictly before overwrite
	backup := fmt.Sprintf("%s.orig.%s", req.Path, s.newID())
	if err := s.copy(ctx, host, StageBackup, Local(src), Location{User: req.User, Host: host, Path: backup}); err != nil {
		return nil, scratch, err
	}
	if err := s.copy(ctx, host, StagePush, Local(dst), live); err != nil {
		return nil, scratch, err
	}

	return &HostResult{
		Host:       host,
		Sections:   change.Sections,
		Renames:    change.Renames,
		BackupPath: backup,
	}, scratch, nil
}

func (s *Syncer) scratchFile(pattern string) (string, error) {
	f, err := os.CreateTemp(s.opts.ScratchDir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return name, err
	}
	return name, nil
}

// copy runs one transport copy, retrying retryable failures when enabled
func (s *Syncer) copy(ctx context.Context, host string, stage Stage, src, dst Location) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RemoteCopyDuration, string(stage))

	attempt := 0
	op := func() error {
		if attempt > 0 {
			metrics.RemoteCopyRetries.WithLabelValues(string(stage)).Inc()
			s.logger.Debug().Str("host", host).Str("stage", string(stage)).Int("attempt", attempt+1).Msg("Retrying copy")
		}
		attempt++

		err := s.transport.Copy(ctx, src, dst)
		if err != nil && !errdefs.IsUnavailable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var err error
	if s.opts.MaxRetries > 0 {
		b := backoff.NewExponentialBackOff()
		if s.opts.RetryInterval > 0 {
			b.InitialInterval = s.opts.RetryInterval
		}
		err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxRetries)), ctx))
	} else {
		err = s.transport.Copy(ctx, src, dst)
	}

	if err != nil {
		return &IOError{
			Host:      host,
			Stage:     stage,
			Retryable: errdefs.IsUnavailable(err),
			Err:       err,
		}
	}
	return nil
}

// ReconcileBatch reconciles hosts in order. By default the first failure
// stops the batch: earlier hosts stay rewritten, later hosts are reported
// as not attempted. With Options.Parallel > 1 hosts run concurrently and
// every failure is collected. Any failure returns a *BatchError alongside
// the result.
func (s *Syncer) ReconcileBatch(ctx context.Context, hosts []string, req Request) (*BatchResult, error) {
	if s.opts.Parallel > 1 && len(hosts) > 1 {
		return s.reconcileParallel(ctx, hosts, req)
	}

	res := &BatchResult{}
	for i, host := range hosts {
		if err := ctx.Err(); err != nil {
			res.NotAttempted = append(res.NotAttempted, hosts[i:]...)
			return res, &BatchError{Result: res, Err: err}
		}

		hr, err := s.ReconcileHost(ctx, host, req)
		if err != nil {
			res.Failed = []HostFailure{{Host: host, Err: err}}
			res.NotAttempted = append(res.NotAttempted, hosts[i+1:]...)
			s.logger.Error().
				Err(err).
				Str("failed_host", host).
				Strs("succeeded", res.SucceededHosts()).
				Strs("not_attempted", res.NotAttempted).
				Msg("Host batch aborted")
			return res, &BatchError{Result: res}
		}
		res.Succeeded = append(res.Succeeded, hr)
	}
	return res, nil
}

func (s *Syncer) reconcileParallel(ctx context.Context, hosts []string, req Request) (*BatchResult, error) {
	results := make([]*HostResult, len(hosts))
	errs := make([]error, len(hosts))
	skipped := make([]bool, len(hosts))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.opts.Parallel)

	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				skipped[i] = true
				mu.Unlock()
				return nil
			}
			hr, err := s.ReconcileHost(ctx, host, req)
			mu.Lock()
			results[i], errs[i] = hr, err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res := &BatchResult{}
	for i, host := range hosts {
		switch {
		case skipped[i]:
			res.NotAttempted = append(res.NotAttempted, host)
		case errs[i] != nil:
			res.Failed = append(res.Failed, HostFailure{Host: host, Err: errs[i]})
		default:
			res.Succeeded = append(res.Succeeded, results[i])
		}
	}

	if len(res.Failed) > 0 || len(res.NotAttempted) > 0 {
		s.logger.Error().
			Int("failed", len(res.Failed)).
			Strs("succeeded", res.SucceededHosts()).
			Strs("not_attempted", res.NotAttempted).
			Msg("Parallel host batch failed")
		return res, &BatchError{Result: res, Err: ctx.Err()}
	}
	return res, nil
}
