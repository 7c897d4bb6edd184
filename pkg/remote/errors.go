package remote

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names a step of a host reconcile
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageRewrite Stage = "rewrite"
	StageVerify  Stage = "verify"
	StageBackup  Stage = "backup"
	StagePush    Stage = "push"
)

// IOError is a failed copy to or from a host. Retryable is set for
// timeouts and connection failures.
type IOError struct {
	Host      string
	Stage     Stage
	Retryable bool
	Err       error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s on host %s: %v", e.Stage, e.Host, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is an IOError worth retrying
func IsRetryable(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr) && ioErr.Retryable
}

// HostFailure is one host that could not be reconciled
type HostFailure struct {
	Host string
	Err  error
}

// BatchResult reports what happened to every host of a batch
type BatchResult struct {
	Succeeded    []*HostResult
	Failed       []HostFailure
	NotAttempted []string
}

// SucceededHosts returns the names of the hosts that were rewritten
func (r *BatchResult) SucceededHosts() []string {
	hosts := make([]string, 0, len(r.Succeeded))
	for _, s := range r.Succeeded {
		hosts = append(hosts, s.Host)
	}
	return hosts
}

// FailedHost returns the first failed host, or ""
func (r *BatchResult) FailedHost() string {
	if len(r.Failed) == 0 {
		return ""
	}
	return r.Failed[0].Host
}

// BatchError is returned when any host of a batch fails. Hosts listed in
// Result.Succeeded keep their rewritten file; nothing is rolled back.
type BatchError struct {
	Result *BatchResult
	// Err is set when the batch stopped for a reason other than a host
	// failure, such as cancellation
	Err error
}

func (e *BatchError) Error() string {
	var b strings.Builder
	r := e.Result

	switch {
	case len(r.Failed) == 1:
		fmt.Fprintf(&b, "host batch failed on %s: %v", r.Failed[0].Host, r.Failed[0].Err)
	case len(r.Failed) > 1:
		fmt.Fprintf(&b, "host batch failed on %d hosts", len(r.Failed))
		for _, f := range r.Failed {
			fmt.Fprintf(&b, "; %s: %v", f.Host, f.Err)
		}
	case e.Err != nil:
		fmt.Fprintf(&b, "host batch stopped: %v", e.Err)
	default:
		b.WriteString("host batch failed")
	}
	fmt.Fprintf(&b, " (%d succeeded, %d not attempted)", len(r.Succeeded), len(r.NotAttempted))
	return b.String()
}

// Unwrap exposes every host error to errors.Is and errors.As
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Result.Failed)+1)
	for _, f := range e.Result.Failed {
		errs = append(errs, f.Err)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
