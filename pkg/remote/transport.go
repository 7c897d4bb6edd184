package remote

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/containerd/errdefs"
)

// Transport copies a file between the local machine and a host. Exactly
// one of src and dst is remote.
type Transport interface {
	Copy(ctx context.Context, src, dst Location) error
}

// Default copy command templates
const (
	DefaultCopyFromRemote = "scp -B %user%@%host%:%file% %temp%"
	DefaultCopyToRemote   = "scp -B %temp% %user%@%host%:%file%"
)

// CommandTransport copies by running an external command built from a
// template. Templates are split on whitespace and each field has the tokens
// %user%, %host%, %file% (remote path) and %temp% (local path) replaced,
// so substituted values are never re-split or interpreted by a shell.
type CommandTransport struct {
	FromRemote string
	ToRemote   string
	// Timeout bounds one copy; zero means no limit
	Timeout time.Duration
}

// NewCommandTransport returns a transport using the given templates,
// falling back to scp for empty ones
func NewCommandTransport(fromRemote, toRemote string, timeout time.Duration) *CommandTransport {
	if fromRemote == "" {
		fromRemote = DefaultCopyFromRemote
	}
	if toRemote == "" {
		toRemote = DefaultCopyToRemote
	}
	return &CommandTransport{FromRemote: fromRemote, ToRemote: toRemote, Timeout: timeout}
}

// Copy runs the matching template
func (t *CommandTransport) Copy(ctx context.Context, src, dst Location) error {
	argv, err := t.command(src, dst)
	if err != nil {
		return err
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s: %w", argv[0], t.Timeout, errdefs.ErrUnavailable)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", argv[0], ctx.Err())
	}
	if msg := strings.TrimSpace(string(out)); msg != "" {
		return fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, msg)
	}
	return fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
}

func (t *CommandTransport) command(src, dst Location) ([]string, error) {
	var tmpl, local string
	var remote Location

	switch {
	case src.IsRemote() && !dst.IsRemote():
		tmpl, remote, local = t.FromRemote, src, dst.Path
	case !src.IsRemote() && dst.IsRemote():
		tmpl, remote, local = t.ToRemote, dst, src.Path
	default:
		return nil, fmt.Errorf("copy %s to %s: exactly one side must be remote: %w", src, dst, errdefs.ErrInvalidArgument)
	}

	fields := strings.Fields(tmpl)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty copy command template: %w", errdefs.ErrInvalidArgument)
	}

	argv := make([]string, len(fields))
	for i, f := range fields {
		argv[i] = expand(f, remote, local)
	}
	return argv, nil
}

func expand(field string, remote Location, local string) string {
	if remote.User == "" {
		field = strings.ReplaceAll(field, "%user%@", "")
	}
	return strings.NewReplacer(
		"%user%", remote.User,
		"%host%", remote.Host,
		"%file%", remote.Path,
		"%temp%", local,
	).Replace(field)
}
