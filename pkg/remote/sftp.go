package remote

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPConfig configures SFTPTransport
type SFTPConfig struct {
	Port       int
	PrivateKey string // Path to a PEM private key
	KnownHosts string // Path to a known_hosts file
	// InsecureIgnoreHostKey skips host key checking; KnownHosts is then unused
	InsecureIgnoreHostKey bool
	// Timeout bounds connection setup and one copy; zero means no limit
	Timeout time.Duration
}

// SFTPTransport copies files over SSH without an external scp binary
type SFTPTransport struct {
	port     int
	timeout  time.Duration
	auth     []ssh.AuthMethod
	hostKeys ssh.HostKeyCallback
}

// NewSFTPTransport loads the private key and host key policy
func NewSFTPTransport(cfg SFTPConfig) (*SFTPTransport, error) {
	key, err := os.ReadFile(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	var hostKeys ssh.HostKeyCallback
	if cfg.InsecureIgnoreHostKey {
		hostKeys = ssh.InsecureIgnoreHostKey()
	} else {
		if cfg.KnownHosts == "" {
			return nil, fmt.Errorf("known_hosts file required unless host key checking is disabled: %w", errdefs.ErrInvalidArgument)
		}
		hostKeys, err = knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}

	return &SFTPTransport{
		port:     port,
		timeout:  cfg.Timeout,
		auth:     []ssh.AuthMethod{ssh.PublicKeys(signer)},
		hostKeys: hostKeys,
	}, nil
}

// Copy transfers one file over a fresh SSH connection
func (t *SFTPTransport) Copy(ctx context.Context, src, dst Location) error {
	var remote Location
	fetch := false
	switch {
	case src.IsRemote() && !dst.IsRemote():
		remote, fetch = src, true
	case !src.IsRemote() && dst.IsRemote():
		remote = dst
	default:
		return fmt.Errorf("copy %s to %s: exactly one side must be remote: %w", src, dst, errdefs.ErrInvalidArgument)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	client, err := t.dial(ctx, remote)
	if err != nil {
		return err
	}
	defer client.Close()

	// Abort a stalled transfer when the context ends
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("sftp session to %s: %w", remote.Host, err)
	}
	defer sc.Close()

	if fetch {
		err = t.fetch(sc, remote.Path, dst.Path)
	} else {
		err = t.push(sc, src.Path, remote.Path)
	}
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("copy %s to %s interrupted: %v: %w", src, dst, ctx.Err(), errdefs.ErrUnavailable)
	}
	return err
}

func (t *SFTPTransport) dial(ctx context.Context, remote Location) (*ssh.Client, error) {
	addr := net.JoinHostPort(remote.Host, strconv.Itoa(t.port))
	config := &ssh.ClientConfig{
		User:            remote.User,
		Auth:            t.auth,
		HostKeyCallback: t.hostKeys,
		Timeout:         t.timeout,
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %v: %w", addr, err, errdefs.ErrUnavailable)
	}

	// The handshake does not watch ctx; closing the conn unblocks it
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	stop()
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ssh handshake with %s interrupted: %v: %w", addr, ctx.Err(), errdefs.ErrUnavailable)
		}
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func (t *SFTPTransport) fetch(sc *sftp.Client, remotePath, localPath string) error {
	r, err := sc.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open remote %s: %w", remotePath, err)
	}
	defer r.Close()

	w, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("read remote %s: %w", remotePath, err)
	}
	return w.Close()
}

func (t *SFTPTransport) push(sc *sftp.Client, localPath, remotePath string) error {
	r, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer r.Close()

	// Create truncates an existing file and keeps its mode
	w, err := sc.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote %s: %w", remotePath, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("write remote %s: %w", remotePath, err)
	}
	return w.Close()
}
