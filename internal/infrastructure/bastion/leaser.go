// Package bastion fetches the target private key held on the bastion host
// into a per-request scratch file.
package bastion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

const (
	defaultSSHPort     = 22
	defaultDialTimeout = 10 * time.Second
	keyFileMode        = 0o600
)

// Config describes how to reach the bastion and which key to fetch.
type Config struct {
	Address string
	Port    int
	User    string
	// JumpKeyPath is the local key used to authenticate to the bastion.
	JumpKeyPath string
	// SourceKeyPath is the path of the target private key on the bastion.
	SourceKeyPath string
	// ScratchDir receives the leased key files.
	ScratchDir string
	// KnownHostsPath enables host key verification when set.
	KnownHostsPath string
	DialTimeout    time.Duration
}

func (c Config) validate() error {
	missing := []string{}
	if c.Address == "" {
		missing = append(missing, "address")
	}
	if c.User == "" {
		missing = append(missing, "user")
	}
	if c.JumpKeyPath == "" {
		missing = append(missing, "jump_private_key")
	}
	if c.SourceKeyPath == "" {
		missing = append(missing, "source_private_key")
	}
	if c.ScratchDir == "" {
		missing = append(missing, "scratch_dir")
	}
	if len(missing) > 0 {
		return fmt.Errorf("bastion config missing %v", missing)
	}
	return nil
}

// Leaser implements ports.CredentialLeaser over SSH and SFTP.
type Leaser struct {
	cfg    Config
	logger ports.Logger
}

// LeaserOption configures a Leaser.
type LeaserOption func(*Leaser)

// WithLeaserLogger injects a logger.
func WithLeaserLogger(logger ports.Logger) LeaserOption {
	return func(l *Leaser) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLeaser builds a Leaser for cfg.
func NewLeaser(cfg Config, opts ...LeaserOption) *Leaser {
	if cfg.Port == 0 {
		cfg.Port = defaultSSHPort
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	l := &Leaser{cfg: cfg, logger: logging.NewNoOpLogger()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "bastion")
	return l
}

// Acquire copies the bastion-held key into a unique scratch file with mode
// 0600. The returned lease is never nil; on failure its Release removes any
// partially written file.
func (l *Leaser) Acquire(ctx context.Context) (*remotecall.CredentialLease, error) {
	if err := l.cfg.validate(); err != nil {
		return remotecall.NewCredentialLease("", nil), remotecall.NewCredentialTransferError("precondition", err)
	}

	path := filepath.Join(l.cfg.ScratchDir, "key-"+uuid.NewString())
	lease := remotecall.NewCredentialLease(path, func(p string, err error) {
		l.logger.Warn(ctx, "failed to remove leased key", "path", p, "error", err)
	})

	started := time.Now()
	if err := l.fetch(ctx, path); err != nil {
		l.logger.Error(ctx, "key transfer failed", "bastion", l.cfg.Address, "error", err)
		return lease, err
	}
	l.logger.Debug(ctx, "key leased", "path", path, "duration_ms", time.Since(started).Milliseconds())
	return lease, nil
}

func (l *Leaser) fetch(ctx context.Context, dest string) error {
	clientConfig, err := l.clientConfig()
	if err != nil {
		return remotecall.NewCredentialTransferError("auth", err)
	}

	client, err := l.dial(ctx, clientConfig)
	if err != nil {
		return remotecall.NewCredentialTransferError("connect", err)
	}
	defer client.Close()

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return remotecall.NewCredentialTransferError("sftp", contextCause(ctx, err))
	}
	defer sftpClient.Close()

	if err := copyRemoteFile(sftpClient, l.cfg.SourceKeyPath, dest); err != nil {
		return remotecall.NewCredentialTransferError("transfer", contextCause(ctx, err))
	}
	if err := os.Chmod(dest, keyFileMode); err != nil {
		return remotecall.NewCredentialTransferError("chmod", err)
	}
	return nil
}

func (l *Leaser) clientConfig() (*ssh.ClientConfig, error) {
	pemBytes, err := os.ReadFile(l.cfg.JumpKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read jump key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse jump key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if l.cfg.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(l.cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            l.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         l.cfg.DialTimeout,
	}, nil
}

func (l *Leaser) dial(ctx context.Context, config *ssh.ClientConfig) (*ssh.Client, error) {
	addr := net.JoinHostPort(l.cfg.Address, strconv.Itoa(l.cfg.Port))
	dialer := net.Dialer{Timeout: l.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(l.cfg.DialTimeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func copyRemoteFile(client *sftp.Client, src, dest string) error {
	remote, err := client.Open(src)
	if err != nil {
		return fmt.Errorf("open remote key: %w", err)
	}
	defer remote.Close()

	local, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFileMode)
	if err != nil {
		return fmt.Errorf("create local key: %w", err)
	}
	if _, err := io.Copy(local, remote); err != nil {
		_ = local.Close()
		return fmt.Errorf("copy key: %w", err)
	}
	if err := local.Close(); err != nil {
		return fmt.Errorf("close local key: %w", err)
	}
	return nil
}

func contextCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}

var _ ports.CredentialLeaser = (*Leaser)(nil)
