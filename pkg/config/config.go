package config

import (
	"fmt"
	"os"
	"time"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/iniconf"
	"github.com/cuemby/sdscompose/pkg/remote"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Transport kinds
const (
	TransportCommand = "command"
	TransportSFTP    = "sftp"
)

// Config is the complete composer configuration
type Config struct {
	DataDir string `yaml:"data_dir" validate:"required"`
	Log     Log    `yaml:"log"`

	// GroupingKey is the default-section key listing enabled sections
	GroupingKey string `yaml:"grouping_key" validate:"required"`

	CopyFromRemoteCmd string        `yaml:"copy_from_remote_cmd" validate:"required"`
	CopyToRemoteCmd   string        `yaml:"copy_to_remote_cmd" validate:"required"`
	Transport         string        `yaml:"transport" validate:"oneof=command sftp"`
	SFTP              SFTP          `yaml:"sftp"`
	CopyTimeout       time.Duration `yaml:"copy_timeout" validate:"gte=0"`
	Retry             Retry         `yaml:"retry"`
	ParallelHosts     int           `yaml:"parallel_hosts" validate:"gte=0"`
	ScratchDir        string        `yaml:"scratch_dir"`

	VerifyOutput       bool `yaml:"verify_output"`
	StrictSectionMatch bool `yaml:"strict_section_match"`

	// Services maps a service kind to the files its hosts read
	Services map[types.ServiceKind]Service `yaml:"services" validate:"required,dive"`

	VolumeService VolumeService `yaml:"volume_service"`

	// Drivers holds per-driver options keyed by driver name
	Drivers map[string]map[string]string `yaml:"drivers"`

	MetricsAddr string `yaml:"metrics_addr"`

	// SecretKeyFile, when set, seals credential-like backend specs at rest
	SecretKeyFile string `yaml:"secret_key_file"`
}

type Log struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

type SFTP struct {
	Port                  int    `yaml:"port" validate:"gte=0,lte=65535"`
	PrivateKey            string `yaml:"private_key"`
	KnownHosts            string `yaml:"known_hosts"`
	InsecureIgnoreHostKey bool   `yaml:"insecure_ignore_host_key"`
}

type Retry struct {
	MaxRetries      int           `yaml:"max_retries" validate:"gte=0"`
	InitialInterval time.Duration `yaml:"initial_interval" validate:"gte=0"`
}

// Service describes where a service kind keeps its configuration file.
// Entries in a file replace the defaults whole.
type Service struct {
	Binary     string `yaml:"binary" validate:"required"`
	ConfigFile string `yaml:"config_file" validate:"required"`
	OSUser     string `yaml:"os_user"`
}

// VolumeService selects the volume service client. With no endpoint the
// static Hosts list is used.
type VolumeService struct {
	Endpoint string        `yaml:"endpoint" validate:"omitempty,url"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
	Retries  int           `yaml:"retries" validate:"gte=0"`
	Hosts    []string      `yaml:"hosts"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		DataDir:           "/var/lib/sdscompose",
		Log:               Log{Level: "info"},
		GroupingKey:       iniconf.DefaultGroupingKey,
		CopyFromRemoteCmd: remote.DefaultCopyFromRemote,
		CopyToRemoteCmd:   remote.DefaultCopyToRemote,
		Transport:         TransportCommand,
		SFTP:              SFTP{Port: 22},
		CopyTimeout:       2 * time.Minute,
		Retry:             Retry{InitialInterval: 500 * time.Millisecond},
		Services: map[types.ServiceKind]Service{
			types.ServiceVolume: {
				Binary:     "cinder-volume",
				ConfigFile: "/etc/cinder/cinder.conf",
				OSUser:     "cinder",
			},
		},
		VolumeService: VolumeService{Timeout: 30 * time.Second, Retries: 3},
		MetricsAddr:   "127.0.0.1:9090",
	}
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%v: %w", err, errdefs.ErrInvalidArgument)
	}
	for kind := range c.Services {
		if !knownKind(kind) {
			return fmt.Errorf("unknown service kind %q: %w", kind, errdefs.ErrInvalidArgument)
		}
	}
	if c.Transport == TransportSFTP && c.SFTP.PrivateKey == "" {
		return fmt.Errorf("sftp transport requires sftp.private_key: %w", errdefs.ErrInvalidArgument)
	}
	return nil
}

func knownKind(kind types.ServiceKind) bool {
	for _, k := range types.KnownServiceKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// SyncerOptions converts the file-sync settings
func (c *Config) SyncerOptions() remote.Options {
	return remote.Options{
		ScratchDir:    c.ScratchDir,
		GroupingKey:   c.GroupingKey,
		Strict:        c.StrictSectionMatch,
		Verify:        c.VerifyOutput,
		Parallel:      c.ParallelHosts,
		MaxRetries:    c.Retry.MaxRetries,
		RetryInterval: c.Retry.InitialInterval,
	}
}

// NewTransport builds the configured file transport
func (c *Config) NewTransport() (remote.Transport, error) {
	switch c.Transport {
	case TransportSFTP:
		t, err := remote.NewSFTPTransport(remote.SFTPConfig{
			Port:                  c.SFTP.Port,
			PrivateKey:            c.SFTP.PrivateKey,
			KnownHosts:            c.SFTP.KnownHosts,
			InsecureIgnoreHostKey: c.SFTP.InsecureIgnoreHostKey,
			Timeout:               c.CopyTimeout,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return remote.NewCommandTransport(c.CopyFromRemoteCmd, c.CopyToRemoteCmd, c.CopyTimeout), nil
	}
}
