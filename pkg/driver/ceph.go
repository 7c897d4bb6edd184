package driver

import (
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/iniconf"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/go-playground/validator/v10"
)

// CephDriverName is the driver name stored on Ceph backends
const CephDriverName = "ceph"

// cephOptions are the cinder RBD settings written for every tier
type cephOptions struct {
	VolumeDriver    string `validate:"required"`
	FlattenFromSnap string `validate:"oneof=True False true false"`
	MaxCloneDepth   string `validate:"numeric"`
	User            string
	SecretUUID      string `validate:"omitempty,uuid"`
	CephConf        string
}

// CephDriver writes cinder RBD backend sections, one per Ceph pool (tier)
type CephDriver struct {
	opts cephOptions
}

// NewCephDriver builds the driver from options
// (volume_driver, rbd_flatten_volume_from_snapshot, rbd_max_clone_depth,
// rbd_user, rbd_secret_uuid, rbd_ceph_conf)
func NewCephDriver(options map[string]string) (Driver, error) {
	opts := cephOptions{
		VolumeDriver:    option(options, "volume_driver", "cinder.volume.drivers.rbd.RBDDriver"),
		FlattenFromSnap: option(options, "rbd_flatten_volume_from_snapshot", "False"),
		MaxCloneDepth:   option(options, "rbd_max_clone_depth", "5"),
		User:            options["rbd_user"],
		SecretUUID:      options["rbd_secret_uuid"],
		CephConf:        options["rbd_ceph_conf"],
	}
	if err := validator.New().Struct(opts); err != nil {
		return nil, err
	}
	return &CephDriver{opts: opts}, nil
}

func (d *CephDriver) Name() string {
	return CephDriverName
}

func (d *CephDriver) GetConfigSections(kind types.ServiceKind, pool, backendName string, backend *types.Backend) (iniconf.Sections, iniconf.Sections, error) {
	if kind != types.ServiceVolume {
		return nil, nil, fmt.Errorf("ceph driver does not support %s service: %w", kind, errdefs.ErrNotImplemented)
	}

	user := d.opts.User
	if user == "" {
		user = backend.ConfigSpecs["user"]
	}
	if user == "" {
		return nil, nil, fmt.Errorf("rbd_user not set in ceph driver options or backend %s config: %w", backend.Name, errdefs.ErrFailedPrecondition)
	}
	if d.opts.SecretUUID == "" {
		return nil, nil, fmt.Errorf("rbd_secret_uuid not set in ceph driver options: %w", errdefs.ErrFailedPrecondition)
	}

	search := make(iniconf.Sections)
	config := make(iniconf.Sections)
	for _, tier := range backend.Tiers {
		section := SectionName(backendName, tier.Name)

		var entries iniconf.Entries
		entries = entries.Set("rbd_pool", tier.Name)
		entries = entries.Set("volume_backend_name", backendName)
		search[section] = entries.Clone()

		entries = entries.Set("volume_driver", d.opts.VolumeDriver)
		entries = entries.Set("rbd_flatten_volume_from_snapshot", d.opts.FlattenFromSnap)
		entries = entries.Set("rbd_max_clone_depth", d.opts.MaxCloneDepth)
		entries = entries.Set("rbd_user", user)
		entries = entries.Set("rbd_secret_uuid", d.opts.SecretUUID)
		if d.opts.CephConf != "" {
			entries = entries.Set("rbd_ceph_conf", d.opts.CephConf)
		}
		config[section] = entries
	}
	return search, config, nil
}
