package driver

import (
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/iniconf"
	"github.com/cuemby/sdscompose/pkg/types"
)

// LVMDriverName is the driver name stored on LVM backends
const LVMDriverName = "lvm"

// LVMDriver writes cinder LVM backend sections, one per volume group (tier)
type LVMDriver struct {
	volumeDriver   string
	targetHelper   string
	targetProtocol string
}

// NewLVMDriver builds the driver from options
// (volume_driver, target_helper, target_protocol)
func NewLVMDriver(options map[string]string) (Driver, error) {
	return &LVMDriver{
		volumeDriver:   option(options, "volume_driver", "cinder.volume.drivers.lvm.LVMVolumeDriver"),
		targetHelper:   option(options, "target_helper", "lioadm"),
		targetProtocol: option(options, "target_protocol", "iscsi"),
	}, nil
}

func (d *LVMDriver) Name() string {
	return LVMDriverName
}

func (d *LVMDriver) GetConfigSections(kind types.ServiceKind, pool, backendName string, backend *types.Backend) (iniconf.Sections, iniconf.Sections, error) {
	if kind != types.ServiceVolume {
		return nil, nil, fmt.Errorf("lvm driver does not support %s service: %w", kind, errdefs.ErrNotImplemented)
	}

	search := make(iniconf.Sections)
	config := make(iniconf.Sections)
	for _, tier := range backend.Tiers {
		section := SectionName(backendName, tier.Name)

		entries := iniconf.Entries{
			{Key: "volume_group", Values: []string{tier.Name}},
			{Key: "volume_backend_name", Values: []string{backendName}},
		}
		search[section] = entries.Clone()

		config[section] = append(entries,
			iniconf.Entry{Key: "volume_driver", Values: []string{d.volumeDriver}},
			iniconf.Entry{Key: "target_helper", Values: []string{d.targetHelper}},
			iniconf.Entry{Key: "target_protocol", Values: []string{d.targetProtocol}},
		)
	}
	return search, config, nil
}
