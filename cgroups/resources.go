package cgroups

import (
	"strconv"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// ApplyResources writes the subset of an OCI LinuxResources struct this
// module's fixed subsystem set can enforce directly to leaf's knob
// files. It reuses runtime-spec's shape purely as a naming convention
// for the limit fields a launcher hands over after clone — this module
// does not consume or produce full OCI runtime bundles. Grounded on
// docker/docker/pkg/cgroups's apply_raw.go setupMemory/setupCpu/
// setupCpuset, one knob write per non-nil field.
func ApplyResources(leaf *Node, r *specs.LinuxResources) error {
	if r == nil {
		return nil
	}
	if r.Memory != nil {
		if r.Memory.Limit != nil {
			if err := leaf.SetKnobValue("memory.limit_in_bytes", strconv.FormatInt(*r.Memory.Limit, 10), false); err != nil {
				return err
			}
		}
		if r.Memory.Reservation != nil {
			if err := leaf.SetKnobValue("memory.soft_limit_in_bytes", strconv.FormatInt(*r.Memory.Reservation, 10), false); err != nil {
				return err
			}
		}
		if r.Memory.Swap != nil {
			if err := leaf.SetKnobValue("memory.memsw.limit_in_bytes", strconv.FormatInt(*r.Memory.Swap, 10), false); err != nil {
				return err
			}
		}
	}
	if r.CPU != nil {
		if r.CPU.Shares != nil {
			if err := leaf.SetKnobValue("cpu.shares", strconv.FormatUint(*r.CPU.Shares, 10), false); err != nil {
				return err
			}
		}
		if r.CPU.Quota != nil {
			if err := leaf.SetKnobValue("cpu.cfs_quota_us", strconv.FormatInt(*r.CPU.Quota, 10), false); err != nil {
				return err
			}
		}
		if r.CPU.Period != nil {
			if err := leaf.SetKnobValue("cpu.cfs_period_us", strconv.FormatUint(*r.CPU.Period, 10), false); err != nil {
				return err
			}
		}
		if r.CPU.Cpus != "" {
			if err := leaf.SetKnobValue("cpuset.cpus", r.CPU.Cpus, false); err != nil {
				return err
			}
		}
	}
	if r.BlockIO != nil && r.BlockIO.Weight != nil {
		if err := leaf.SetKnobValue("blkio.weight", strconv.FormatUint(uint64(*r.BlockIO.Weight), 10), false); err != nil {
			return err
		}
	}
	return nil
}
