package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tjper/workerfabric/internal/device"
)

// controller enables and applies one cgroup control.
type controller interface {
	enable() error
	apply() error
}

// newCPUController creates a cpuController instance.
func newCPUController(cgroup Cgroup, cpus float32) *cpuController {
	return &cpuController{
		baseController: baseController{name: cpu, cgroup: cgroup},
		cpus:           cpus,
	}
}

// cpuController enables and applies the "cpu.max" control.
type cpuController struct {
	baseController
	cpus float32
}

func (c cpuController) apply() error {
	const period = 100000
	limit := c.cpus * period
	value := fmt.Sprintf("%d %d", int(limit), period)
	return c.baseController.apply(cpuMax, value)
}

// newMemoryController creates a memoryController instance.
func newMemoryController(cgroup Cgroup, limit uint64) *memoryController {
	return &memoryController{
		baseController: baseController{name: memory, cgroup: cgroup},
		limit:          limit,
	}
}

// memoryController enables and applies the "memory.high" control.
type memoryController struct {
	baseController
	limit uint64
}

func (c memoryController) apply() error {
	value := strconv.FormatUint(c.limit, 10)
	return c.baseController.apply(memoryHigh, value)
}

// newDiskReadBpsController creates a diskReadBpsController instance.
func newDiskReadBpsController(cgroup Cgroup, limit uint64) *diskReadBpsController {
	return &diskReadBpsController{
		baseController: baseController{name: io, cgroup: cgroup},
		limit:          limit,
	}
}

// diskReadBpsController enables and applies the rbps "io.max" control.
type diskReadBpsController struct {
	baseController
	limit uint64
}

func (c diskReadBpsController) apply() error {
	minors, err := device.ReadDeviceMinors(diskDevices, diskPhysicalMinors)
	if err != nil {
		return fmt.Errorf("read disk device minors: %w", err)
	}

	for _, minor := range minors {
		value := fmt.Sprintf("%d:%d rbps=%d", diskDevices, minor, c.limit)
		if err := c.baseController.apply(ioMax, value); err != nil {
			return err
		}
	}
	return nil
}

// newDiskWriteBpsController creates a diskWriteBpsController instance.
func newDiskWriteBpsController(cgroup Cgroup, limit uint64) *diskWriteBpsController {
	return &diskWriteBpsController{
		baseController: baseController{name: io, cgroup: cgroup},
		limit:          limit,
	}
}

// diskWriteBpsController enables and applies the wbps "io.max" control.
type diskWriteBpsController struct {
	baseController
	limit uint64
}

func (c diskWriteBpsController) apply() error {
	minors, err := device.ReadDeviceMinors(diskDevices, diskPhysicalMinors)
	if err != nil {
		return fmt.Errorf("read disk device minors: %w", err)
	}

	for _, minor := range minors {
		value := fmt.Sprintf("%d:%d wbps=%d", diskDevices, minor, c.limit)
		if err := c.baseController.apply(ioMax, value); err != nil {
			return err
		}
	}
	return nil
}

// baseController owns behavior shared by every controller implementation.
type baseController struct {
	name   string
	cgroup Cgroup
}

// enable enables a controller by writing to the cgroup's
// cgroup.subtree_control file.
func (c baseController) enable() error {
	file := filepath.Join(c.cgroup.path, cgroupSubtreeControl)
	fd, err := os.OpenFile(file, os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("open subtree_control: %w", err)
	}
	defer fd.Close()

	_, err = fd.WriteString(fmt.Sprintf("+%s\n", c.name))
	if err != nil {
		return fmt.Errorf("enable %s controller: %w", c.name, err)
	}
	return nil
}

// apply sets the value for control in the controller's cgroup.
func (c baseController) apply(control, value string) error {
	file := filepath.Join(c.cgroup.path, control)
	fd, err := os.OpenFile(file, os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("open %s: %w", control, err)
	}
	defer fd.Close()

	if _, err := fd.WriteString(value); err != nil {
		return fmt.Errorf("write %s: %w", control, err)
	}
	return nil
}

const (
	// diskDevices is the major number for disk (block 8) devices.
	diskDevices = 8
	// diskPhysicalMinors is the spacing between physical disk device
	// minor numbers; partition minors fall between them.
	diskPhysicalMinors = 16

	cgroupSubtreeControl = "cgroup.subtree_control"
	cpu                  = "cpu"
	memory               = "memory"
	io                   = "io"
	memoryHigh           = "memory.high"
	cpuMax               = "cpu.max"
	ioMax                = "io.max"
)
