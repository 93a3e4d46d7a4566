package gopervisor

import (
	"sync/atomic"
	"time"
)

// Operation counters for monitoring the monitor.
var (
	vmCreateCount       uint64
	vmDestroyCount      uint64
	vcpuCreateCount     uint64
	vcpuDestroyCount    uint64
	regionRegisterCount uint64
	programLoadCount    uint64
	registerOpCount     uint64
	runCount            uint64
	ioExitCount         uint64
	haltExitCount       uint64
	fatalExitCount      uint64
	setupErrorCount     uint64

	// Timing metrics (nanoseconds)
	totalVMCreateTime uint64
	totalRunTime      uint64
)

// Metrics is a point-in-time snapshot of the operation counters.
type Metrics struct {
	VMCreated         uint64 `json:"vm_created"`
	VMDestroyed       uint64 `json:"vm_destroyed"`
	VCPUCreated       uint64 `json:"vcpu_created"`
	VCPUDestroyed     uint64 `json:"vcpu_destroyed"`
	RegionsRegistered uint64 `json:"regions_registered"`
	ProgramLoads      uint64 `json:"program_loads"`
	RegisterOps       uint64 `json:"register_operations"`
	Runs              uint64 `json:"runs"`
	IOExits           uint64 `json:"io_exits"`
	HaltExits         uint64 `json:"halt_exits"`
	FatalExits        uint64 `json:"fatal_exits"`
	SetupErrors       uint64 `json:"setup_errors"`
	AvgVMCreateTimeNs uint64 `json:"avg_vm_create_time_ns"`
	AvgRunTimeNs      uint64 `json:"avg_run_time_ns"`
}

// GetMetrics returns current performance metrics.
func GetMetrics() Metrics {
	vmCreated := atomic.LoadUint64(&vmCreateCount)
	runs := atomic.LoadUint64(&runCount)

	var avgVMCreate, avgRun uint64
	if vmCreated > 0 {
		avgVMCreate = atomic.LoadUint64(&totalVMCreateTime) / vmCreated
	}
	if runs > 0 {
		avgRun = atomic.LoadUint64(&totalRunTime) / runs
	}

	return Metrics{
		VMCreated:         vmCreated,
		VMDestroyed:       atomic.LoadUint64(&vmDestroyCount),
		VCPUCreated:       atomic.LoadUint64(&vcpuCreateCount),
		VCPUDestroyed:     atomic.LoadUint64(&vcpuDestroyCount),
		RegionsRegistered: atomic.LoadUint64(&regionRegisterCount),
		ProgramLoads:      atomic.LoadUint64(&programLoadCount),
		RegisterOps:       atomic.LoadUint64(&registerOpCount),
		Runs:              runs,
		IOExits:           atomic.LoadUint64(&ioExitCount),
		HaltExits:         atomic.LoadUint64(&haltExitCount),
		FatalExits:        atomic.LoadUint64(&fatalExitCount),
		SetupErrors:       atomic.LoadUint64(&setupErrorCount),
		AvgVMCreateTimeNs: avgVMCreate,
		AvgRunTimeNs:      avgRun,
	}
}

// ResetMetrics clears all performance metrics.
func ResetMetrics() {
	atomic.StoreUint64(&vmCreateCount, 0)
	atomic.StoreUint64(&vmDestroyCount, 0)
	atomic.StoreUint64(&vcpuCreateCount, 0)
	atomic.StoreUint64(&vcpuDestroyCount, 0)
	atomic.StoreUint64(&regionRegisterCount, 0)
	atomic.StoreUint64(&programLoadCount, 0)
	atomic.StoreUint64(&registerOpCount, 0)
	atomic.StoreUint64(&runCount, 0)
	atomic.StoreUint64(&ioExitCount, 0)
	atomic.StoreUint64(&haltExitCount, 0)
	atomic.StoreUint64(&fatalExitCount, 0)
	atomic.StoreUint64(&setupErrorCount, 0)
	atomic.StoreUint64(&totalVMCreateTime, 0)
	atomic.StoreUint64(&totalRunTime, 0)
}

func recordVMCreate(duration time.Duration) {
	atomic.AddUint64(&vmCreateCount, 1)
	atomic.AddUint64(&totalVMCreateTime, uint64(duration.Nanoseconds()))
}

func recordVMDestroy() {
	atomic.AddUint64(&vmDestroyCount, 1)
}

func recordVCPUCreate() {
	atomic.AddUint64(&vcpuCreateCount, 1)
}

func recordVCPUDestroy() {
	atomic.AddUint64(&vcpuDestroyCount, 1)
}

func recordRegionRegister() {
	atomic.AddUint64(&regionRegisterCount, 1)
}

func recordProgramLoad() {
	atomic.AddUint64(&programLoadCount, 1)
}

func recordRegisterOp() {
	atomic.AddUint64(&registerOpCount, 1)
}

func recordRun(duration time.Duration) {
	atomic.AddUint64(&runCount, 1)
	atomic.AddUint64(&totalRunTime, uint64(duration.Nanoseconds()))
}

func recordIOExit() {
	atomic.AddUint64(&ioExitCount, 1)
}

func recordHaltExit() {
	atomic.AddUint64(&haltExitCount, 1)
}

func recordFatalExit() {
	atomic.AddUint64(&fatalExitCount, 1)
}

func recordSetupError() {
	atomic.AddUint64(&setupErrorCount, 1)
}
