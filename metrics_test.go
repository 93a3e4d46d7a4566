//go:build linux && amd64

package gopervisor

import "testing"

func TestMetricsSession(t *testing.T) {
	ResetMetrics()

	f := newFakeHost()
	vm, err := newFakeSystem(t, f).CreateVM()
	if err != nil {
		t.Fatalf("CreateVM failed: %v", err)
	}
	vcpu, err := vm.NewVCPU(0)
	if err != nil {
		t.Fatalf("NewVCPU failed: %v", err)
	}

	r := newTestRegion(t, pageSize(), 0)
	if err := vm.Register(r); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Load([]byte{0xf4}, 0); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	f.steps = []func(*runPage){
		stepIO(IOOut, 0x3f8, 1, []byte{'x'}),
		stepHalt(),
	}
	if _, err := vcpu.RunLoop(map[uint16]PortHandler{
		0x3f8: func(dir IODir, data []byte) error { return nil },
	}); err != nil {
		t.Fatalf("RunLoop failed: %v", err)
	}

	vcpu.Close()
	vm.Close()

	m := GetMetrics()
	checks := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"vm created", m.VMCreated, 1},
		{"vm destroyed", m.VMDestroyed, 1},
		{"vcpu created", m.VCPUCreated, 1},
		{"vcpu destroyed", m.VCPUDestroyed, 1},
		{"regions registered", m.RegionsRegistered, 1},
		{"program loads", m.ProgramLoads, 1},
		{"runs", m.Runs, 2},
		{"io exits", m.IOExits, 1},
		{"halt exits", m.HaltExits, 1},
		{"fatal exits", m.FatalExits, 0},
		{"setup errors", m.SetupErrors, 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestMetricsFatalExit(t *testing.T) {
	ResetMetrics()

	f := newFakeHost()
	vcpu := newFakeVCPU(t, f)
	f.steps = []func(*runPage){stepFatal(ExitReasonShutdown, 0)}

	vcpu.RunLoop(nil)

	if m := GetMetrics(); m.FatalExits != 1 {
		t.Errorf("fatal exits = %d, want 1", m.FatalExits)
	}
}

func TestResetMetrics(t *testing.T) {
	recordHaltExit()
	recordFatalExit()
	ResetMetrics()

	m := GetMetrics()
	if m.HaltExits != 0 || m.FatalExits != 0 {
		t.Errorf("metrics after reset: %+v", m)
	}
}
