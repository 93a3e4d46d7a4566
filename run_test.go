//go:build linux && amd64

package gopervisor

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRunLoopHalt(t *testing.T) {
	f := newFakeHost()
	vcpu := newFakeVCPU(t, f)
	f.steps = []func(*runPage){stepHalt()}

	exit, err := vcpu.RunLoop(nil)
	if err != nil {
		t.Fatalf("RunLoop failed: %v", err)
	}
	if _, ok := exit.(ExitHalt); !ok {
		t.Fatalf("exit = %T, want ExitHalt", exit)
	}
	if f.runCalls() != 1 {
		t.Errorf("resumes = %d, want 1", f.runCalls())
	}
}

func TestRunLoopServicesPortWrites(t *testing.T) {
	f := newFakeHost()
	vcpu := newFakeVCPU(t, f)
	f.steps = []func(*runPage){
		stepIO(IOOut, 0x3f8, 1, []byte{'h'}),
		stepIO(IOOut, 0x3f8, 1, []byte{'i'}),
		stepHalt(),
	}

	var out bytes.Buffer
	exit, err := vcpu.RunLoop(map[uint16]PortHandler{
		0x3f8: func(dir IODir, data []byte) error {
			out.Write(data)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("RunLoop failed: %v", err)
	}
	if _, ok := exit.(ExitHalt); !ok {
		t.Fatalf("exit = %T, want ExitHalt", exit)
	}
	if out.String() != "hi" {
		t.Errorf("handler saw %q, want %q in trap order", out.String(), "hi")
	}
	if f.runCalls() != 3 {
		t.Errorf("resumes = %d, want 3", f.runCalls())
	}
}

// A repeated string write arrives as one exit carrying Count chunks; the
// handler sees each width-sized chunk separately, in order.
func TestRunLoopChunksRepeatedIO(t *testing.T) {
	f := newFakeHost()
	vcpu := newFakeVCPU(t, f)
	f.steps = []func(*runPage){
		stepIO(IOOut, 0x10, 2, []byte{1, 0, 2, 0, 3, 0}),
		stepHalt(),
	}

	var chunks [][]byte
	_, err := vcpu.RunLoop(map[uint16]PortHandler{
		0x10: func(dir IODir, data []byte) error {
			chunks = append(chunks, append([]byte(nil), data...))
			return nil
		},
	})
	if err != nil {
		t.Fatalf("RunLoop failed: %v", err)
	}

	want := [][]byte{{1, 0}, {2, 0}, {3, 0}}
	if len(chunks) != len(want) {
		t.Fatalf("handler called %d times, want %d", len(chunks), len(want))
	}
	for i := range want {
		if !bytes.Equal(chunks[i], want[i]) {
			t.Errorf("chunk %d = %v, want %v", i, chunks[i], want[i])
		}
	}
}

func TestRunLoopUnhandledPortIsFatal(t *testing.T) {
	f := newFakeHost()
	vcpu := newFakeVCPU(t, f)
	f.steps = []func(*runPage){
		stepIO(IOOut, 0x80, 1, []byte{0xff}),
		stepHalt(), // must never be reached
	}

	exit, err := vcpu.RunLoop(map[uint16]PortHandler{
		0x3f8: func(dir IODir, data []byte) error { return nil },
	})
	if !errors.Is(err, ErrFatalExit) {
		t.Fatalf("err = %v, want ErrFatalExit", err)
	}
	io, ok := exit.(ExitIO)
	if !ok {
		t.Fatalf("exit = %T, want ExitIO", exit)
	}
	if io.Port != 0x80 {
		t.Errorf("port = %#x, want 0x80", io.Port)
	}
	if !strings.Contains(err.Error(), "0x80") {
		t.Errorf("error %q does not name the port", err)
	}
	if f.runCalls() != 1 {
		t.Errorf("resumes after fatal = %d, want 1 (no retry)", f.runCalls())
	}
}

// Port reads are not serviced even on a recognized port; the monitor has
// no value to supply.
func TestRunLoopPortReadIsFatal(t *testing.T) {
	f := newFakeHost()
	vcpu := newFakeVCPU(t, f)
	f.steps = []func(*runPage){
		stepIO(IOIn, 0x3f8, 1, []byte{0}),
	}

	called := false
	_, err := vcpu.RunLoop(map[uint16]PortHandler{
		0x3f8: func(dir IODir, data []byte) error {
			called = true
			return nil
		},
	})
	if !errors.Is(err, ErrFatalExit) {
		t.Fatalf("err = %v, want ErrFatalExit", err)
	}
	if called {
		t.Error("handler invoked for a port read")
	}
}

func TestRunLoopHandlerErrorStops(t *testing.T) {
	f := newFakeHost()
	vcpu := newFakeVCPU(t, f)
	f.steps = []func(*runPage){
		stepIO(IOOut, 0x3f8, 1, []byte{'x'}),
		stepHalt(),
	}

	boom := errors.New("device jammed")
	_, err := vcpu.RunLoop(map[uint16]PortHandler{
		0x3f8: func(dir IODir, data []byte) error { return boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the handler's error", err)
	}
	if f.runCalls() != 1 {
		t.Errorf("resumes = %d, want 1", f.runCalls())
	}
}

func TestRunLoopUnknownReasonIsFatal(t *testing.T) {
	f := newFakeHost()
	vcpu := newFakeVCPU(t, f)
	f.steps = []func(*runPage){
		stepFatal(ExitReasonShutdown, 0),
	}

	exit, err := vcpu.RunLoop(nil)
	if !errors.Is(err, ErrFatalExit) {
		t.Fatalf("err = %v, want ErrFatalExit", err)
	}
	fatal, ok := exit.(ExitFatal)
	if !ok {
		t.Fatalf("exit = %T, want ExitFatal", exit)
	}
	if fatal.Reason != ExitReasonShutdown {
		t.Errorf("reason = %v, want shutdown", fatal.Reason)
	}
}

func TestRunDecodesFailEntry(t *testing.T) {
	f := newFakeHost()
	vcpu := newFakeVCPU(t, f)
	f.steps = []func(*runPage){
		stepFatal(ExitReasonFailEntry, 0x80000021),
	}

	exit, err := vcpu.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	fatal, ok := exit.(ExitFatal)
	if !ok {
		t.Fatalf("exit = %T, want ExitFatal", exit)
	}
	if fatal.Hardware != 0x80000021 {
		t.Errorf("hardware detail = %#x, want 0x80000021", fatal.Hardware)
	}
}

// The Exit must remain valid after the run page is overwritten by the
// next resume: the I/O data is copied out, not aliased.
func TestExitIODataSurvivesResume(t *testing.T) {
	f := newFakeHost()
	vcpu := newFakeVCPU(t, f)
	f.steps = []func(*runPage){
		stepIO(IOOut, 0x3f8, 1, []byte{'a'}),
		stepIO(IOOut, 0x3f8, 1, []byte{'b'}),
	}

	first, err := vcpu.Run()
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if _, err := vcpu.Run(); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	io := first.(ExitIO)
	if !bytes.Equal(io.Data, []byte{'a'}) {
		t.Errorf("first exit data = %q, want %q", io.Data, "a")
	}
}
