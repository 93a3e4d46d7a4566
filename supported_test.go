//go:build linux && amd64

package gopervisor

import "testing"

func TestSupported(t *testing.T) {
	ok, err := Supported()
	if err != nil && ok {
		t.Errorf("Supported() = (true, %v); an error must mean unsupported", err)
	}
	t.Logf("kvm available: %v (err=%v)", ok, err)
}
