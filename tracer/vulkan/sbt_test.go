package vulkan

import (
	"errors"
	"testing"
)

// A rebuild that fails must not leave the previous build's regions
// reachable: the old table buffer has already been released by then.
func TestFailedRebuildInvalidatesRegions(t *testing.T) {
	table := &ShaderBindingTable{built: true}

	// No raygen group, so the build fails before touching the device.
	if err := table.Build(&Pipeline{}); err == nil {
		t.Fatalf("expected build to fail for a pipeline without shader groups")
	}

	if _, err := table.GetRegions(); !errors.Is(err, ErrTableNotBuilt) {
		t.Fatalf("expected ErrTableNotBuilt after a failed rebuild; got %v", err)
	}
}

func TestGetRegionsBeforeBuild(t *testing.T) {
	table := &ShaderBindingTable{}

	if _, err := table.GetRegions(); !errors.Is(err, ErrTableNotBuilt) {
		t.Fatalf("expected ErrTableNotBuilt before any build; got %v", err)
	}
}
