package tracer

import "testing"

// Assemble the group sequence used by the demo pipeline: raygen, primary
// miss, shadow miss, triangle hit, procedural hit, three callables.
func demoGroups(t *testing.T) []ShaderGroup {
	procHit, err := ProceduralHitGroup(5, 6, 7)
	if err != nil {
		t.Fatal(err)
	}

	return []ShaderGroup{
		RaygenGroup(0),
		MissGroup(1),
		MissGroup(2),
		TriangleHitGroup(3, 4),
		procHit,
		CallableGroup(8),
		CallableGroup(9),
		CallableGroup(10),
	}
}

func TestCountGroups(t *testing.T) {
	counts, err := CountGroups(demoGroups(t))
	if err != nil {
		t.Fatal(err)
	}

	if counts.Raygen != 1 || counts.Miss != 2 || counts.Hit != 2 || counts.Callable != 3 {
		t.Fatalf("unexpected group counts: %+v", counts)
	}
	if counts.Total() != 8 {
		t.Fatalf("expected 8 total groups; got %d", counts.Total())
	}
}

// Hit groups are renumbered from zero within the hit region; with the demo
// ordering the procedural hit group must land at hit index 1 so instances
// selecting hit group 1 resolve to the intersection shader.
func TestHitGroupRenumbering(t *testing.T) {
	groups := demoGroups(t)

	hitIndex := uint32(0)
	for flatIndex, group := range groups {
		if group.Role != RoleHit {
			continue
		}
		if group.Kind == GroupProceduralHit {
			if hitIndex != 1 {
				t.Fatalf("expected procedural hit group at hit index 1; got %d", hitIndex)
			}
			if flatIndex != 4 {
				t.Fatalf("expected procedural hit group at flat index 4; got %d", flatIndex)
			}
		}
		hitIndex++
	}
}

func TestCountGroupsOrdering(t *testing.T) {
	groups := []ShaderGroup{
		RaygenGroup(0),
		TriangleHitGroup(1, ShaderUnused),
		MissGroup(2),
	}

	if _, err := CountGroups(groups); err == nil {
		t.Fatal("expected out-of-order group sequence to be rejected")
	}
}

func TestCountGroupsRequiresRaygenFirst(t *testing.T) {
	if _, err := CountGroups(nil); err == nil {
		t.Fatal("expected empty group sequence to be rejected")
	}

	groups := []ShaderGroup{
		MissGroup(0),
		RaygenGroup(1),
	}
	if _, err := CountGroups(groups); err == nil {
		t.Fatal("expected sequence without leading raygen group to be rejected")
	}
}

func TestProceduralHitGroupRequiresIntersection(t *testing.T) {
	if _, err := ProceduralHitGroup(0, ShaderUnused, ShaderUnused); err == nil {
		t.Fatal("expected procedural hit group without intersection stage to be rejected")
	}
}
