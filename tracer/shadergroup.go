package tracer

import "fmt"

// Marker for shader group slots that reference no pipeline stage.
const ShaderUnused = ^uint32(0)

// The kind of a shader group. The kind decides which stage slots must be
// populated.
type GroupKind uint8

const (
	// A group wrapping a single raygen, miss or callable stage.
	GroupGeneral GroupKind = iota

	// A hit group for built-in triangle intersection.
	GroupTrianglesHit

	// A hit group for procedural geometry; requires an intersection stage.
	GroupProceduralHit
)

// The ray event a group is bound to. The role decides which shader binding
// table region a group lands in.
type GroupRole uint8

const (
	RoleRaygen GroupRole = iota
	RoleMiss
	RoleHit
	RoleCallable
)

// ShaderGroup bundles the pipeline stage indices invoked together for one
// ray event. Groups are declared as a flat ordered sequence; the position
// of a group within its role block is the index instances and trace calls
// use to address it.
type ShaderGroup struct {
	Kind GroupKind
	Role GroupRole

	// Stage index for general groups.
	General uint32

	// Stage indices for hit groups.
	ClosestHit   uint32
	AnyHit       uint32
	Intersection uint32
}

// Create a raygen group referencing a single stage.
func RaygenGroup(stage uint32) ShaderGroup {
	return ShaderGroup{
		Kind: GroupGeneral, Role: RoleRaygen,
		General: stage, ClosestHit: ShaderUnused, AnyHit: ShaderUnused, Intersection: ShaderUnused,
	}
}

// Create a miss group referencing a single stage.
func MissGroup(stage uint32) ShaderGroup {
	return ShaderGroup{
		Kind: GroupGeneral, Role: RoleMiss,
		General: stage, ClosestHit: ShaderUnused, AnyHit: ShaderUnused, Intersection: ShaderUnused,
	}
}

// Create a callable group referencing a single stage.
func CallableGroup(stage uint32) ShaderGroup {
	return ShaderGroup{
		Kind: GroupGeneral, Role: RoleCallable,
		General: stage, ClosestHit: ShaderUnused, AnyHit: ShaderUnused, Intersection: ShaderUnused,
	}
}

// Create a triangle hit group. The any-hit stage is optional and may be set
// to ShaderUnused.
func TriangleHitGroup(closestHit, anyHit uint32) ShaderGroup {
	return ShaderGroup{
		Kind: GroupTrianglesHit, Role: RoleHit,
		General: ShaderUnused, ClosestHit: closestHit, AnyHit: anyHit, Intersection: ShaderUnused,
	}
}

// Create a procedural hit group. The intersection stage is required; the
// any-hit stage is optional.
func ProceduralHitGroup(closestHit, anyHit, intersection uint32) (ShaderGroup, error) {
	if intersection == ShaderUnused {
		return ShaderGroup{}, fmt.Errorf("shader group: procedural hit group requires an intersection stage")
	}
	return ShaderGroup{
		Kind: GroupProceduralHit, Role: RoleHit,
		General: ShaderUnused, ClosestHit: closestHit, AnyHit: anyHit, Intersection: intersection,
	}, nil
}

// Per-role group counts for an ordered group sequence.
type GroupCounts struct {
	Raygen   uint32
	Miss     uint32
	Hit      uint32
	Callable uint32
}

// Total number of groups.
func (c GroupCounts) Total() uint32 {
	return c.Raygen + c.Miss + c.Hit + c.Callable
}

// Validate the ordering convention for a flat group sequence and count the
// groups per role. The sequence must start with exactly one raygen group
// followed by the contiguous miss, hit and callable blocks; the shader
// binding table layout depends on this ordering.
func CountGroups(groups []ShaderGroup) (GroupCounts, error) {
	var counts GroupCounts

	if len(groups) == 0 || groups[0].Role != RoleRaygen {
		return counts, fmt.Errorf("shader group: group 0 must be the raygen group")
	}

	prevRole := RoleRaygen
	for idx, group := range groups {
		if group.Role < prevRole {
			return counts, fmt.Errorf("shader group: group %d (role %d) out of order; expected raygen, miss, hit, callable blocks", idx, group.Role)
		}
		prevRole = group.Role

		switch group.Role {
		case RoleRaygen:
			counts.Raygen++
		case RoleMiss:
			counts.Miss++
		case RoleHit:
			counts.Hit++
		case RoleCallable:
			counts.Callable++
		}
	}

	if counts.Raygen != 1 {
		return counts, fmt.Errorf("shader group: expected exactly 1 raygen group; got %d", counts.Raygen)
	}

	return counts, nil
}
