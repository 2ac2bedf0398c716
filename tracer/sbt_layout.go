package tracer

import "fmt"

// Device limits needed to compute the shader binding table layout.
type DeviceLimits struct {
	// Size in bytes of a shader group handle.
	HandleSize uint32

	// Required alignment for handles within a region.
	HandleAlignment uint32

	// Required alignment for the start of each region.
	BaseAlignment uint32
}

// One addressable region of the shader binding table. Offset is relative to
// the start of the table buffer.
type Region struct {
	Offset  uint64
	Stride  uint64
	Size    uint64
	Entries uint32
}

// The byte layout of a shader binding table: four contiguous regions in a
// single buffer, in raygen, miss, hit, callable order.
type Layout struct {
	Raygen   Region
	Miss     Region
	Hit      Region
	Callable Region

	TotalSize  uint64
	HandleSize uint32
}

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// Compute the shader binding table layout for the given group counts and
// device limits. Each region entry holds one aligned group handle; regions
// start at base-aligned offsets. The raygen region always holds exactly one
// entry and its size equals its stride.
func NewLayout(counts GroupCounts, limits DeviceLimits) (Layout, error) {
	if counts.Raygen != 1 {
		return Layout{}, fmt.Errorf("sbt layout: expected exactly 1 raygen group; got %d", counts.Raygen)
	}
	if limits.HandleSize == 0 || limits.HandleAlignment == 0 || limits.BaseAlignment == 0 {
		return Layout{}, fmt.Errorf("sbt layout: device limits not populated")
	}

	handleStride := alignUp(uint64(limits.HandleSize), uint64(limits.HandleAlignment))

	var l Layout
	l.HandleSize = limits.HandleSize

	// The raygen entry doubles as its own region; its stride must satisfy
	// the region base alignment.
	l.Raygen.Stride = alignUp(handleStride, uint64(limits.BaseAlignment))
	l.Raygen.Size = l.Raygen.Stride
	l.Raygen.Entries = 1

	l.Miss.Stride = handleStride
	l.Miss.Size = alignUp(uint64(counts.Miss)*handleStride, uint64(limits.BaseAlignment))
	l.Miss.Entries = counts.Miss

	l.Hit.Stride = handleStride
	l.Hit.Size = alignUp(uint64(counts.Hit)*handleStride, uint64(limits.BaseAlignment))
	l.Hit.Entries = counts.Hit

	l.Callable.Stride = handleStride
	l.Callable.Size = alignUp(uint64(counts.Callable)*handleStride, uint64(limits.BaseAlignment))
	l.Callable.Entries = counts.Callable

	l.Raygen.Offset = 0
	l.Miss.Offset = l.Raygen.Size
	l.Hit.Offset = l.Miss.Offset + l.Miss.Size
	l.Callable.Offset = l.Hit.Offset + l.Hit.Size
	l.TotalSize = l.Callable.Offset + l.Callable.Size

	return l, nil
}

// Byte offset within the table buffer where the handle of the given flat
// group index must be written. Flat indices follow the group declaration
// order: 0 = raygen, then miss, hit and callable blocks.
func (l Layout) HandleOffset(groupIndex uint32) (uint64, error) {
	switch {
	case groupIndex < 1:
		return l.Raygen.Offset, nil
	case groupIndex < 1+l.Miss.Entries:
		return l.Miss.Offset + uint64(groupIndex-1)*l.Miss.Stride, nil
	case groupIndex < 1+l.Miss.Entries+l.Hit.Entries:
		return l.Hit.Offset + uint64(groupIndex-1-l.Miss.Entries)*l.Hit.Stride, nil
	case groupIndex < 1+l.Miss.Entries+l.Hit.Entries+l.Callable.Entries:
		return l.Callable.Offset + uint64(groupIndex-1-l.Miss.Entries-l.Hit.Entries)*l.Callable.Stride, nil
	}
	return 0, fmt.Errorf("sbt layout: group index %d out of range", groupIndex)
}
