package tracer

import "testing"

// Limits matching common desktop hardware: 32 byte handles aligned to 32,
// regions aligned to 64.
var testLimits = DeviceLimits{
	HandleSize:      32,
	HandleAlignment: 32,
	BaseAlignment:   64,
}

func TestLayoutRegions(t *testing.T) {
	counts := GroupCounts{Raygen: 1, Miss: 2, Hit: 2, Callable: 3}

	l, err := NewLayout(counts, testLimits)
	if err != nil {
		t.Fatal(err)
	}

	if l.Raygen.Entries != 1 {
		t.Fatalf("expected raygen region to hold exactly 1 entry; got %d", l.Raygen.Entries)
	}
	if l.Raygen.Size != l.Raygen.Stride {
		t.Fatalf("expected raygen size to equal its stride; got size %d stride %d", l.Raygen.Size, l.Raygen.Stride)
	}

	total := l.Raygen.Entries + l.Miss.Entries + l.Hit.Entries + l.Callable.Entries
	if total != counts.Total() {
		t.Fatalf("expected region entries to sum to %d; got %d", counts.Total(), total)
	}

	// Regions must be contiguous and base aligned.
	if l.Raygen.Offset != 0 {
		t.Fatalf("expected raygen region at offset 0; got %d", l.Raygen.Offset)
	}
	for _, r := range []Region{l.Miss, l.Hit, l.Callable} {
		if r.Offset%uint64(testLimits.BaseAlignment) != 0 {
			t.Fatalf("region offset %d not aligned to %d", r.Offset, testLimits.BaseAlignment)
		}
	}
	if l.Miss.Offset != l.Raygen.Size {
		t.Fatalf("expected miss region right after raygen; got offset %d", l.Miss.Offset)
	}
	if l.Hit.Offset != l.Miss.Offset+l.Miss.Size {
		t.Fatalf("expected hit region right after miss; got offset %d", l.Hit.Offset)
	}
	if l.TotalSize != l.Callable.Offset+l.Callable.Size {
		t.Fatalf("expected total size %d; got %d", l.Callable.Offset+l.Callable.Size, l.TotalSize)
	}
}

func TestLayoutHandlePadding(t *testing.T) {
	// 20 byte handles must be padded to the 32 byte handle alignment.
	limits := DeviceLimits{HandleSize: 20, HandleAlignment: 32, BaseAlignment: 64}

	l, err := NewLayout(GroupCounts{Raygen: 1, Miss: 3}, limits)
	if err != nil {
		t.Fatal(err)
	}

	if l.Miss.Stride != 32 {
		t.Fatalf("expected miss stride 32; got %d", l.Miss.Stride)
	}
	// 3 handles * 32 = 96, padded to the 64 byte base alignment.
	if l.Miss.Size != 128 {
		t.Fatalf("expected miss region size 128; got %d", l.Miss.Size)
	}
}

func TestLayoutHandleOffsets(t *testing.T) {
	counts := GroupCounts{Raygen: 1, Miss: 2, Hit: 2, Callable: 3}

	l, err := NewLayout(counts, testLimits)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		group uint32
		want  uint64
	}{
		{0, l.Raygen.Offset},
		{1, l.Miss.Offset},
		{2, l.Miss.Offset + l.Miss.Stride},
		{3, l.Hit.Offset},
		{4, l.Hit.Offset + l.Hit.Stride},
		{5, l.Callable.Offset},
		{7, l.Callable.Offset + 2*l.Callable.Stride},
	}

	for _, tc := range cases {
		got, err := l.HandleOffset(tc.group)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Fatalf("expected handle offset %d for group %d; got %d", tc.want, tc.group, got)
		}
	}

	if _, err := l.HandleOffset(8); err == nil {
		t.Fatal("expected out-of-range group index to be rejected")
	}
}

func TestLayoutRejectsBadInput(t *testing.T) {
	if _, err := NewLayout(GroupCounts{Raygen: 0, Miss: 1}, testLimits); err == nil {
		t.Fatal("expected layout without raygen group to be rejected")
	}
	if _, err := NewLayout(GroupCounts{Raygen: 2}, testLimits); err == nil {
		t.Fatal("expected layout with 2 raygen groups to be rejected")
	}
	if _, err := NewLayout(GroupCounts{Raygen: 1}, DeviceLimits{}); err == nil {
		t.Fatal("expected empty device limits to be rejected")
	}
}
