package collections

import "testing"

func TestVersionedBitset_Basic(t *testing.T) {
	v := NewVersionedBitset(100)

	v.Set(10)
	v.Set(50)

	if !v.Test(10) || !v.Test(50) {
		t.Error("Expected bits to be set")
	}
	if v.Test(11) {
		t.Error("Expected bit 11 to be clear")
	}

	// Reset should clear logically, without reallocating.
	v.Reset()

	if v.Test(10) || v.Test(50) {
		t.Error("Expected bits to be clear after Reset")
	}

	// Can set again after Reset.
	v.Set(10)
	if !v.Test(10) {
		t.Error("Expected bit 10 to be set after Reset")
	}
}

func TestVersionedBitset_Grow(t *testing.T) {
	v := NewVersionedBitset(64)

	v.Set(200)
	if !v.Test(200) {
		t.Error("Expected bit 200 to be set after grow")
	}
	if v.Size() < 201 {
		t.Errorf("Expected size >= 201, got %d", v.Size())
	}
}

func TestVersionedBitset_ResetThenGrow(t *testing.T) {
	v := NewVersionedBitset(8)
	v.Set(3)
	v.Reset()
	v.Set(500)

	if v.Test(3) {
		t.Error("bit set before Reset should stay clear")
	}
	if !v.Test(500) {
		t.Error("bit set after Reset+grow should be set")
	}
}

func BenchmarkVersionedBitset_Reset(b *testing.B) {
	v := NewVersionedBitset(1000000)
	for i := 0; i < 1000; i++ {
		v.Set(i * 1000)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Reset()
	}
}
