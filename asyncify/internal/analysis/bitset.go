package analysis

import "math/bits"

// BitSet is a compact set of value ids.
type BitSet struct {
	words []uint64
}

// NewBitSet creates a set sized for ids up to maxVal inclusive. It grows on demand.
func NewBitSet(maxVal int) *BitSet {
	return &BitSet{words: make([]uint64, (maxVal+64)/64)}
}

// Set adds v. It reports whether v was newly added.
func (b *BitSet) Set(v uint32) bool {
	w := int(v / 64)
	if w >= len(b.words) {
		grown := make([]uint64, w+1)
		copy(grown, b.words)
		b.words = grown
	}
	mask := uint64(1) << (v % 64)
	if b.words[w]&mask != 0 {
		return false
	}
	b.words[w] |= mask
	return true
}

// Has reports whether v is in the set.
func (b *BitSet) Has(v uint32) bool {
	w := int(v / 64)
	if w >= len(b.words) {
		return false
	}
	return b.words[w]&(1<<(v%64)) != 0
}

// Count returns the number of members.
func (b *BitSet) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// ToSlice returns the members in ascending order.
func (b *BitSet) ToSlice() []uint32 {
	var out []uint32
	for i, w := range b.words {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			out = append(out, uint32(i*64+tz))
			w &= w - 1
		}
	}
	return out
}

// Clear removes v.
func (b *BitSet) Clear(v uint32) {
	w := int(v / 64)
	if w < len(b.words) {
		b.words[w] &^= 1 << (v % 64)
	}
}

// Union adds every member of o. It reports whether b changed.
func (b *BitSet) Union(o *BitSet) bool {
	if len(o.words) > len(b.words) {
		grown := make([]uint64, len(o.words))
		copy(grown, b.words)
		b.words = grown
	}
	changed := false
	for i, w := range o.words {
		if b.words[i]|w != b.words[i] {
			b.words[i] |= w
			changed = true
		}
	}
	return changed
}

// Clone returns an independent copy.
func (b *BitSet) Clone() *BitSet {
	words := make([]uint64, len(b.words))
	copy(words, b.words)
	return &BitSet{words: words}
}
