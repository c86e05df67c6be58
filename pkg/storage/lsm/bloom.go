package lsm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
)

// BloomFilter answers approximate set membership. False positives are
// possible at the configured rate; false negatives are not.
type BloomFilter struct {
	bits      []byte
	numBits   uint64
	numHashes uint32
}

// NewBloomFilter sizes a filter for expectedItems at the given false
// positive rate
func NewBloomFilter(expectedItems int, falsePositiveRate float64) *BloomFilter {
	if expectedItems <= 0 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	// m = -(n * ln p) / (ln 2)^2, k = (m/n) * ln 2
	numBits := uint64(math.Ceil(-float64(expectedItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	numHashes := uint32(math.Ceil((float64(numBits) / float64(expectedItems)) * math.Ln2))

	const maxBits = 1 << 30
	if numBits > maxBits {
		numBits = maxBits
	}
	if numBits < 1 {
		numBits = 1
	}
	if numHashes < 1 {
		numHashes = 1
	}
	if numHashes > 64 {
		numHashes = 64
	}

	return &BloomFilter{
		bits:      make([]byte, (numBits+7)/8),
		numBits:   numBits,
		numHashes: numHashes,
	}
}

// Add inserts a key
func (bf *BloomFilter) Add(key []byte) {
	for i := uint32(0); i < bf.numHashes; i++ {
		pos := bf.position(key, i)
		bf.bits[pos/8] |= 1 << (pos % 8)
	}
}

// MightContain reports whether the key may be present. A false return
// is definitive.
func (bf *BloomFilter) MightContain(key []byte) bool {
	for i := uint32(0); i < bf.numHashes; i++ {
		pos := bf.position(key, i)
		if bf.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// position derives the i-th bit position via double hashing:
// (h1 + i*h2) mod numBits
func (bf *BloomFilter) position(key []byte, i uint32) uint64 {
	h1 := fnv.New64a()
	_, _ = h1.Write(key)
	hash1 := h1.Sum64()

	h2 := fnv.New64a()
	_, _ = h2.Write(key)
	_, _ = h2.Write([]byte{0xFF})
	hash2 := h2.Sum64()
	if hash2%2 == 0 {
		hash2++
	}

	return (hash1 + uint64(i)*hash2) % bf.numBits
}

// NumBits returns the filter size in bits
func (bf *BloomFilter) NumBits() uint64 { return bf.numBits }

// NumHashes returns the number of hash functions
func (bf *BloomFilter) NumHashes() uint32 { return bf.numHashes }

// WriteTo serializes the filter as NUM_BITS(8) | NUM_HASHES(4) | BITS
func (bf *BloomFilter) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, binary.LittleEndian, bf.numBits); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.LittleEndian, bf.numHashes); err != nil {
		return 0, err
	}
	n, err := w.Write(bf.bits)
	if err != nil {
		return 0, err
	}
	return int64(12 + n), nil
}

// EncodedSize returns the serialized size in bytes
func (bf *BloomFilter) EncodedSize() int {
	return 12 + len(bf.bits)
}

// ReadBloomFilter deserializes a filter written by WriteTo
func ReadBloomFilter(r io.Reader) (*BloomFilter, error) {
	var numBits uint64
	if err := binary.Read(r, binary.LittleEndian, &numBits); err != nil {
		return nil, err
	}
	var numHashes uint32
	if err := binary.Read(r, binary.LittleEndian, &numHashes); err != nil {
		return nil, err
	}
	if numBits == 0 || numBits > 1<<30 {
		return nil, fmt.Errorf("bloom filter: invalid bit count %d", numBits)
	}
	if numHashes == 0 || numHashes > 64 {
		return nil, fmt.Errorf("bloom filter: invalid hash count %d", numHashes)
	}

	bits := make([]byte, (numBits+7)/8)
	if _, err := io.ReadFull(r, bits); err != nil {
		return nil, err
	}

	return &BloomFilter{bits: bits, numBits: numBits, numHashes: numHashes}, nil
}

// Merge ORs another filter into this one. Both must share dimensions.
func (bf *BloomFilter) Merge(other *BloomFilter) error {
	if bf.numBits != other.numBits || bf.numHashes != other.numHashes {
		return errors.New("bloom filter: incompatible dimensions")
	}
	for i := range bf.bits {
		bf.bits[i] |= other.bits[i]
	}
	return nil
}
