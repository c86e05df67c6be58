package lsm

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBloomNoFalseNegatives(t *testing.T) {
	bf := NewBloomFilter(1000, 0.01)

	for i := 0; i < 1000; i++ {
		bf.Add([]byte(fmt.Sprintf("member-%d", i)))
	}
	for i := 0; i < 1000; i++ {
		if !bf.MightContain([]byte(fmt.Sprintf("member-%d", i))) {
			t.Fatalf("false negative for member-%d", i)
		}
	}
}

func TestBloomSerializeRoundTrip(t *testing.T) {
	bf := NewBloomFilter(500, 0.01)
	for i := 0; i < 500; i++ {
		bf.Add([]byte(fmt.Sprintf("key-%d", i)))
	}

	var buf bytes.Buffer
	n, err := bf.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if int(n) != bf.EncodedSize() {
		t.Errorf("wrote %d bytes, EncodedSize says %d", n, bf.EncodedSize())
	}

	got, err := ReadBloomFilter(&buf)
	if err != nil {
		t.Fatalf("ReadBloomFilter failed: %v", err)
	}
	if got.NumBits() != bf.NumBits() || got.NumHashes() != bf.NumHashes() {
		t.Errorf("dimensions changed: %d/%d -> %d/%d",
			bf.NumBits(), bf.NumHashes(), got.NumBits(), got.NumHashes())
	}
	for i := 0; i < 500; i++ {
		if !got.MightContain([]byte(fmt.Sprintf("key-%d", i))) {
			t.Fatalf("false negative after round trip: key-%d", i)
		}
	}
}

func TestBloomFalsePositiveRate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 10

	properties := gopter.NewProperties(parameters)
	properties.Property("1% filter stays under 2% observed false positives",
		prop.ForAll(
			func(prefix string) bool {
				bf := NewBloomFilter(1000, 0.01)
				for i := 0; i < 1000; i++ {
					bf.Add([]byte(fmt.Sprintf("%s-member-%d", prefix, i)))
				}

				falsePositives := 0
				for i := 0; i < 10000; i++ {
					if bf.MightContain([]byte(fmt.Sprintf("%s-outsider-%d", prefix, i))) {
						falsePositives++
					}
				}
				return float64(falsePositives)/10000.0 < 0.02
			},
			gen.Identifier(),
		))

	properties.TestingRun(t)
}

func TestBloomMergeIncompatible(t *testing.T) {
	a := NewBloomFilter(100, 0.01)
	b := NewBloomFilter(100000, 0.01)
	if err := a.Merge(b); err == nil {
		t.Error("expected error merging filters of different dimensions")
	}
}
