package lsm

import (
	"os"
	"sync"
)

// SSTable file layout:
//   [Header: magic(4) | version(4) | entry_count(8) | bloom_offset(8) | index_offset(8) | footer_offset(8)]
//   [Entries: keyLen(4) | key | timestamp(8) | flags(1) | valueLen(4) | value]
//   [Sparse index: count(4), then keyLen(4) | key | file_offset(8) every IndexInterval entries]
//   [Bloom filter: num_bits(8) | num_hashes(4) | bits]
//   [Footer: bloom_offset(8) | index_offset(8) | footer_offset(8) | crc32(8)]
// The footer CRC covers the header bytes plus the footer's echoed offsets.

const (
	SSTableMagic   = 0x42545353 // "SSTB" little-endian on disk
	SSTableVersion = 1
	IndexInterval  = 128

	flagTombstone = 1
)

// SSTableHeader is the fixed-size file header
type SSTableHeader struct {
	Magic        uint32
	Version      uint32
	EntryCount   uint64
	BloomOffset  uint64
	IndexOffset  uint64
	FooterOffset uint64
}

// SSTableFooter echoes the section offsets with an integrity checksum
type SSTableFooter struct {
	BloomOffset  uint64
	IndexOffset  uint64
	FooterOffset uint64
	CRC          uint64
}

// IndexEntry is one sparse index record
type IndexEntry struct {
	Key    []byte
	Offset uint64
}

// SSTable is an immutable sorted table on disk
type SSTable struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	header SSTableHeader
	index  []IndexEntry
	bloom  *BloomFilter
}

// Path returns the file path
func (sst *SSTable) Path() string { return sst.path }

// EntryCount returns the number of stored entries
func (sst *SSTable) EntryCount() int { return int(sst.header.EntryCount) }

// Close releases the file handle
func (sst *SSTable) Close() error {
	sst.mu.Lock()
	defer sst.mu.Unlock()
	if sst.file == nil {
		return nil
	}
	err := sst.file.Close()
	sst.file = nil
	return err
}

// Remove closes and deletes the file
func (sst *SSTable) Remove() error {
	if err := sst.Close(); err != nil {
		return err
	}
	return os.Remove(sst.path)
}
