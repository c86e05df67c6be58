package lsm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

// OpenSSTable opens and validates an existing SSTable
func OpenSSTable(path string) (*SSTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var header SSTableHeader
	if err := binary.Read(file, binary.LittleEndian, &header); err != nil {
		_ = file.Close()
		return nil, err
	}
	if header.Magic != SSTableMagic {
		_ = file.Close()
		return nil, fmt.Errorf("sstable %s: bad magic %x", path, header.Magic)
	}
	if header.Version != SSTableVersion {
		_ = file.Close()
		return nil, fmt.Errorf("sstable %s: unsupported version %d", path, header.Version)
	}

	if _, err := file.Seek(int64(header.FooterOffset), 0); err != nil {
		_ = file.Close()
		return nil, err
	}
	var footer SSTableFooter
	if err := binary.Read(file, binary.LittleEndian, &footer); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("sstable %s: reading footer: %w", path, err)
	}
	if footer.BloomOffset != header.BloomOffset ||
		footer.IndexOffset != header.IndexOffset ||
		footer.FooterOffset != header.FooterOffset {
		_ = file.Close()
		return nil, fmt.Errorf("sstable %s: footer offsets disagree with header", path)
	}
	if want := footerCRC(header); footer.CRC != want {
		_ = file.Close()
		return nil, fmt.Errorf("sstable %s: checksum mismatch: stored %x, computed %x", path, footer.CRC, want)
	}

	if _, err := file.Seek(int64(header.IndexOffset), 0); err != nil {
		_ = file.Close()
		return nil, err
	}
	index, err := readIndex(bufio.NewReader(file))
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	if _, err := file.Seek(int64(header.BloomOffset), 0); err != nil {
		_ = file.Close()
		return nil, err
	}
	bloom, err := ReadBloomFilter(bufio.NewReader(file))
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	return &SSTable{
		path:   path,
		file:   file,
		header: header,
		index:  index,
		bloom:  bloom,
	}, nil
}

// MightContain consults the bloom filter
func (sst *SSTable) MightContain(key []byte) bool {
	return sst.bloom.MightContain(key)
}

// Get retrieves the entry for a key. Tombstoned entries are returned
// so the engine can stop the lookup; absence is the second return.
func (sst *SSTable) Get(key []byte) (*Entry, bool) {
	if !sst.bloom.MightContain(key) {
		return nil, false
	}

	pos := sst.blockStart(key)

	sst.mu.Lock()
	defer sst.mu.Unlock()

	if sst.file == nil {
		return nil, false
	}
	if _, err := sst.file.Seek(int64(pos), 0); err != nil {
		return nil, false
	}

	// Never read past the data section into the index block.
	reader := bufio.NewReader(io.LimitReader(sst.file, int64(sst.header.IndexOffset-pos)))
	for i := 0; i < IndexInterval; i++ {
		entry, err := readEntry(reader)
		if err != nil {
			return nil, false
		}
		cmp := bytes.Compare(entry.Key, key)
		if cmp == 0 {
			return entry, true
		}
		if cmp > 0 {
			return nil, false
		}
	}
	return nil, false
}

// blockStart finds the file offset of the index block that may hold key
func (sst *SSTable) blockStart(key []byte) uint64 {
	start := uint64(binary.Size(sst.header))
	if len(sst.index) == 0 {
		return start
	}

	// Greatest index key <= key.
	i := sort.Search(len(sst.index), func(i int) bool {
		return bytes.Compare(sst.index[i].Key, key) > 0
	})
	if i == 0 {
		return start
	}
	return sst.index[i-1].Offset
}

// Iterator returns every entry including tombstones, in key order
func (sst *SSTable) Iterator() ([]*Entry, error) {
	sst.mu.Lock()
	defer sst.mu.Unlock()

	if sst.file == nil {
		return nil, fmt.Errorf("sstable %s: closed", sst.path)
	}
	if _, err := sst.file.Seek(int64(binary.Size(sst.header)), 0); err != nil {
		return nil, err
	}

	reader := bufio.NewReader(sst.file)
	entries := make([]*Entry, 0, sst.header.EntryCount)
	for i := uint64(0); i < sst.header.EntryCount; i++ {
		entry, err := readEntry(reader)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Scan returns live entries in range [start, end)
func (sst *SSTable) Scan(start, end []byte) ([]*Entry, error) {
	entries, err := sst.Iterator()
	if err != nil {
		return nil, err
	}

	results := make([]*Entry, 0)
	for _, entry := range entries {
		if bytes.Compare(entry.Key, end) >= 0 {
			break
		}
		if bytes.Compare(entry.Key, start) >= 0 && !entry.Tombstone {
			results = append(results, entry)
		}
	}
	return results, nil
}
