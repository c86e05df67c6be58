package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
)

// CreateSSTable writes a MemTable snapshot to a new SSTable file. The
// header is rewritten with final offsets once all sections are on disk,
// and the file is fsynced before it becomes visible to readers.
func CreateSSTable(path string, entries []*Entry) (*SSTable, error) {
	sort.Slice(entries, func(i, j int) bool {
		return EntryCompare(entries[i], entries[j]) < 0
	})

	bloom := NewBloomFilter(len(entries), 0.01)
	for _, entry := range entries {
		bloom.Add(entry.Key)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writer := bufio.NewWriter(file)

	header := SSTableHeader{
		Magic:      SSTableMagic,
		Version:    SSTableVersion,
		EntryCount: uint64(len(entries)),
	}

	// Placeholder header, rewritten after the offsets are known.
	if err := binary.Write(writer, binary.LittleEndian, &header); err != nil {
		_ = file.Close()
		return nil, err
	}

	index := make([]IndexEntry, 0, len(entries)/IndexInterval+1)
	offset := uint64(binary.Size(header))

	for i, entry := range entries {
		if i%IndexInterval == 0 {
			index = append(index, IndexEntry{Key: entry.Key, Offset: offset})
		}

		entrySize, err := writeEntry(writer, entry)
		if err != nil {
			_ = file.Close()
			return nil, err
		}

		newOffset := offset + uint64(entrySize)
		if newOffset < offset {
			_ = file.Close()
			return nil, fmt.Errorf("sstable %s: offset overflow", path)
		}
		offset = newOffset
	}

	header.IndexOffset = offset
	if err := writeIndex(writer, index); err != nil {
		_ = file.Close()
		return nil, err
	}
	if err := writer.Flush(); err != nil {
		_ = file.Close()
		return nil, err
	}

	pos, err := file.Seek(0, 1)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	header.BloomOffset = uint64(pos)
	header.FooterOffset = header.BloomOffset + uint64(bloom.EncodedSize())

	if _, err := bloom.WriteTo(writer); err != nil {
		_ = file.Close()
		return nil, err
	}

	footer := SSTableFooter{
		BloomOffset:  header.BloomOffset,
		IndexOffset:  header.IndexOffset,
		FooterOffset: header.FooterOffset,
		CRC:          footerCRC(header),
	}
	if err := binary.Write(writer, binary.LittleEndian, &footer); err != nil {
		_ = file.Close()
		return nil, err
	}
	if err := writer.Flush(); err != nil {
		_ = file.Close()
		return nil, err
	}

	// Rewrite the header with final offsets.
	if _, err := file.Seek(0, 0); err != nil {
		_ = file.Close()
		return nil, err
	}
	if err := binary.Write(file, binary.LittleEndian, &header); err != nil {
		_ = file.Close()
		return nil, err
	}
	if err := file.Sync(); err != nil {
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
