package lsm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"path/filepath"
)

// writeEntry writes one entry and returns its encoded size.
// Layout: keyLen(4) | key | timestamp(8) | flags(1) | valueLen(4) | value
func writeEntry(w *bufio.Writer, entry *Entry) (int, error) {
	size := 0

	if err := binary.Write(w, binary.LittleEndian, uint32(len(entry.Key))); err != nil {
		return 0, err
	}
	size += 4

	n, err := w.Write(entry.Key)
	if err != nil {
		return 0, err
	}
	size += n

	if err := binary.Write(w, binary.LittleEndian, entry.Timestamp); err != nil {
		return 0, err
	}
	size += 8

	flags := byte(0)
	if entry.Tombstone {
		flags = flagTombstone
	}
	if err := w.WriteByte(flags); err != nil {
		return 0, err
	}
	size++

	if err := binary.Write(w, binary.LittleEndian, uint32(len(entry.Value))); err != nil {
		return 0, err
	}
	size += 4

	n, err = w.Write(entry.Value)
	if err != nil {
		return 0, err
	}
	size += n

	return size, nil
}

// readEntry reads one entry written by writeEntry
func readEntry(r io.Reader) (*Entry, error) {
	var keyLen uint32
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return nil, err
	}

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}

	var timestamp int64
	if err := binary.Read(r, binary.LittleEndian, &timestamp); err != nil {
		return nil, err
	}

	var flags [1]byte
	if _, err := io.ReadFull(r, flags[:]); err != nil {
		return nil, err
	}

	var valueLen uint32
	if err := binary.Read(r, binary.LittleEndian, &valueLen); err != nil {
		return nil, err
	}

	value := make([]byte, valueLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, err
	}

	return &Entry{
		Key:       key,
		Value:     value,
		Timestamp: timestamp,
		Tombstone: flags[0]&flagTombstone != 0,
	}, nil
}

// writeIndex writes the sparse index block
func writeIndex(w *bufio.Writer, index []IndexEntry) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(index))); err != nil {
		return err
	}
	for _, entry := range index {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(entry.Key))); err != nil {
			return err
		}
		if _, err := w.Write(entry.Key); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, entry.Offset); err != nil {
			return err
		}
	}
	return nil
}

// readIndex reads the sparse index block
func readIndex(r io.Reader) ([]IndexEntry, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	index := make([]IndexEntry, count)
	for i := uint32(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
			return nil, err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("reading index key: %w", err)
		}
		var offset uint64
		if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
			return nil, err
		}
		index[i] = IndexEntry{Key: key, Offset: offset}
	}
	return index, nil
}

// footerCRC computes the footer checksum over the header bytes and the
// echoed section offsets
func footerCRC(header SSTableHeader) uint64 {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, &header)
	_ = binary.Write(&buf, binary.LittleEndian, header.BloomOffset)
	_ = binary.Write(&buf, binary.LittleEndian, header.IndexOffset)
	_ = binary.Write(&buf, binary.LittleEndian, header.FooterOffset)
	return uint64(crc32.ChecksumIEEE(buf.Bytes()))
}

// SSTablePath builds the file name for a table at a level
func SSTablePath(dir string, level int, id int64) string {
	return filepath.Join(dir, fmt.Sprintf("L%d-%06d.sst", level, id))
}
