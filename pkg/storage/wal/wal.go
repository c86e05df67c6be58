// Package wal implements a snappy-compressed write-ahead log used by
// the storage engine to make memtable writes durable between flushes.
package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
)

// OpType identifies the logged operation
type OpType byte

const (
	OpPut OpType = iota + 1
	OpDelete
)

// Record is one decoded log record
type Record struct {
	LSN       uint64
	Op        OpType
	Key       []byte
	Value     []byte
	Timestamp int64
}

// Log is an append-only write-ahead log. Records are snappy-compressed
// and checksummed; every append is flushed and synced before returning.
type Log struct {
	mu         sync.Mutex
	file       *os.File
	writer     *bufio.Writer
	path       string
	currentLSN uint64

	totalWrites       uint64
	bytesUncompressed uint64
	bytesCompressed   uint64
}

const fileName = "wal.log"

// Open opens or creates the log in dir and recovers the last LSN
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating wal directory: %w", err)
	}

	path := filepath.Join(dir, fileName)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening wal file: %w", err)
	}

	l := &Log{
		file:   file,
		writer: bufio.NewWriter(file),
		path:   path,
	}

	records, err := l.readAll()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("recovering wal: %w", err)
	}
	if len(records) > 0 {
		l.currentLSN = records[len(records)-1].LSN
	}

	return l, nil
}

// Append logs one operation durably
func (l *Log) Append(op OpType, key, value []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentLSN++
	lsn := l.currentLSN

	payload := encodePayload(key, value)
	compressed := snappy.Encode(nil, payload)

	l.totalWrites++
	l.bytesUncompressed += uint64(len(payload))
	l.bytesCompressed += uint64(len(compressed))

	if err := l.writeRecord(lsn, op, compressed); err != nil {
		l.currentLSN--
		return 0, fmt.Errorf("writing wal record: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return 0, fmt.Errorf("flushing wal: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return 0, fmt.Errorf("syncing wal: %w", err)
	}

	return lsn, nil
}

// writeRecord writes [LSN:8][Op:1][DataLen:4][Data][Checksum:4][Timestamp:8]
func (l *Log) writeRecord(lsn uint64, op OpType, data []byte) error {
	if err := binary.Write(l.writer, binary.BigEndian, lsn); err != nil {
		return err
	}
	if err := l.writer.WriteByte(byte(op)); err != nil {
		return err
	}
	if err := binary.Write(l.writer, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	if _, err := l.writer.Write(data); err != nil {
		return err
	}
	if err := binary.Write(l.writer, binary.BigEndian, crc32.ChecksumIEEE(data)); err != nil {
		return err
	}
	return binary.Write(l.writer, binary.BigEndian, time.Now().Unix())
}

// Replay calls fn for every record in append order
func (l *Log) Replay(fn func(*Record) error) error {
	records, err := l.readAll()
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (l *Log) readAll() ([]*Record, error) {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	records := make([]*Record, 0)

	for {
		var lsn uint64
		if err := binary.Read(reader, binary.BigEndian, &lsn); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		opByte, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}

		var dataLen uint32
		if err := binary.Read(reader, binary.BigEndian, &dataLen); err != nil {
			return nil, err
		}
		compressed := make([]byte, dataLen)
		if _, err := io.ReadFull(reader, compressed); err != nil {
			return nil, err
		}

		var checksum uint32
		if err := binary.Read(reader, binary.BigEndian, &checksum); err != nil {
			return nil, err
		}
		if crc32.ChecksumIEEE(compressed) != checksum {
			return nil, fmt.Errorf("wal record %d: checksum mismatch", lsn)
		}

		var timestamp int64
		if err := binary.Read(reader, binary.BigEndian, &timestamp); err != nil {
			return nil, err
		}

		payload, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, fmt.Errorf("wal record %d: decompress: %w", lsn, err)
		}
		key, value, err := decodePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("wal record %d: %w", lsn, err)
		}

		records = append(records, &Record{
			LSN:       lsn,
			Op:        OpType(opByte),
			Key:       key,
			Value:     value,
			Timestamp: timestamp,
		})
	}

	return records, nil
}

// Reset truncates the log after a successful memtable flush
func (l *Log) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.writer.Flush()
	_ = l.file.Close()

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	file, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	l.file = file
	l.writer = bufio.NewWriter(file)
	l.currentLSN = 0
	return nil
}

// Close flushes and closes the log
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.Flush(); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	return l.file.Close()
}

// Stats summarizes compression effectiveness
type Stats struct {
	TotalWrites       uint64
	BytesUncompressed uint64
	BytesCompressed   uint64
	CompressionRatio  float64
}

// Statistics returns a snapshot of the log's compression counters
func (l *Log) Statistics() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	ratio := 0.0
	if l.bytesUncompressed > 0 {
		ratio = 1.0 - float64(l.bytesCompressed)/float64(l.bytesUncompressed)
	}
	return Stats{
		TotalWrites:       l.totalWrites,
		BytesUncompressed: l.bytesUncompressed,
		BytesCompressed:   l.bytesCompressed,
		CompressionRatio:  ratio,
	}
}

// encodePayload packs key and value as keyLen(4)|key|value
func encodePayload(key, value []byte) []byte {
	buf := make([]byte, 4+len(key)+len(value))
	binary.BigEndian.PutUint32(buf, uint32(len(key)))
	copy(buf[4:], key)
	copy(buf[4+len(key):], value)
	return buf
}

func decodePayload(payload []byte) (key, value []byte, err error) {
	if len(payload) < 4 {
		return nil, nil, fmt.Errorf("payload too short: %d bytes", len(payload))
	}
	keyLen := binary.BigEndian.Uint32(payload)
	if int(keyLen) > len(payload)-4 {
		return nil, nil, fmt.Errorf("key length %d exceeds payload", keyLen)
	}
	key = payload[4 : 4+keyLen]
	value = payload[4+keyLen:]
	return key, value, nil
}
