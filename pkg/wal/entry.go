package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"time"
)

// OpType is the kind of a journal entry
type OpType byte

const (
	OpPut        OpType = 1
	OpDelete     OpType = 2
	OpCommit     OpType = 3
	OpCheckpoint OpType = 4
)

func (o OpType) String() string {
	switch o {
	case OpPut:
		return "PUT"
	case OpDelete:
		return "DELETE"
	case OpCommit:
		return "COMMIT"
	case OpCheckpoint:
		return "CHECKPOINT"
	}
	return "UNKNOWN"
}

const (
	// EntryHeaderSize is the fixed header length.
	// Layout: LSN(8) TxnID(8) Op(1) Version(1) Reserved(6) KeyLen(4) ValLen(4) UnixNano(8)
	EntryHeaderSize = 40

	entryVersion = 1

	// maxEntryPayload guards against allocating for a garbage length field
	maxEntryPayload = 64 << 20
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Entry is one journal record
type Entry struct {
	LSN       uint64
	TxnID     uint64
	Op        OpType
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Encode serializes the entry as [header][key][value][crc32c]
func (e *Entry) Encode() []byte {
	buf := make([]byte, e.Size())

	binary.LittleEndian.PutUint64(buf[0:8], e.LSN)
	binary.LittleEndian.PutUint64(buf[8:16], e.TxnID)
	buf[16] = byte(e.Op)
	buf[17] = entryVersion
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(e.Key)))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(len(e.Value)))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(e.Timestamp.UnixNano()))

	off := EntryHeaderSize
	off += copy(buf[off:], e.Key)
	off += copy(buf[off:], e.Value)

	binary.LittleEndian.PutUint32(buf[off:], crc32.Checksum(buf[:off], castagnoli))
	return buf
}

// Size is the encoded length of the entry
func (e *Entry) Size() int {
	return EntryHeaderSize + len(e.Key) + len(e.Value) + 4
}

func (e *Entry) String() string {
	return fmt.Sprintf("wal[lsn=%d txn=%d op=%s key=%d val=%d]",
		e.LSN, e.TxnID, e.Op, len(e.Key), len(e.Value))
}

// DecodeEntry parses one encoded entry
func DecodeEntry(data []byte) (*Entry, error) {
	if len(data) < EntryHeaderSize+4 {
		return nil, ErrTruncated
	}
	keyLen := int(binary.LittleEndian.Uint32(data[24:28]))
	valLen := int(binary.LittleEndian.Uint32(data[28:32]))
	end := EntryHeaderSize + keyLen + valLen
	if len(data) < end+4 {
		return nil, ErrTruncated
	}
	if binary.LittleEndian.Uint32(data[end:end+4]) != crc32.Checksum(data[:end], castagnoli) {
		return nil, ErrCorrupted
	}
	if data[17] != entryVersion {
		return nil, ErrBadVersion
	}

	e := &Entry{
		LSN:       binary.LittleEndian.Uint64(data[0:8]),
		TxnID:     binary.LittleEndian.Uint64(data[8:16]),
		Op:        OpType(data[16]),
		Timestamp: time.Unix(0, int64(binary.LittleEndian.Uint64(data[32:40]))),
	}
	if keyLen > 0 {
		e.Key = append([]byte(nil), data[EntryHeaderSize:EntryHeaderSize+keyLen]...)
	}
	if valLen > 0 {
		e.Value = append([]byte(nil), data[EntryHeaderSize+keyLen:end]...)
	}
	return e, nil
}

// readEntry reads the next entry from r. A clean end of stream is io.EOF;
// a partial entry is ErrTruncated.
func readEntry(r io.Reader) (*Entry, error) {
	header := make([]byte, EntryHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrTruncated
		}
		return nil, err
	}

	payload := int(binary.LittleEndian.Uint32(header[24:28])) + int(binary.LittleEndian.Uint32(header[28:32]))
	if payload > maxEntryPayload {
		return nil, ErrCorrupted
	}
	data := make([]byte, EntryHeaderSize+payload+4)
	copy(data, header)
	if _, err := io.ReadFull(r, data[EntryHeaderSize:]); err != nil {
		return nil, ErrTruncated
	}
	return DecodeEntry(data)
}
