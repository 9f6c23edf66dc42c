package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// segment is the decoded content of one journal file. valid is the byte
// length of the intact prefix; torn reports that bytes follow it.
type segment struct {
	path    string
	entries []*Entry
	valid   int64
	torn    bool
}

// readSegment decodes entries until EOF or the first damaged entry
func readSegment(path string) (*segment, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	seg := &segment{path: path}
	r := bufio.NewReader(fd)
	for {
		e, err := readEntry(r)
		if err == io.EOF {
			return seg, nil
		}
		if errors.Is(err, ErrTruncated) || errors.Is(err, ErrCorrupted) || errors.Is(err, ErrBadVersion) {
			seg.torn = true
			return seg, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		seg.entries = append(seg.entries, e)
		seg.valid += int64(e.Size())
	}
}

// readSegments reads files in order. Only the last file may end in a torn
// entry: earlier files were sealed by a rotation and must be intact.
func readSegments(files []string) ([]*segment, error) {
	segs := make([]*segment, 0, len(files))
	for i, f := range files {
		seg, err := readSegment(f)
		if err != nil {
			return nil, err
		}
		if seg.torn && i != len(files)-1 {
			return nil, fmt.Errorf("%s at offset %d: %w", f, seg.valid, ErrCorrupted)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// ReadAll returns every intact entry in files, in order
func ReadAll(files []string) ([]*Entry, error) {
	segs, err := readSegments(files)
	if err != nil {
		return nil, err
	}
	var out []*Entry
	for _, s := range segs {
		out = append(out, s.entries...)
	}
	return out, nil
}
