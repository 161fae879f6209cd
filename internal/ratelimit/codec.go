package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeRecord renders r as "<windowIndex>:<currentCount>:<previousCount>".
// The encoding is canonical, so stores can compare encoded values directly.
func EncodeRecord(r WindowRecord) string {
	var b strings.Builder

	b.Grow(32)
	b.WriteString(strconv.FormatInt(r.WindowIndex, 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(r.CurrentCount, 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(r.PreviousCount, 10))

	return b.String()
}

// DecodeRecord parses a value written by EncodeRecord.
func DecodeRecord(value string) (WindowRecord, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return WindowRecord{}, fmt.Errorf("%w: %q", ErrCorruptRecord, value)
	}

	var fields [3]int64

	for i, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return WindowRecord{}, fmt.Errorf("%w: %q: %w", ErrCorruptRecord, value, err)
		}

		fields[i] = n
	}

	r := WindowRecord{
		WindowIndex:   fields[0],
		CurrentCount:  fields[1],
		PreviousCount: fields[2],
	}

	if r.CurrentCount < 0 || r.PreviousCount < 0 {
		return WindowRecord{}, fmt.Errorf("%w: negative count in %q", ErrCorruptRecord, value)
	}

	return r, nil
}
