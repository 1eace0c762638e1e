package http

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sagarc03/sigv4gate"
)

const drainChunkSize = 32 << 10

// Drain reads body to the end into a single owned buffer. The context is
// checked between chunks. A read error at any point discards what was read so
// far and returns an error wrapping sigv4gate.ErrBodyRead. With limit > 0,
// a body longer than limit returns an error wrapping sigv4gate.ErrBodyTooLarge.
// A nil body yields an empty, non-nil slice.
func Drain(ctx context.Context, body io.Reader, limit int64) ([]byte, error) {
	if body == nil {
		return []byte{}, nil
	}

	buf := make([]byte, 0, drainChunkSize)
	chunk := make([]byte, drainChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := body.Read(chunk)
		if n > 0 {
			if limit > 0 && int64(len(buf)+n) > limit {
				return nil, fmt.Errorf("body exceeds %d bytes: %w", limit, sigv4gate.ErrBodyTooLarge)
			}
			buf = append(buf, chunk[:n]...)
		}

		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			return nil, fmt.Errorf("drain body after %d bytes: %w: %w", len(buf)+n, sigv4gate.ErrBodyRead, err)
		}
	}
}
