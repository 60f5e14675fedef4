//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package llm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrStreamDone stops EachLine and EachEvent without an error.
var ErrStreamDone = errors.New("stream done")

// Emit hands one chunk to the consumer. It returns false once the
// consumer's context is done; the producer should then return.
type Emit func(StreamChunk) bool

// Pump runs produce on its own goroutine and exposes its chunks the way
// CompletionProvider.CompleteStream promises: the chunk channel closes
// when produce returns, and at most one error follows.
func Pump(ctx context.Context, produce func(emit Emit) error) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(chunks)

		abandoned := false
		err := produce(func(c StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				abandoned = true
				return false
			}
		})
		if abandoned && err == nil {
			err = ctx.Err()
		}
		if err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}

// EachLine calls fn with every non-blank line of r. Returning
// ErrStreamDone from fn ends the scan cleanly.
func EachLine(r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			if errors.Is(err, ErrStreamDone) {
				return nil
			}
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return TransportError(fmt.Errorf("stream read error: %w", err))
	}
	return nil
}

// EachEvent calls fn with the payload of every server-sent "data:" line
// of r. Event names, comments and ids are skipped.
func EachEvent(r io.Reader, fn func(data []byte) error) error {
	return EachLine(r, func(line []byte) error {
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			return nil
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			return nil
		}
		return fn(data)
	})
}

// IndexedEmbedding is one vector tagged with the position of its input.
type IndexedEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// InInputOrder arranges n embeddings by index. Backends may answer out of
// order; any input without a vector is an error.
func InInputOrder(n int, data []IndexedEmbedding) ([][]float32, error) {
	out := make([][]float32, n)
	for _, d := range data {
		if d.Index >= 0 && d.Index < n {
			out[d.Index] = d.Embedding
		}
	}
	for i, e := range out {
		if e == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return out, nil
}
