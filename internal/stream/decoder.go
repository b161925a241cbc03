// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the newline-delimited JSON completion stream.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rs/zerolog"
)

const (
	// DefaultChunkSize is the size of each read from the underlying stream.
	DefaultChunkSize = 4096

	// DefaultMaxRecordSize bounds a single accumulated record.
	DefaultMaxRecordSize = 4 << 20

	// maxRecordPreview bounds the record text carried by MalformedRecordError.
	maxRecordPreview = 120
)


var emptyRecord = []byte("{}")

// =============================================================================
// DECODER
// =============================================================================

// Stats counts what a Decoder has seen so far.
type Stats struct {
	Chunks  int
	Bytes   int64
	Records int
	Skipped int
}

// Decoder turns arbitrarily chunked stream bytes into Fragments.
//
// Records are separated by newlines, but a record may be split across reads
// at any byte. Pieces are accumulated until they parse. A Decoder is not safe
// for concurrent use.
type Decoder struct {
	r         io.Reader
	chunk     []byte
	maxRecord int
	log       zerolog.Logger

	running     bytes.Buffer
	recordStart int64
	offset      int64

	queue []*Fragment
	err   error
	eof   bool
	stats Stats
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithChunkSize sets the read size.
func WithChunkSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.chunk = make([]byte, n)
		}
	}
}

// WithMaxRecordSize bounds the accumulated size of one record.
func WithMaxRecordSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxRecord = n
		}
	}
}

// WithLogger attaches a logger for skipped and partial records.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Decoder) {
		d.log = l.With().Str("component", "stream").Logger()
	}
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		r:         r,
		chunk:     make([]byte, DefaultChunkSize),
		maxRecord: DefaultMaxRecordSize,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Stats returns counters for the stream consumed so far.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Next returns the next fragment. It returns io.EOF once the stream ended
// cleanly, ctx.Err() when ctx is done, and a typed error otherwise.
//
// A record carrying an error yields a *ProtocolError, even if it also has
// choices. A record with choices but no first message content yields ErrNoContent.
func (d *Decoder) Next(ctx context.Context) (*Fragment, error) {
	for {
		if len(d.queue) > 0 {
			frag := d.queue[0]
			d.queue = d.queue[1:]
			return frag, nil
		}
		if d.err != nil {
			return nil, d.err
		}
		if d.eof {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, io.EOF
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.stats.Chunks++
			d.stats.Bytes += int64(n)
			d.feed(d.chunk[:n])
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, io.EOF) {
				d.finish()
			} else if d.err == nil {
				d.err = &ReadError{Err: err}
			}
		}
	}
}

// Process reads the stream and calls the callback for each fragment.
// Blocks until the stream is complete, the callback fails or ctx is done.
func (d *Decoder) Process(ctx context.Context, callback func(*Fragment) error) error {
	for {
		frag, err := d.Next(ctx)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := callback(frag); err != nil {
			return err
		}
	}
}

// feed splits a chunk on newlines and offers each piece to the running buffer.
func (d *Decoder) feed(chunk []byte) {
	for len(chunk) > 0 && d.err == nil {
		piece := chunk
		terminated := false
		if i := bytes.IndexByte(chunk, '\n'); i >= 0 {
			piece = chunk[:i]
			chunk = chunk[i+1:]
			terminated = true
		} else {
			chunk = nil
		}

		d.offer(piece, terminated)
		d.offset += int64(len(piece))
		if terminated {
			d.offset++
		}
	}
}

// offer appends a piece to the running buffer and tries to parse it.
func (d *Decoder) offer(piece []byte, terminated bool) {
	if terminated {
		piece = bytes.TrimSuffix(piece, []byte("\r"))
	}

	if d.running.Len() == 0 {
		trimmed := bytes.TrimSpace(piece)
		if len(trimmed) == 0 || bytes.Equal(trimmed, emptyRecord) {
			if len(trimmed) > 0 {
				d.stats.Skipped++
			}
			return
		}
		d.recordStart = d.offset
	}

	d.running.Write(piece)
	if d.running.Len() > d.maxRecord {
		d.err = d.malformed(ErrRecordTooLarge)
		return
	}

	var frag Fragment
	err := json.Unmarshal(d.running.Bytes(), &frag)
	if err != nil {
		if isIncomplete(err, d.running.Len()) {
			d.log.Debug().Int("buffered", d.running.Len()).Msg("incomplete record, waiting for more input")
			return
		}
		d.err = d.malformed(err)
		return
	}
	d.running.Reset()
	d.stats.Records++

	if msg := frag.ErrorMessage(); msg != "" {
		d.err = &ProtocolError{Message: msg}
		return
	}
	if len(frag.Choices) > 0 {
		msgs := frag.Choices[0].Messages
		if len(msgs) == 0 || msgs[0].Text() == "" {
			d.err = ErrNoContent
			return
		}
		d.queue = append(d.queue, &frag)
		return
	}
	if frag.HistoryMetadata != nil {
		d.queue = append(d.queue, &frag)
		return
	}

	d.stats.Skipped++
	d.log.Debug().Str("id", frag.ID).Msg("skipping record without choices")
}

// finish handles end of input. Leftover bytes mean the last record was cut off.
func (d *Decoder) finish() {
	d.eof = true
	if d.err == nil && d.running.Len() > 0 {
		d.err = d.malformed(io.ErrUnexpectedEOF)
	}
}

func (d *Decoder) malformed(cause error) *MalformedRecordError {
	rec := d.running.String()
	if len(rec) > maxRecordPreview {
		rec = rec[:maxRecordPreview]
	}
	d.running.Reset()
	return &MalformedRecordError{Record: rec, Offset: d.recordStart, Err: cause}
}

// isIncomplete reports whether a parse failure could be fixed by more input.
// encoding/json reports a cut inside an escape, literal or number as an
// invalid character at the end of the buffer rather than as an unexpected end.
func isIncomplete(err error, buffered int) bool {
	var syn *json.SyntaxError
	return errors.As(err, &syn) && syn.Offset >= int64(buffered)
}
