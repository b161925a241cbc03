// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the newline-delimited JSON completion stream.
//
// The completion service answers a prompt with one JSON record per line.
// Transport chunking does not respect line or record boundaries, so the
// Decoder accumulates pieces until they parse and only then emits a Fragment.
//
// # Errors
//
//   - *ProtocolError: a record carried an "error" field (ErrNoContent when a
//     record has choices but no message content)
//   - *MalformedRecordError: the buffer can never become valid JSON, grew past
//     the size limit, or the stream ended mid-record
//   - *ReadError: the underlying reader failed
//   - ctx.Err(): the caller cancelled; this is not a failure
//
// # Usage
//
//	dec := stream.NewDecoder(resp.Body, stream.WithLogger(log))
//	err := dec.Process(ctx, func(f *stream.Fragment) error {
//	    agg.Fold(f)
//	    return nil
//	})
package stream
