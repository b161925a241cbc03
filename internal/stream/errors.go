// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"fmt"
)

// NoContentMessage is shown when a record has choices but no message content.
const NoContentMessage = "No content in messages object."

// =============================================================================
// ERROR TYPES
// =============================================================================

// ProtocolError is a well-formed record that reports a failure, or one that
// violates the stream contract.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing protocol errors.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// ErrNoContent is returned when choices[0].messages[0].content is absent or empty.
// Use errors.Is(err, ErrNoContent) to check for this error.
var ErrNoContent = &ProtocolError{Message: NoContentMessage}

// MalformedRecordError means the decoder could not make progress on its buffer.
type MalformedRecordError struct {
	// Record is a prefix of the offending buffer
	Record string
	// Offset is the byte position in the stream where the record started
	Offset int64
	Err    error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed stream record at byte %d (%q): %v", e.Offset, e.Record, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// ReadError wraps a failure of the underlying reader mid-stream.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return "stream read failed: " + e.Err.Error()
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// ErrRecordTooLarge is the cause used when a record exceeds the size limit.
var ErrRecordTooLarge = errors.New("record exceeds size limit")
