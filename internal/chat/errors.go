// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	"github.com/silohub/chat/internal/apierror"
	"github.com/silohub/chat/internal/history"
	"github.com/silohub/chat/internal/stream"
	"github.com/silohub/chat/internal/transport"
)

// =============================================================================
// USER-FACING MESSAGES
// =============================================================================

const (
	// DefaultErrorMessage is shown when a failure carries no usable text.
	DefaultErrorMessage = "An error occurred. Please try again. If the problem persists, please contact the site administrator."

	// RetryMessage is shown when the service rejected a prompt without saying why.
	RetryMessage = "Please try again. If the problem persists, please contact the site administrator."

	// RemoteFailurePrefix precedes rejected-prompt errors when history is kept
	// remotely.
	RemoteFailurePrefix = "There was an error generating a response. Chat history can't be saved at this time. "

	// LocalFailurePrefix precedes rejected-prompt errors when history is local.
	LocalFailurePrefix = "There was an error generating a response. "
)

// ErrEmptyPrompt is returned by Send for a prompt with no text or images.
var ErrEmptyPrompt = errors.New("prompt is empty")

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// Kind groups exchange failures for logging and metrics.
type Kind string

const (
	KindNone        Kind = ""
	KindTransport   Kind = "transport"
	KindProtocol    Kind = "protocol"
	KindMalformed   Kind = "malformed"
	KindPersistence Kind = "persistence"
	KindCancelled   Kind = "cancelled"
	KindTimeout     Kind = "timeout"
	KindUnknown     Kind = "unknown"
)

// Classify maps an error from the chat pipeline onto a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var (
		persistErr   *history.PersistError
		malformedErr *stream.MalformedRecordError
		protocolErr  *stream.ProtocolError
		readErr      *stream.ReadError
		transportErr *transport.Error
	)
	switch {
	case errors.As(err, &persistErr):
		return KindPersistence
	case errors.As(err, &malformedErr), errors.Is(err, stream.ErrRecordTooLarge):
		return KindMalformed
	case errors.As(err, &protocolErr):
		return KindProtocol
	case errors.As(err, &transportErr):
		if transportErr.Type == transport.ErrTypeTimeout {
			return KindTimeout
		}
		return KindTransport
	case errors.As(err, &readErr):
		return KindTransport
	}
	return KindUnknown
}

// userMessage renders a stream failure as the text of an error message.
// Provider errors go through the translator. Everything else gets the
// generic message so raw internals are never shown.
func userMessage(err error) string {
	var protocolErr *stream.ProtocolError
	if errors.As(err, &protocolErr) && protocolErr.Message != "" {
		return apierror.Translate(protocolErr.Message)
	}
	return DefaultErrorMessage
}

// rejectedMessage renders a non-2xx completion response.
func rejectedMessage(raw string, remote bool) string {
	if raw == "" {
		raw = RetryMessage
	}
	prefix := LocalFailurePrefix
	if remote {
		prefix = RemoteFailurePrefix
	}
	return prefix + apierror.Translate(raw)
}
