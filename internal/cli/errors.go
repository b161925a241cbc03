// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/silohub/chat/internal/chat"
	"github.com/silohub/chat/internal/history"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted indicates the user stopped generation
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// UsageError reports invalid arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}
	switch {
	case errors.Is(err, history.ErrNotFound):
		return ExitNotFoundError
	case errors.Is(err, history.ErrNotConfigured):
		return ExitConfigError
	}
	return ExitGeneralError
}

// exchangeError turns a failed or aborted exchange into an ExitError.
func exchangeError(res *chat.Result) error {
	switch res.Outcome {
	case chat.OutcomeAborted:
		return &ExitError{Code: ExitInterrupted, Err: errors.New("generation stopped")}
	case chat.OutcomeSkipped:
		return &ExitError{Code: ExitNotFoundError, Err: history.ErrNotFound}
	case chat.OutcomeError:
		code := ExitGeneralError
		switch res.Kind {
		case chat.KindTransport:
			code = ExitNetworkError
		case chat.KindTimeout:
			code = ExitTimeoutError
		}
		return &ExitError{Code: code, Err: fmt.Errorf("exchange failed (%s): %w", res.Kind, res.Err)}
	}
	return nil
}
