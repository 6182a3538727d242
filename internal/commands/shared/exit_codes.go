// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for formwalk commands
const (
	ExitSuccess           = 0
	ExitRunFailed         = 1
	ExitInvalidDefinition = 2
	ExitSessionError      = 3
	ExitAuthError         = 4
	ExitInterrupted       = 130 // 128 + SIGINT
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewRunError creates an error for survey run failures
func NewRunError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitRunFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewInvalidDefinitionError creates an error for invalid definition files
func NewInvalidDefinitionError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidDefinition,
		Message: msg,
		Cause:   cause,
	}
}

// NewSessionError creates an error for session save/resume failures
func NewSessionError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitSessionError,
		Message: msg,
		Cause:   cause,
	}
}

// HandleExitError checks if an error is an ExitError and exits with the appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if msg := exitErr.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}
		os.Exit(exitErr.Code)
	}

	// Default to run failed
	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(ExitRunFailed)
}
