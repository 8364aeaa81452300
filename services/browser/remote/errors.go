// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned for nil contexts and empty required arguments.
var ErrInvalidInput = errors.New("remote: invalid input")

// TransportError is returned when a request fails at the network level or
// the service answers with a non-2xx status.
type TransportError struct {
	// Method is the HTTP method.
	Method string

	// Path is the request path including the base path.
	Path string

	// StatusCode is the HTTP status, or 0 if no response arrived.
	StatusCode int

	// Status is the HTTP status text, e.g. "503 Service Unavailable".
	Status string

	// Body holds up to the first kilobyte of the error response.
	Body string

	// Err is the underlying network error, if any.
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("API error: %s %s: %s", e.Method, e.Path, e.Status)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
