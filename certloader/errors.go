/*-
 * Copyright 2018 Square Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package certloader

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure to load a certificate. A Kind is itself an error,
// so callers can test for it with errors.Is(err, certloader.DecodeError).
type Kind int

const (
	// UnsupportedFormat means the path suffix is neither p12 nor pem.
	UnsupportedFormat Kind = iota + 1
	// IoError means the file could not be opened or read.
	IoError
	// DecodeError means the bytes are not a valid PKCS#12 archive or PEM
	// certificate, or the passphrase did not unlock the archive.
	DecodeError
	// MissingAttribute means the subject has no organizational unit.
	MissingAttribute
	// EncodingError means a decoded value could not be converted to text
	// or hex.
	EncodingError
	// ClockError means the current time could not be obtained.
	ClockError
)

var kindNames = map[Kind]string{
	UnsupportedFormat: "unsupported format",
	IoError:           "i/o error",
	DecodeError:       "decode error",
	MissingAttribute:  "missing attribute",
	EncodingError:     "encoding error",
	ClockError:        "clock error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Error() string {
	return k.String()
}

// Error is returned by Load for every failure.
type Error struct {
	// Kind of failure
	Kind Kind
	// Path that was being loaded
	Path string
	// Underlying cause (may be nil)
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the Kind of this error.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func newError(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// KindOf returns the Kind of err, or zero if err did not come from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
