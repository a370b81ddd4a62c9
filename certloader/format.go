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
	"strings"
)

// Format is the container format of a certificate file.
type Format int

const (
	// FormatPKCS12 is a DER-encoded PKCS#12 archive.
	FormatPKCS12 Format = iota + 1
	// FormatPEM is a PEM-armored X.509 certificate.
	FormatPEM
)

func (f Format) String() string {
	switch f {
	case FormatPKCS12:
		return "PKCS12"
	case FormatPEM:
		return "PEM"
	}
	return "UNKNOWN"
}

// formatForPath picks the container format from the path suffix alone. The
// file contents are never inspected, an unknown suffix is an error.
func formatForPath(path string) (Format, bool) {
	switch {
	case strings.HasSuffix(path, "p12"):
		return FormatPKCS12, true
	case strings.HasSuffix(path, "pem"):
		return FormatPEM, true
	}
	return 0, false
}
