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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path     string
		expected Format
		ok       bool
	}{
		{"cert.p12", FormatPKCS12, true},
		{"/keys/dist.p12", FormatPKCS12, true},
		{"certp12", FormatPKCS12, true},
		{"cert.pem", FormatPEM, true},
		{"bundle.p12.pem", FormatPEM, true},
		{"cert.pfx", 0, false},
		{"cert.der", 0, false},
		{"cert.crt", 0, false},
		{"cert", 0, false},
		{"cert.PEM", 0, false},
		{"cert.P12", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			format, ok := formatForPath(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, format)
		})
	}
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "PKCS12", FormatPKCS12.String())
	assert.Equal(t, "PEM", FormatPEM.String())
	assert.Equal(t, "UNKNOWN", Format(0).String())
}
