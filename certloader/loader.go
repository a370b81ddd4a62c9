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
	"crypto/x509"
	"time"
)

// Logger receives diagnostic messages, e.g. a *log.Logger.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Loader loads certificate files and extracts a CertificateInfo. The zero
// value is ready to use. A Loader holds no state between calls and may be
// used from multiple goroutines.
type Loader struct {
	// Now returns the current time. Defaults to time.Now. A zero time is
	// treated as a clock failure.
	Now func() time.Time
	// Logger receives one line per load (optional).
	Logger Logger
}

var defaultLoader = &Loader{}

// Load reads the certificate at path using the wall clock.
func Load(path string) (CertificateInfo, error) {
	return defaultLoader.Load(path)
}

// Load reads the certificate at path. The container format is chosen by
// the path suffix: "p12" for PKCS#12 archives, "pem" for PEM certificates.
// Any other suffix fails with UnsupportedFormat before the file is opened.
func (l *Loader) Load(path string) (CertificateInfo, error) {
	format, ok := formatForPath(path)
	if !ok {
		return CertificateInfo{}, l.fail(newError(UnsupportedFormat, path, nil))
	}

	var (
		cert *x509.Certificate
		err  error
	)
	switch format {
	case FormatPKCS12:
		cert, err = readKeystore(path)
	case FormatPEM:
		cert, err = readPEM(path)
	}
	if err != nil {
		return CertificateInfo{}, l.fail(err)
	}

	info, err := extract(path, cert, l.now)
	if err != nil {
		return CertificateInfo{}, l.fail(err)
	}

	l.printf("loaded %s certificate from %s: %s", format, path, info)
	return info, nil
}

func (l *Loader) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Loader) fail(err error) error {
	l.printf("unable to load certificate: %s", err)
	return err
}

func (l *Loader) printf(format string, v ...interface{}) {
	if l.Logger != nil {
		l.Logger.Printf(format, v...)
	}
}
