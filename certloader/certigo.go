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
	"encoding/pem"
	"os"

	"github.com/pkg/errors"
	certigo "github.com/square/certigo/lib"
)

const pemCertificateType = "CERTIFICATE"

// readPEM reads the whole file and decodes the first certificate in it.
// Blocks of other types (keys, parameters) before the certificate are skipped.
func readPEM(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(IoError, path, errors.Wrap(err, "unable to read file"))
	}
	return decodePEM(path, data)
}

func decodePEM(path string, data []byte) (*x509.Certificate, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, newError(DecodeError, path, errors.New("no certificates found"))
		}
		if block.Type != pemCertificateType {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, newError(DecodeError, path, errors.Wrap(err, "unable to parse certificate"))
		}
		return cert, nil
	}
}

// ReadCertificate returns the decoded certificate behind path, using the
// same format dispatch as Load. It exists for callers that want to render
// the full certificate; Load never hands out the decoded structure.
func ReadCertificate(path string) (*x509.Certificate, error) {
	format, ok := formatForPath(path)
	if !ok {
		return nil, newError(UnsupportedFormat, path, nil)
	}
	switch format {
	case FormatPKCS12:
		return readKeystore(path)
	default:
		return readPEM(path)
	}
}

// EncodeJSON renders a certificate the way certigo's dump command does.
func EncodeJSON(cert *x509.Certificate) []byte {
	return certigo.EncodeX509ToJSON(cert)
}
