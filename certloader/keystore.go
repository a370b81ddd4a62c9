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
	"os"

	"github.com/pkg/errors"
	"software.sslmate.com/src/go-pkcs12"
)

// KeystorePassphrase unlocks every PKCS#12 archive. The signing tool that
// consumes these certificates only accepts archives with an empty passphrase,
// and the issuance pipeline never produces anything else. Archives protected
// by any other passphrase fail to decode.
const KeystorePassphrase = ""

// readKeystore reads a PKCS#12 archive and returns its leaf certificate.
func readKeystore(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(IoError, path, errors.Wrap(err, "unable to read keystore"))
	}
	return decodeKeystore(path, data)
}

// decodeKeystore unlocks a DER-encoded PKCS#12 archive with KeystorePassphrase.
// The leaf is the certificate matching the archive's private key; any CA
// certificates bundled alongside it are ignored.
func decodeKeystore(path string, data []byte) (*x509.Certificate, error) {
	_, leaf, _, err := pkcs12.DecodeChain(data, KeystorePassphrase)
	if err != nil {
		return nil, newError(DecodeError, path, errors.Wrap(err, "unable to parse keystore"))
	}
	if leaf == nil {
		return nil, newError(DecodeError, path, errors.New("keystore contains no certificate"))
	}
	return leaf, nil
}
