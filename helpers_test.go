/*-
 * Copyright 2015 Square Inc.
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

package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

var oidOU = asn1.ObjectIdentifier{2, 5, 4, 11}

// writeCertificate writes a self-signed code-signing certificate for
// teamID into dir. The container is picked from the name: ".p12" gives a
// keystore with an empty passphrase, anything else a PEM file.
func writeCertificate(t *testing.T, dir, name, teamID string, notAfter time.Time) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(0x0ABCDE),
		Subject: pkix.Name{
			CommonName: "Developer ID Application: Example",
			ExtraNames: []pkix.AttributeTypeAndValue{
				{Type: oidOU, Value: "Signing"},
				{Type: oidOU, Value: teamID},
			},
		},
		NotBefore:   notAfter.AddDate(-1, 0, 0),
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	var data []byte
	if strings.HasSuffix(name, ".p12") {
		data, err = gopkcs12.Encode(rand.Reader, key, cert, nil, "")
		require.NoError(t, err)
	} else {
		data = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	}

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func validUntil() time.Time {
	return time.Now().AddDate(1, 0, 0)
}

func expiredSince() time.Time {
	return time.Now().AddDate(0, 0, -3)
}
