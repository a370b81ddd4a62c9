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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

type certOptions struct {
	serial   *big.Int
	ous      []string
	notAfter time.Time
}

func defaultCertOptions() certOptions {
	return certOptions{
		serial:   big.NewInt(0x1A2B3C),
		ous:      []string{"Engineering", "TEAMID123"},
		notAfter: time.Now().AddDate(1, 0, 0),
	}
}

// generateCert creates a self-signed certificate. Each OU is written as its
// own RDN so that the subject keeps the given order.
func generateCert(t *testing.T, opts certOptions) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	subject := pkix.Name{CommonName: "iPhone Distribution: Example Corp"}
	for _, ou := range opts.ous {
		subject.ExtraNames = append(subject.ExtraNames, pkix.AttributeTypeAndValue{
			Type:  oidOrganizationalUnit,
			Value: ou,
		})
	}

	template := &x509.Certificate{
		SerialNumber: opts.serial,
		Subject:      subject,
		NotBefore:    opts.notAfter.AddDate(-2, 0, 0),
		NotAfter:     opts.notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(derBytes)
	require.NoError(t, err)
	return cert, key
}

// generatePKCS12 creates a PKCS#12 keystore holding cert and key.
func generatePKCS12(t *testing.T, cert *x509.Certificate, key *ecdsa.PrivateKey, password string) []byte {
	t.Helper()
	p12Data, err := gopkcs12.Encode(rand.Reader, key, cert, nil, password)
	require.NoError(t, err)
	return p12Data
}

func serialFromHex(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 16)
	require.True(t, ok, "invalid hex serial %s", s)
	return n
}

func encodePEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// writeFile writes data into a fresh temp dir under the given name.
func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// writeFixtures writes the same certificate as both a PKCS#12 archive and a
// PEM file.
func writeFixtures(t *testing.T, opts certOptions) (p12Path, pemPath string, cert *x509.Certificate) {
	t.Helper()
	cert, key := generateCert(t, opts)
	p12Path = writeFile(t, "cert.p12", generatePKCS12(t, cert, key, KeystorePassphrase))
	pemPath = writeFile(t, "cert.pem", encodePEM(cert))
	return p12Path, pemPath, cert
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}
