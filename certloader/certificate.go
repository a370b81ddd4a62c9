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
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// CertificateInfo describes what a code-signing certificate says about itself.
type CertificateInfo struct {
	// IsExpired is true once NotAfter lies at least one whole day in the past.
	IsExpired bool `json:"is_expired"`
	// SerialNumber is the serial as uppercase hex, without a 0x prefix.
	SerialNumber string `json:"serial_number"`
	// TeamID is the last organizational unit in the subject.
	TeamID string `json:"team_id"`
}

func (c CertificateInfo) String() string {
	return fmt.Sprintf("(isExpired: %t, serialNumber: %s, teamID: %s)", c.IsExpired, c.SerialNumber, c.TeamID)
}

const day = 24 * time.Hour

var oidOrganizationalUnit = asn1.ObjectIdentifier{2, 5, 4, 11}

// extract derives a CertificateInfo from cert. Fields are read in a fixed
// order (team ID, serial, expiry) and the first failure is returned.
func extract(path string, cert *x509.Certificate, now func() time.Time) (CertificateInfo, error) {
	teamID, err := lastOrganizationalUnit(cert)
	if err != nil {
		return CertificateInfo{}, withPath(err, path)
	}

	serial, err := serialHex(cert.SerialNumber)
	if err != nil {
		return CertificateInfo{}, newError(EncodingError, path, err)
	}

	current := now()
	if current.IsZero() {
		return CertificateInfo{}, newError(ClockError, path, errors.New("failed getting current time"))
	}

	return CertificateInfo{
		IsExpired:    daysBetween(current, cert.NotAfter) < 0,
		SerialNumber: serial,
		TeamID:       teamID,
	}, nil
}

// lastOrganizationalUnit returns the value of the last OU attribute in the subject.
func lastOrganizationalUnit(cert *x509.Certificate) (string, error) {
	var last interface{}
	found := false
	for _, attr := range cert.Subject.Names {
		if attr.Type.Equal(oidOrganizationalUnit) {
			last = attr.Value
			found = true
		}
	}
	if !found {
		return "", newError(MissingAttribute, "", errors.New("subject has no organizational unit"))
	}

	value, ok := last.(string)
	if !ok {
		return "", newError(EncodingError, "", errors.Errorf("organizational unit has non-string value of type %T", last))
	}
	if !utf8.ValidString(value) {
		return "", newError(EncodingError, "", errors.New("organizational unit is not valid UTF-8"))
	}
	return value, nil
}

// serialHex renders a serial number the way OpenSSL's BN_bn2hex does:
// uppercase, whole bytes, a leading '-' for negative values and "0" for zero.
func serialHex(serial *big.Int) (string, error) {
	if serial == nil {
		return "", errors.New("certificate has no serial number")
	}
	if serial.Sign() == 0 {
		return "0", nil
	}

	out := strings.ToUpper(hex.EncodeToString(new(big.Int).Abs(serial).Bytes()))
	if serial.Sign() < 0 {
		out = "-" + out
	}
	return out, nil
}

// daysBetween returns the signed number of whole days from now until
// notAfter, truncated toward zero. It works on Unix seconds since a
// time.Duration cannot span the full range of x509 validity dates.
func daysBetween(now, notAfter time.Time) int64 {
	return (notAfter.Unix() - now.Unix()) / int64(day/time.Second)
}

func withPath(err error, path string) error {
	if e, ok := err.(*Error); ok {
		e.Path = path
	}
	return err
}
