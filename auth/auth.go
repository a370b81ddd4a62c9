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

// Package auth decides whether a loaded signing certificate may be used.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/ghostunnel/certinfo/certloader"
	"github.com/ghostunnel/certinfo/policy"
	"github.com/pkg/errors"
)

// Logger is used by this package to log messages
type Logger interface {
	Printf(format string, v ...interface{})
}

var (
	// ErrExpired is returned for expired certificates unless AllowExpired is set.
	ErrExpired = errors.New("certificate is expired")
	// ErrTeamID is returned if the team ID is not in AllowedTeamIDs.
	ErrTeamID = errors.New("team ID not allowed")
	// ErrSerial is returned if the serial is not in AllowedSerials.
	ErrSerial = errors.New("serial number not allowed")
	// ErrPolicy is returned if the OPA policy did not allow the certificate.
	ErrPolicy = errors.New("certificate rejected by policy")
)

// ACL represents the conditions a signing certificate has to meet before it
// may be used. Each allow list is disjunctive (one match is enough), the
// lists themselves are conjunctive. An empty list places no restriction.
type ACL struct {
	// AllowExpired accepts certificates that have expired. Off by default,
	// expired certificates are rejected.
	AllowExpired bool
	// AllowedTeamIDs lists team IDs that may be used for signing.
	AllowedTeamIDs []string
	// AllowedSerials lists serial numbers (hex, case-insensitive) that may
	// be used for signing.
	AllowedSerials []string
	// AllowOPAQuery is an optional OPA policy. It is evaluated with the
	// certificate info as input ("path", "is_expired", "serial_number",
	// "team_id") and must allow it.
	AllowOPAQuery policy.Policy
	// OPAQueryTimeout bounds policy evaluation. Zero means no timeout.
	OPAQueryTimeout time.Duration
	// Logger is used to log authorization decisions.
	Logger Logger
}

// Verify checks a loaded certificate against the ACL. It returns nil if the
// certificate may be used.
func (a ACL) Verify(ctx context.Context, path string, info certloader.CertificateInfo) error {
	err := a.verify(ctx, path, info)
	if err != nil {
		a.printf("rejected %s %s: %s", path, info, err)
		return err
	}
	a.printf("accepted %s %s", path, info)
	return nil
}

func (a ACL) verify(ctx context.Context, path string, info certloader.CertificateInfo) error {
	if info.IsExpired && !a.AllowExpired {
		return ErrExpired
	}

	if len(a.AllowedTeamIDs) > 0 && !contains(a.AllowedTeamIDs, info.TeamID, false) {
		return errors.Wrapf(ErrTeamID, "team ID '%s'", info.TeamID)
	}

	if len(a.AllowedSerials) > 0 && !contains(a.AllowedSerials, info.SerialNumber, true) {
		return errors.Wrapf(ErrSerial, "serial '%s'", info.SerialNumber)
	}

	if a.AllowOPAQuery != nil {
		return a.evalPolicy(ctx, path, info)
	}
	return nil
}

func (a ACL) evalPolicy(ctx context.Context, path string, info certloader.CertificateInfo) error {
	if a.OPAQueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.OPAQueryTimeout)
		defer cancel()
	}

	input := map[string]interface{}{
		"path":          path,
		"is_expired":    info.IsExpired,
		"serial_number": info.SerialNumber,
		"team_id":       info.TeamID,
	}

	allowed, err := policy.Allow(ctx, a.AllowOPAQuery, input)
	if err != nil {
		return errors.Wrap(err, "unable to evaluate policy")
	}
	if !allowed {
		return ErrPolicy
	}
	return nil
}

func contains(list []string, value string, foldCase bool) bool {
	for _, item := range list {
		if item == value || (foldCase && strings.EqualFold(item, value)) {
			return true
		}
	}
	return false
}

func (a ACL) printf(format string, v ...interface{}) {
	if a.Logger != nil {
		a.Logger.Printf(format, v...)
	}
}
