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

package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ghostunnel/certinfo/certloader"
	"github.com/ghostunnel/certinfo/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validInfo = certloader.CertificateInfo{
	IsExpired:    false,
	SerialNumber: "1A2B3C",
	TeamID:       "TEAMID123",
}

var expiredInfo = certloader.CertificateInfo{
	IsExpired:    true,
	SerialNumber: "1A2B3C",
	TeamID:       "TEAMID123",
}

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Printf(format string, v ...interface{}) {
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

func preparePolicy(t *testing.T, module string) policy.Policy {
	t.Helper()
	p, err := policy.Compile(context.Background(), "test.rego", module, "data.policy.allow")
	require.NoError(t, err)
	return p
}

func TestVerifyEmptyACL(t *testing.T) {
	acl := ACL{}
	assert.Nil(t, acl.Verify(context.Background(), "cert.p12", validInfo), "empty ACL should accept valid cert")
	assert.ErrorIs(t, acl.Verify(context.Background(), "cert.p12", expiredInfo), ErrExpired, "empty ACL should reject expired cert")
}

func TestVerifyAllowExpired(t *testing.T) {
	acl := ACL{AllowExpired: true}
	assert.Nil(t, acl.Verify(context.Background(), "cert.p12", expiredInfo), "should accept expired cert when allowed")
}

func TestVerifyTeamID(t *testing.T) {
	acl := ACL{AllowedTeamIDs: []string{"OTHER", "TEAMID123"}}
	assert.Nil(t, acl.Verify(context.Background(), "cert.p12", validInfo), "matching team ID should pass")

	acl = ACL{AllowedTeamIDs: []string{"OTHER", "teamid123"}}
	err := acl.Verify(context.Background(), "cert.p12", validInfo)
	assert.ErrorIs(t, err, ErrTeamID, "team IDs are case-sensitive")
	assert.Contains(t, err.Error(), "TEAMID123")
}

func TestVerifySerial(t *testing.T) {
	acl := ACL{AllowedSerials: []string{"1a2b3c"}}
	assert.Nil(t, acl.Verify(context.Background(), "cert.p12", validInfo), "serials compare case-insensitively")

	acl = ACL{AllowedSerials: []string{"FFFF"}}
	assert.ErrorIs(t, acl.Verify(context.Background(), "cert.p12", validInfo), ErrSerial)
}

func TestVerifyListsAreConjunctive(t *testing.T) {
	acl := ACL{
		AllowedTeamIDs: []string{"TEAMID123"},
		AllowedSerials: []string{"FFFF"},
	}
	assert.ErrorIs(t, acl.Verify(context.Background(), "cert.p12", validInfo), ErrSerial,
		"matching team ID alone should not be enough")
}

func TestVerifyOPAReject(t *testing.T) {
	module := `package policy

default allow := false

allow if {
	input.team_id == "SOMEONE ELSE"
}
`
	acl := ACL{
		AllowOPAQuery:   preparePolicy(t, module),
		OPAQueryTimeout: 10 * time.Second,
	}
	assert.ErrorIs(t, acl.Verify(context.Background(), "cert.p12", validInfo), ErrPolicy, "policy on other team should reject")
}

func TestVerifyOPAAccept(t *testing.T) {
	module := `package policy

default allow := false

allow if {
	input.team_id == "TEAMID123"
	input.serial_number == "1A2B3C"
	endswith(input.path, ".p12")
}
`
	acl := ACL{
		AllowOPAQuery:   preparePolicy(t, module),
		OPAQueryTimeout: 10 * time.Second,
	}
	assert.Nil(t, acl.Verify(context.Background(), "dist.p12", validInfo), "policy on team, serial and path should pass")
	assert.ErrorIs(t, acl.Verify(context.Background(), "dist.pem", validInfo), ErrPolicy)
}

func TestVerifyOPANotReachedForExpired(t *testing.T) {
	module := `package policy

default allow := true
`
	acl := ACL{AllowOPAQuery: preparePolicy(t, module)}
	assert.ErrorIs(t, acl.Verify(context.Background(), "cert.p12", expiredInfo), ErrExpired)
}

func TestVerifyLogs(t *testing.T) {
	logger := &recordingLogger{}
	acl := ACL{AllowedTeamIDs: []string{"TEAMID123"}, Logger: logger}

	_ = acl.Verify(context.Background(), "good.p12", validInfo)
	_ = acl.Verify(context.Background(), "old.p12", expiredInfo)

	require.Len(t, logger.lines, 2)
	assert.Contains(t, logger.lines[0], "accepted good.p12")
	assert.Contains(t, logger.lines[1], "rejected old.p12")
}
