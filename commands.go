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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ghostunnel/certinfo/auth"
	"github.com/ghostunnel/certinfo/certloader"
	"github.com/ghostunnel/certinfo/policy"
	"github.com/pkg/errors"
)

// inspectResult is one line of `inspect --json` output.
type inspectResult struct {
	Path        string                      `json:"path"`
	Info        *certloader.CertificateInfo `json:"info,omitempty"`
	Error       string                      `json:"error,omitempty"`
	Certificate json.RawMessage             `json:"certificate,omitempty"`
}

// inspect loads every path and prints the result. Failures do not stop
// the remaining paths, but make the command fail at the end.
func inspect(out io.Writer, loader *certloader.Loader, paths []string, asJSON, dump bool) error {
	failed := 0
	for _, path := range paths {
		result := inspectResult{Path: path}

		info, err := loader.Load(path)
		if err != nil {
			failed++
			result.Error = err.Error()
		} else {
			result.Info = &info
			if dump {
				result.Certificate, err = dumpCertificate(path)
				if err != nil {
					failed++
					result.Error = err.Error()
				}
			}
		}

		if asJSON {
			raw, err := json.Marshal(result)
			panicOnError(err)
			fmt.Fprintf(out, "%s\n", raw)
			continue
		}

		if result.Info != nil {
			fmt.Fprintf(out, "%s: %s\n", path, result.Info)
		}
		if result.Error != "" {
			fmt.Fprintf(out, "%s: error: %s\n", path, result.Error)
		}
		if result.Certificate != nil {
			fmt.Fprintf(out, "%s\n", result.Certificate)
		}
	}

	if failed > 0 {
		return errors.Errorf("%d of %d certificate(s) could not be inspected", failed, len(paths))
	}
	return nil
}

func dumpCertificate(path string) (json.RawMessage, error) {
	cert, err := certloader.ReadCertificate(path)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(certloader.EncodeJSON(cert)), nil
}

// aclOptions configures the ACL certificates are verified against.
type aclOptions struct {
	teamIDs       []string
	serials       []string
	allowExpired  bool
	policyPath    string
	policyQuery   string
	policyTimeout time.Duration
}

// enabled reports whether any restriction besides expiry was configured.
func (o aclOptions) enabled() bool {
	return len(o.teamIDs) > 0 || len(o.serials) > 0 || o.policyPath != ""
}

func (o aclOptions) acl() (auth.ACL, error) {
	acl := auth.ACL{
		AllowExpired:    o.allowExpired,
		AllowedTeamIDs:  o.teamIDs,
		AllowedSerials:  o.serials,
		OPAQueryTimeout: o.policyTimeout,
		Logger:          logger,
	}

	if o.policyPath != "" {
		p, err := policy.LoadFromFile(o.policyPath, o.policyQuery)
		if err != nil {
			return auth.ACL{}, err
		}
		acl.AllowOPAQuery = p
	}
	return acl, nil
}

// check loads a single certificate and verifies it may be used for signing.
func check(ctx context.Context, out io.Writer, loader *certloader.Loader, path string, opts aclOptions) error {
	acl, err := opts.acl()
	if err != nil {
		return err
	}

	info, err := loader.Load(path)
	if err != nil {
		return err
	}

	if err := acl.Verify(ctx, path, info); err != nil {
		return errors.Wrapf(err, "certificate %s may not be used for signing", path)
	}

	fmt.Fprintf(out, "%s: ok %s\n", path, info)
	return nil
}
