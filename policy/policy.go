/*-
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

// Package policy wraps Open Policy Agent queries used to decide whether a
// signing certificate may be used.
package policy

import (
	"context"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Policy is a prepared rego query that decides whether a certificate may
// be used for signing.
type Policy interface {
	// Reload prepares the query again from its source. On failure the
	// previously prepared query stays in use.
	Reload() error

	// Eval runs the prepared query.
	Eval(ctx context.Context, options ...rego.EvalOption) (rego.ResultSet, error)
}

// Allow evaluates p with the given input document and reports whether the
// query result is exactly true.
func Allow(ctx context.Context, p Policy, input interface{}) (bool, error) {
	results, err := p.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, err
	}
	return results.Allowed(), nil
}
