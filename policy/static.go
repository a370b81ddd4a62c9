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

package policy

import (
	"context"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/pkg/errors"
)

type staticPolicy struct {
	query rego.PreparedEvalQuery
}

// Compile prepares query against an in-memory rego module. The returned
// policy has no backing file, Reload keeps the compiled query.
func Compile(ctx context.Context, name, module, query string) (Policy, error) {
	peq, err := prepare(ctx, name, module, query)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to compile policy '%s'", name)
	}
	return &staticPolicy{query: peq}, nil
}

func prepare(ctx context.Context, name, module, query string) (rego.PreparedEvalQuery, error) {
	return rego.New(
		rego.Query(query),
		rego.Module(name, module),
	).PrepareForEval(ctx)
}

func (s *staticPolicy) Reload() error {
	return nil
}

func (s *staticPolicy) Eval(ctx context.Context, options ...rego.EvalOption) (rego.ResultSet, error) {
	return s.query.Eval(ctx, options...)
}
