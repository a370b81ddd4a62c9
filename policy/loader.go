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
	"crypto/sha256"
	"os"
	"sync"
	"sync/atomic"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/pkg/errors"
)

type filePolicy struct {
	path  string
	query string

	// Guards digest, Reload may be called from several goroutines
	mu     sync.Mutex
	digest [sha256.Size]byte

	// Last successfully prepared query
	prepared atomic.Pointer[rego.PreparedEvalQuery]
}

// LoadFromFile creates a reloadable policy from a rego file.
func LoadFromFile(policyPath, policyQuery string) (Policy, error) {
	p := &filePolicy{
		path:  policyPath,
		query: policyQuery,
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload reads the policy file again and prepares the query if the file
// changed since the last successful load.
func (p *filePolicy) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	module, err := os.ReadFile(p.path)
	if err != nil {
		return errors.Wrapf(err, "unable to load policy '%s'", p.path)
	}

	digest := sha256.Sum256(module)
	if p.prepared.Load() != nil && digest == p.digest {
		return nil
	}

	peq, err := prepare(context.Background(), p.path, string(module), p.query)
	if err != nil {
		return errors.Wrapf(err, "unable to load policy '%s'", p.path)
	}

	p.prepared.Store(&peq)
	p.digest = digest
	return nil
}

// Eval runs the last successfully prepared query.
func (p *filePolicy) Eval(ctx context.Context, options ...rego.EvalOption) (rego.ResultSet, error) {
	return p.prepared.Load().Eval(ctx, options...)
}
