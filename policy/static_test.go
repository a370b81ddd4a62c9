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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	p, err := Compile(context.Background(), "team.rego", allowTeamPolicy, "data.policy.allow")
	require.NoError(t, err)
	assert.Nil(t, p.Reload(), "reloading a compiled policy is a no-op")

	assert.True(t, evalAllowed(t, p, map[string]interface{}{"team_id": "TEAMID123", "is_expired": false}))
	assert.False(t, evalAllowed(t, p, map[string]interface{}{"team_id": "OTHER", "is_expired": false}))
	assert.False(t, evalAllowed(t, p, map[string]interface{}{"team_id": "TEAMID123", "is_expired": true}))
}

func TestCompileInvalid(t *testing.T) {
	p, err := Compile(context.Background(), "broken.rego", "package policy\n\nallow if {", "data.policy.allow")
	assert.Nil(t, p)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broken.rego")
}
