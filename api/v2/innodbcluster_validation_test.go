/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validSpec() InnoDBClusterSpec {
	return InnoDBClusterSpec{
		SecretName: "mypwds",
		Instances:  3,
		Version:    "8.0.36",
	}
}

func TestValidateAcceptsFullBaseServerIDRange(t *testing.T) {
	spec := validSpec()
	spec.BaseServerID = MaxBaseServerID
	require.NoError(t, spec.Validate())

	spec.BaseServerID = 1
	require.NoError(t, spec.Validate())

	// Unset falls back to the schema default.
	spec.BaseServerID = 0
	require.NoError(t, spec.Validate())
}

func TestValidateRejectsBaseServerIDAboveMax(t *testing.T) {
	spec := validSpec()
	spec.BaseServerID = MaxBaseServerID + 1
	require.ErrorContains(t, spec.Validate(), "baseServerId")
}

func TestValidateRejectsBadInstanceCounts(t *testing.T) {
	spec := validSpec()
	spec.Instances = 0
	require.ErrorContains(t, spec.Validate(), "spec.instances")

	spec = validSpec()
	spec.Instances = MaxInstances + 1
	require.ErrorContains(t, spec.Validate(), "spec.instances")
}

func TestValidateRequiresSecretName(t *testing.T) {
	spec := validSpec()
	spec.SecretName = ""
	require.ErrorContains(t, spec.Validate(), "secretName")
}
