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
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	corev1 "k8s.io/api/core/v1"
)

const (
	// MaxInstances is the upper bound Group Replication supports.
	MaxInstances = 9
	// MaxBaseServerID keeps derived server_id values inside the 32-bit
	// range MySQL accepts.
	MaxBaseServerID = 4000000000
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks the spec for values the API schema cannot express. It is
// called by every handler before acting; an error here is reported as an
// InvalidArgument diagnostic on the cluster resource.
func (s *InnoDBClusterSpec) Validate() error {
	if s.SecretName == "" {
		return fmt.Errorf("spec.secretName is required")
	}
	if s.Instances < 1 || s.Instances > MaxInstances {
		return fmt.Errorf("spec.instances must be between 1 and %d, got %d", MaxInstances, s.Instances)
	}
	if s.Router.Instances < 0 {
		return fmt.Errorf("spec.router.instances must not be negative, got %d", s.Router.Instances)
	}
	if s.BaseServerID > MaxBaseServerID {
		return fmt.Errorf("spec.baseServerId must be between 1 and %d, got %d", MaxBaseServerID, s.BaseServerID)
	}
	if err := validateVersion("spec.version", s.Version); err != nil {
		return err
	}
	if err := validateVersion("spec.router.version", s.Router.Version); err != nil {
		return err
	}
	if err := validatePullPolicy(s.ImagePullPolicy); err != nil {
		return err
	}
	if err := s.validateBackups(); err != nil {
		return err
	}
	return nil
}

func validateVersion(field, version string) error {
	if version == "" {
		return nil
	}
	if strings.Count(version, ".") < 1 {
		return fmt.Errorf("%s %q is not a valid server version", field, version)
	}
	return nil
}

func validatePullPolicy(policy corev1.PullPolicy) error {
	switch policy {
	case "", corev1.PullAlways, corev1.PullIfNotPresent, corev1.PullNever:
		return nil
	}
	return fmt.Errorf("spec.imagePullPolicy %q is not a valid pull policy", policy)
}

func (s *InnoDBClusterSpec) validateBackups() error {
	profiles := make(map[string]struct{}, len(s.BackupProfiles))
	for _, p := range s.BackupProfiles {
		if _, dup := profiles[p.Name]; dup {
			return fmt.Errorf("spec.backupProfiles has duplicate profile %q", p.Name)
		}
		profiles[p.Name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(s.BackupSchedules))
	for _, sched := range s.BackupSchedules {
		if _, dup := seen[sched.Name]; dup {
			return fmt.Errorf("spec.backupSchedules has duplicate schedule %q", sched.Name)
		}
		seen[sched.Name] = struct{}{}

		if _, err := scheduleParser.Parse(sched.Schedule); err != nil {
			return fmt.Errorf("spec.backupSchedules[%s].schedule %q is not a valid cron expression: %w", sched.Name, sched.Schedule, err)
		}
		if _, ok := profiles[sched.BackupProfileName]; !ok {
			return fmt.Errorf("spec.backupSchedules[%s] references unknown backup profile %q", sched.Name, sched.BackupProfileName)
		}
	}
	return nil
}
