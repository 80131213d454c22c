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
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// AnnotationCreateTime records when the first member of the cluster came
	// up. Its absence means the cluster has not finished initial bootstrap;
	// spec-change handlers gate on it.
	AnnotationCreateTime = "mysql.oracle.com/cluster-create-time"

	// AnnotationAppliedSpec stores the last spec the operator acted on, so
	// that per-field change handlers can be dispatched with (old, new)
	// values across reconciles and operator restarts.
	AnnotationAppliedSpec = "mysql.oracle.com/last-applied-spec"

	// DefaultImageRepository is the registry prefix used when
	// spec.imageRepository is empty.
	DefaultImageRepository = "mysql"

	// DefaultServerVersion is the server version used when spec.version is
	// empty.
	DefaultServerVersion = "8.0.36"

	serverImageName = "mysql-server"
	routerImageName = "mysql-router"
)

// CreateTime returns the recorded bootstrap time of the cluster, or nil if
// the first member has not come up yet.
func (c *InnoDBCluster) CreateTime() *metav1.Time {
	v, ok := c.Annotations[AnnotationCreateTime]
	if !ok || v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &metav1.Time{Time: t}
}

// SetCreateTime records the bootstrap time annotation on the object. The
// caller is responsible for persisting the change.
func (c *InnoDBCluster) SetCreateTime(t metav1.Time) {
	if c.Annotations == nil {
		c.Annotations = map[string]string{}
	}
	c.Annotations[AnnotationCreateTime] = t.UTC().Format(time.RFC3339)
}

// Ready reports whether the cluster finished initial bootstrap, i.e. its
// first member was observed up at some point.
func (c *InnoDBCluster) Ready() bool {
	return c.CreateTime() != nil
}

// Deleting reports whether the cluster resource is marked for deletion.
func (c *InnoDBCluster) Deleting() bool {
	return !c.DeletionTimestamp.IsZero()
}

// ServerVersion returns the effective server version.
func (s *InnoDBClusterSpec) ServerVersion() string {
	if s.Version != "" {
		return s.Version
	}
	return DefaultServerVersion
}

// ServerImage resolves the full server image reference from spec.image,
// spec.imageRepository and spec.version, in that order of precedence.
func (s *InnoDBClusterSpec) ServerImage() string {
	if s.Image != "" {
		return s.Image
	}
	repo := s.ImageRepository
	if repo == "" {
		repo = DefaultImageRepository
	}
	return fmt.Sprintf("%s/%s:%s", repo, serverImageName, s.ServerVersion())
}

// RouterImage resolves the router image reference, honoring
// spec.router.version over spec.version.
func (s *InnoDBClusterSpec) RouterImage() string {
	repo := s.ImageRepository
	if repo == "" {
		repo = DefaultImageRepository
	}
	version := s.Router.Version
	if version == "" {
		version = s.ServerVersion()
	}
	return fmt.Sprintf("%s/%s:%s", repo, routerImageName, version)
}

// PullPolicy returns the effective image pull policy.
func (s *InnoDBClusterSpec) PullPolicy() corev1.PullPolicy {
	if s.ImagePullPolicy != "" {
		return s.ImagePullPolicy
	}
	return corev1.PullIfNotPresent
}

// BackupProfileByName returns the named backup profile, or nil.
func (s *InnoDBClusterSpec) BackupProfileByName(name string) *BackupProfile {
	for i := range s.BackupProfiles {
		if s.BackupProfiles[i].Name == name {
			return &s.BackupProfiles[i]
		}
	}
	return nil
}
