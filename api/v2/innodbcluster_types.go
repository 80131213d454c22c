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
	corev1 "k8s.io/api/core/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// InnoDBClusterFinalizer is the finalizer used to ensure dependent
	// workloads are scaled down before an InnoDBCluster is fully deleted.
	InnoDBClusterFinalizer = "mysql.oracle.com/cluster-finalizer"

	// MemberFinalizer is placed on server pods by the sidecar once the pod
	// joins the group, and removed by the operator after the member has been
	// taken out of the group (or when the owning cluster no longer exists).
	MemberFinalizer = "mysql.oracle.com/membership"
)

// ClusterDiagStatus is the aggregate health of the InnoDB Cluster group as
// computed by the diagnostics probe.
// +kubebuilder:validation:Enum=PENDING;INITIALIZING;ONLINE;ONLINE_PARTIAL;ONLINE_UNCERTAIN;OFFLINE;OFFLINE_UNCERTAIN;NO_QUORUM;NO_QUORUM_UNCERTAIN;SPLIT_BRAIN;SPLIT_BRAIN_UNCERTAIN;UNKNOWN;INVALID;FINALIZING
type ClusterDiagStatus string

const (
	// ClusterStatusPending means dependent resources were created but no
	// server instance has come up yet.
	ClusterStatusPending ClusterDiagStatus = "PENDING"
	// ClusterStatusInitializing means the seed instance is being prepared.
	ClusterStatusInitializing ClusterDiagStatus = "INITIALIZING"
	// ClusterStatusOnline means the group has quorum and all expected
	// members are ONLINE.
	ClusterStatusOnline ClusterDiagStatus = "ONLINE"
	// ClusterStatusOnlinePartial means the group has quorum but one or more
	// expected members are missing or not ONLINE.
	ClusterStatusOnlinePartial ClusterDiagStatus = "ONLINE_PARTIAL"
	// ClusterStatusOnlineUncertain means the group appears ONLINE but some
	// members could not be reached to confirm.
	ClusterStatusOnlineUncertain ClusterDiagStatus = "ONLINE_UNCERTAIN"
	// ClusterStatusOffline means all reachable members report OFFLINE.
	ClusterStatusOffline ClusterDiagStatus = "OFFLINE"
	// ClusterStatusOfflineUncertain means the cluster looks OFFLINE but not
	// all members could be reached.
	ClusterStatusOfflineUncertain ClusterDiagStatus = "OFFLINE_UNCERTAIN"
	// ClusterStatusNoQuorum means reachable members form no quorum.
	ClusterStatusNoQuorum ClusterDiagStatus = "NO_QUORUM"
	// ClusterStatusNoQuorumUncertain means quorum loss is suspected but not
	// all members could be reached.
	ClusterStatusNoQuorumUncertain ClusterDiagStatus = "NO_QUORUM_UNCERTAIN"
	// ClusterStatusSplitBrain means more than one partition claims to be the
	// group.
	ClusterStatusSplitBrain ClusterDiagStatus = "SPLIT_BRAIN"
	// ClusterStatusSplitBrainUncertain means a split is suspected but not
	// all members could be reached.
	ClusterStatusSplitBrainUncertain ClusterDiagStatus = "SPLIT_BRAIN_UNCERTAIN"
	// ClusterStatusUnknown means no member could be reached at all.
	ClusterStatusUnknown ClusterDiagStatus = "UNKNOWN"
	// ClusterStatusInvalid means the observed topology is inconsistent with
	// the declared spec in a way the operator cannot repair.
	ClusterStatusInvalid ClusterDiagStatus = "INVALID"
	// ClusterStatusFinalizing means the cluster is being deleted.
	ClusterStatusFinalizing ClusterDiagStatus = "FINALIZING"
)

// ClusterConditionType identifies a specific aspect of cluster lifecycle.
type ClusterConditionType string

const (
	// ConditionResourcesCreated indicates all dependent objects exist.
	ConditionResourcesCreated ClusterConditionType = "ResourcesCreated"
	// ConditionAvailable indicates the group is ONLINE with quorum.
	ConditionAvailable ClusterConditionType = "Available"
)

// RouterSpec configures the MySQL Router tier fronting the cluster.
type RouterSpec struct {
	// Instances is the desired number of router pods.
	// +kubebuilder:validation:Minimum=0
	// +optional
	Instances int32 `json:"instances,omitempty"`
	// Version overrides the router image version; defaults to the server
	// version when empty.
	// +optional
	Version string `json:"version,omitempty"`
}

// BackupProfile names a reusable backup method configuration referenced by
// backup schedules.
type BackupProfile struct {
	// Name is the profile identifier referenced from backupSchedules.
	// +kubebuilder:validation:MinLength=1
	Name string `json:"name"`
	// DumpInstance selects a logical dump produced by MySQL Shell.
	// +optional
	DumpInstance *DumpInstanceProfile `json:"dumpInstance,omitempty"`
}

// DumpInstanceProfile configures a MySQL Shell dump based backup method.
type DumpInstanceProfile struct {
	// Storage configures where dump artifacts are written.
	Storage BackupStorage `json:"storage"`
	// Options contains dump options passed through to the dump utility.
	// The structure depends on the shell version in use.
	// +optional
	Options *apiextensionsv1.JSON `json:"options,omitempty"`
}

// BackupStorage selects the storage backend for backup artifacts.
type BackupStorage struct {
	// PersistentVolumeClaim mounts an existing claim into the backup job.
	// +optional
	PersistentVolumeClaim *corev1.PersistentVolumeClaimVolumeSource `json:"persistentVolumeClaim,omitempty"`
	// SecretName optionally references a Secret with object storage
	// credentials when dumping to a remote bucket.
	// +optional
	SecretName string `json:"secretName,omitempty"`
	// Prefix is an optional path prefix within the storage destination.
	// +optional
	Prefix string `json:"prefix,omitempty"`
}

// BackupScheduleSpec defines one scheduled backup of the cluster.
type BackupScheduleSpec struct {
	// Name identifies the schedule; the backup CronJob is named after it.
	// +kubebuilder:validation:MinLength=1
	Name string `json:"name"`
	// Schedule is a standard 5-field cron expression.
	// +kubebuilder:validation:MinLength=1
	Schedule string `json:"schedule"`
	// BackupProfileName references an entry in spec.backupProfiles.
	// +kubebuilder:validation:MinLength=1
	BackupProfileName string `json:"backupProfileName"`
	// Enabled suspends the schedule when false.
	// +kubebuilder:default=true
	// +optional
	Enabled bool `json:"enabled,omitempty"`
	// DeleteBackupData controls whether artifacts are removed when the
	// schedule is removed from the spec.
	// +optional
	DeleteBackupData bool `json:"deleteBackupData,omitempty"`
}

// InnoDBClusterSpec defines the desired state of an InnoDBCluster.
type InnoDBClusterSpec struct {
	// SecretName references the Secret holding root account credentials
	// used to bootstrap the cluster.
	// +kubebuilder:validation:MinLength=1
	SecretName string `json:"secretName"`
	// Instances is the desired number of MySQL server pods.
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=9
	// +kubebuilder:default=1
	Instances int32 `json:"instances"`
	// Version is the MySQL server version, for example "8.0.35". When set
	// it selects the image tag; version changes trigger a rolling upgrade.
	// +optional
	Version string `json:"version,omitempty"`
	// Image overrides the full server image reference. Takes precedence
	// over Version/ImageRepository when set.
	// +optional
	Image string `json:"image,omitempty"`
	// ImageRepository is the registry prefix for server, router and sidecar
	// images, for example "mysql" or "registry.example.com/mysql".
	// +optional
	ImageRepository string `json:"imageRepository,omitempty"`
	// ImagePullPolicy applies to all containers managed for this cluster.
	// +optional
	ImagePullPolicy corev1.PullPolicy `json:"imagePullPolicy,omitempty"`
	// BaseServerID is the base value from which per-instance server_id
	// values are derived (ordinal is added to it).
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=4000000000
	// +kubebuilder:default=1000
	// +optional
	BaseServerID uint32 `json:"baseServerId,omitempty"`
	// Router configures the MySQL Router tier.
	// +optional
	Router RouterSpec `json:"router,omitempty"`
	// BackupProfiles declares reusable backup method configurations.
	// +optional
	BackupProfiles []BackupProfile `json:"backupProfiles,omitempty"`
	// BackupSchedules declares scheduled backups referencing the profiles.
	// Schedule objects are created only after the first instance is up.
	// +optional
	BackupSchedules []BackupScheduleSpec `json:"backupSchedules,omitempty"`
}

// ClusterStatus is the probed state of the replication group.
type ClusterStatus struct {
	// Status is the aggregate health computed by the diagnostics probe.
	// +optional
	Status ClusterDiagStatus `json:"status,omitempty"`
	// OnlineInstances is the number of members currently ONLINE.
	// +optional
	OnlineInstances int32 `json:"onlineInstances,omitempty"`
	// LastProbeTime is when the diagnostics probe last ran.
	// +optional
	LastProbeTime *metav1.Time `json:"lastProbeTime,omitempty"`
}

// InnoDBClusterStatus defines the observed state of an InnoDBCluster.
type InnoDBClusterStatus struct {
	// Cluster is the probed state of the replication group.
	// +optional
	Cluster ClusterStatus `json:"cluster,omitempty"`
	// OperatorVersion is the operator release that created this cluster's
	// dependent resources.
	// +optional
	OperatorVersion string `json:"operatorVersion,omitempty"`
	// Conditions represent the current state of the InnoDBCluster resource.
	// +listType=map
	// +listMapKey=type
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:path=innodbclusters,scope=Namespaced,shortName=ic;ics
// +kubebuilder:printcolumn:name="Status",type=string,JSONPath=`.status.cluster.status`
// +kubebuilder:printcolumn:name="Online",type=integer,JSONPath=`.status.cluster.onlineInstances`
// +kubebuilder:printcolumn:name="Instances",type=integer,JSONPath=`.spec.instances`
// +kubebuilder:printcolumn:name="Routers",type=integer,JSONPath=`.spec.router.instances`

// InnoDBCluster is the Schema for the innodbclusters API.
type InnoDBCluster struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	// Spec defines the desired state of the InnoDBCluster.
	Spec InnoDBClusterSpec `json:"spec"`

	// Status defines the observed state of the InnoDBCluster.
	// +optional
	Status InnoDBClusterStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// InnoDBClusterList contains a list of InnoDBCluster.
type InnoDBClusterList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata"`
	Items           []InnoDBCluster `json:"items"`
}

func init() {
	SchemeBuilder.Register(&InnoDBCluster{}, &InnoDBClusterList{})
}
