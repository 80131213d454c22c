package constants

import "time"

// Retry delays used by the event handlers.
const (
	// RetrySidecarNotConfigured is used while a new pod's sidecar has not
	// yet set the "configured" readiness gate.
	RetrySidecarNotConfigured = 10 * time.Second

	// RetryClusterNotReady is used by the backup-schedule handler while the
	// cluster waits for its first instance to come up.
	RetryClusterNotReady = 10 * time.Second

	// RetryUnreachableMembers is used when a status probe reports UNKNOWN,
	// i.e. the group has unreachable members.
	RetryUnreachableMembers = 15 * time.Second

	// RequeueSpecInvalid is used after an invalid spec is reported, so that
	// the cluster is re-examined once the user fixes it.
	RequeueSpecInvalid = 30 * time.Second
)

// Probe pacing.
const (
	// ProbeStaleness is how old a status probe result may be before a pod
	// event triggers a fresh probe.
	ProbeStaleness = 30 * time.Second

	// MonitorPollInterval is the baseline poll interval of the group
	// membership monitor.
	MonitorPollInterval = 5 * time.Second
)
