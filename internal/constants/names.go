package constants

// Resource name suffixes used by the operator when creating per-cluster resources.
const (
	SuffixInitConf      = "-initconf"
	SuffixPrivSecret    = "-privsecrets"
	SuffixRouterSecret  = "-router"
	SuffixBackupSecret  = "-backup"
	SuffixInstances     = "-instances"
	SuffixRouterService = "-router"
	SuffixRouterDeploy  = "-router"
	SuffixPDB           = "-pdb"
)

// Well-known container and gate names on server pods. The sidecar sets the
// "configured" readiness gate once local instance setup completes.
const (
	ContainerNameMySQL   = "mysql"
	ContainerNameSidecar = "sidecar"

	ReadinessGateConfigured = "mysql.oracle.com/configured"
)

// OperatorVersionTag is stamped into status when a cluster's dependent
// resources are first created.
const OperatorVersionTag = "mysql-operator/2.0.5"
