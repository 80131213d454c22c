package constants

// Common Kubernetes label keys used by the operator.
const (
	LabelAppName      = "app.kubernetes.io/name"
	LabelAppInstance  = "app.kubernetes.io/instance"
	LabelAppManagedBy = "app.kubernetes.io/managed-by"

	// LabelComponent marks server and router pods. Server pods carry the
	// value "mysqld"; the pod controller filters its watch on it.
	LabelComponent = "component"

	// LabelCluster links a dependent object or pod back to its owning
	// InnoDBCluster by name.
	LabelCluster = "mysql.oracle.com/cluster"
)

// Common label values used by the operator.
const (
	LabelValueComponentServer = "mysqld"
	LabelValueComponentRouter = "router"

	LabelValueAppNameMySQL      = "mysql-innodbcluster"
	LabelValueManagedByOperator = "mysql-operator"
)
