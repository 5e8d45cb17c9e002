package common

// Node roles
const (
	RoleController    = "controller"
	RoleCompute       = "compute"
	RoleCinder        = "cinder"
	RoleCephOSD       = "ceph-osd"
	RoleMongo         = "mongo"
	RoleBaseOS        = "base-os"
	RoleZabbixServer  = "zabbix-server"
	RoleVirt          = "virt"
	RoleIronic        = "ironic"
	RolePrimaryPrefix = "primary-"
)

// Cluster and node statuses reported by Nailgun
const (
	ClusterStatusNew         = "new"
	ClusterStatusDeployment  = "deployment"
	ClusterStatusOperational = "operational"
	ClusterStatusError       = "error"

	NodeStatusDiscover     = "discover"
	NodeStatusProvisioning = "provisioning"
	NodeStatusProvisioned  = "provisioned"
	NodeStatusDeploying    = "deploying"
	NodeStatusReady        = "ready"
	NodeStatusError        = "error"
)

// Task statuses
const (
	TaskStatusPending = "pending"
	TaskStatusRunning = "running"
	TaskStatusReady   = "ready"
	TaskStatusError   = "error"
)

// OSTF test sets and result statuses
const (
	OSTFSetSmoke         = "smoke"
	OSTFSetSanity        = "sanity"
	OSTFSetHA            = "ha"
	OSTFSetTestsPlatform = "tests_platform"
	OSTFSetCloudValidate = "cloudvalidation"

	OSTFStatusSuccess = "success"
	OSTFStatusFailure = "failure"
	OSTFStatusError   = "error"
	OSTFStatusSkipped = "skipped"
	OSTFStatusRunning = "running"
	OSTFStatusWaiting = "wait_running"

	OSTFRunFinished = "finished"
)

// Well known snapshots produced by the setup suite and consumed by others.
const (
	SnapshotEmpty        = "empty"
	SnapshotReady        = "ready"
	SnapshotReady3Slaves = "ready_with_3_slaves"
	SnapshotReady5Slaves = "ready_with_5_slaves"
	SnapshotReady9Slaves = "ready_with_9_slaves"
)

const DefaultOSTFTimeoutSecs = 30 * 60
const DefaultSSHPort = 22
const AdminNodeName = "admin"
