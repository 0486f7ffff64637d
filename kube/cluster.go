package kube

import "github.com/trafficflow/tft/types"

// Cluster groups the clients of one deployment. In single mode the tenant and
// infra clients are the same; in dpu mode the infra client talks to the DPU
// side cluster.
type Cluster struct {
	Mode   types.ClusterMode
	Tenant *Client
	Infra  *Client
}

// NewSingleCluster returns a Cluster where every task runs on one cluster.
func NewSingleCluster(tenant *Client) *Cluster {
	return &Cluster{Mode: types.ClusterModeSingle, Tenant: tenant, Infra: tenant}
}

// NewDPUCluster returns a Cluster with a tenant/infra split.
func NewDPUCluster(tenant, infra *Client) *Cluster {
	return &Cluster{Mode: types.ClusterModeDPU, Tenant: tenant, Infra: infra}
}

// Client selects the client a task should use based on its tenancy.
func (c *Cluster) Client(tenant bool) *Client {
	if tenant {
		return c.Tenant
	}
	return c.Infra
}
