/*
	Copyright 2021 SANGFOR TECHNOLOGIES

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
package dtstruct

import (
	"fmt"
)

// Role is the replication role of a node, derived from its ordinal
type Role string

const (
	RolePrimary Role = "primary"
	RoleReplica Role = "replica"
)

// NodeIdentity is computed once from the process hostname and passed to every bootstrap stage
type NodeIdentity struct {
	Hostname      string // hostname as given, e.g. cluster-mysql-1
	BaseName      string // hostname without ordinal suffix, e.g. cluster-mysql
	Domain        string // governing service domain appended to peer hosts
	Ordinal       int
	Role          Role
	ServerID      int
	SourceOrdinal int // ordinal this node clones from, -1 for primary

	PrimaryHostAddress string
	SourceHostAddress  string
}

// IsPrimary return true if node is the primary of the cluster
func (n NodeIdentity) IsPrimary() bool {
	return n.Role == RolePrimary
}

// PeerHost build the address of the node with given ordinal in the same cluster
func (n NodeIdentity) PeerHost(ordinal int) string {
	if n.Domain == "" {
		return fmt.Sprintf("%s-%d", n.BaseName, ordinal)
	}
	return fmt.Sprintf("%s-%d.%s", n.BaseName, ordinal, n.Domain)
}

// ReportHost is the address this node is known by to its peers
func (n NodeIdentity) ReportHost() string {
	return n.PeerHost(n.Ordinal)
}

func (n NodeIdentity) String() string {
	return fmt.Sprintf("%s(ordinal:%d, role:%s, server-id:%d)", n.Hostname, n.Ordinal, n.Role, n.ServerID)
}
