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
package identity

import (
	"gitee.com/opengauss/mysql-sidecar/go/common"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/system/osp"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"strconv"
	"strings"
)

// Resolve derive node identity from hostname, the ordinal is the integer after the last dash.
// Only the first label of a fully qualified hostname is used.
func Resolve(hostname string, domain string, serverIDOffset int) (dtstruct.NodeIdentity, error) {
	short := strings.SplitN(strings.TrimSpace(hostname), ".", 2)[0]
	match := common.HostnameOrdinalRegexp.FindStringSubmatch(short)
	if match == nil {
		return dtstruct.NodeIdentity{}, &common.MalformedHostnameError{Hostname: hostname}
	}
	ordinal, err := strconv.Atoi(match[2])
	if err != nil {
		// too many digits to be an ordinal
		return dtstruct.NodeIdentity{}, &common.MalformedHostnameError{Hostname: hostname}
	}

	node := dtstruct.NodeIdentity{
		Hostname:      short,
		BaseName:      match[1],
		Domain:        strings.Trim(domain, "."),
		Ordinal:       ordinal,
		Role:          dtstruct.RoleReplica,
		ServerID:      serverIDOffset + ordinal,
		SourceOrdinal: ordinal - 1,
	}
	if ordinal == constant.PrimaryOrdinal {
		node.Role = dtstruct.RolePrimary
		node.SourceOrdinal = -1
	}
	node.PrimaryHostAddress = node.PeerHost(constant.PrimaryOrdinal)
	if !node.IsPrimary() {
		node.SourceHostAddress = node.PeerHost(node.SourceOrdinal)
	}
	return node, nil
}

// ResolveLocal resolve identity of this process, hostname override takes precedence over os hostname
func ResolveLocal(hostnameOverride string, domain string, serverIDOffset int) (dtstruct.NodeIdentity, error) {
	hostname := hostnameOverride
	if hostname == "" {
		var err error
		if hostname, err = osp.GetHostname(); err != nil {
			return dtstruct.NodeIdentity{}, err
		}
	}
	return Resolve(hostname, domain, serverIDOffset)
}
