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
package util

import (
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"net"
	"strconv"
	"strings"
)

// CheckPort check if port is between 1 and 65535
func CheckPort(port int) error {
	if port < 1 || port > 65535 {
		return log.Errorf("illegal port: %d, should be between 1 and 65535", port)
	}
	return nil
}

// CheckHostPort check if address is with format host:port, host can be empty for listen address
func CheckHostPort(address string) error {
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return log.Errore(err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return log.Errorf("invalid port in address: %s", address)
	}
	return CheckPort(p)
}

// HasString determine if a string element is in a string array
func HasString(elem string, arr []string) bool {
	for _, s := range arr {
		if s == elem {
			return true
		}
	}
	return false
}

// QuoteLiteral quote value as a sql string literal, escape backslash and single quote
func QuoteLiteral(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return "'" + value + "'"
}

// TrimQuote remove one pair of surrounding single or double quote
func TrimQuote(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		if (value[0] == '\'' && value[len(value)-1] == '\'') || (value[0] == '"' && value[len(value)-1] == '"') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
