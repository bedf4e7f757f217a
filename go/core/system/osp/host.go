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
package osp

import (
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"os"
)

// GetHostname get current host name
func GetHostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", log.Errorf("cannot resolve self hostname, error:%s", err)
	}
	return hostname, nil
}

// PathExists check if file or directory exists
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
