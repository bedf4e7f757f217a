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
package cli

import (
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/util"
	"os"
)

// AppPrompt show when no command given
var AppPrompt = fmt.Sprintf(`%[1]s: mysql node bootstrap and replication sidecar.
Usage:
  %[1]s -c <command> [--config <file>]
See complete list of commands:
  %[1]s -c help
Show help for a single command:
  %[1]s help <command>`, constant.WhoAmI)

// HelpCommand show description of given command, or all commands when topic is unknown
func HelpCommand(topic string) {
	if cmd, ok := commandMap[topic]; ok {
		fmt.Fprintf(os.Stderr, "%s (%s):\n\t%s\n", cmd.Command, cmd.Section, cmd.Description)
		return
	}
	fmt.Fprint(os.Stderr, util.CommandUsage(commandMap))
}
