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
package replication

import (
	"context"
	"gitee.com/opengauss/mysql-sidecar/go/common"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/db"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/metric"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"gitee.com/opengauss/mysql-sidecar/go/util"
	"gitee.com/opengauss/mysql-sidecar/go/util/sqlutil"
	"github.com/looplab/fsm"
	"time"
)

// states of configurator
const (
	StateWaitReady        = "wait_ready"
	StateConfigurePrimary = "configure_primary"
	StateConfigureReplica = "configure_replica"
	StateSkip             = "skip"
	StateDone             = "done"
)

// events of configurator
const (
	EventPrimaryReady   = "primary_ready"
	EventReplicaReady   = "replica_ready"
	EventPositionAbsent = "position_absent"
	EventFinish         = "finish"
)

// Configurator wait for local instance then wire up primary grants or replica replication.
// Every statement is safe to re-issue, a failed run is retried by restarting the process.
type Configurator struct {
	Client       dtstruct.InstanceClient
	User         string // replication account
	Password     string
	PrimaryPort  int
	ConnectRetry int // seconds between reconnect attempts of replica io thread
	PollInterval time.Duration
	ReadyTimeout time.Duration // zero waits until process is killed

	machine *fsm.FSM
}

// NewConfigurator create configurator with default port, retry and poll interval
func NewConfigurator(client dtstruct.InstanceClient, user string, password string) *Configurator {
	return &Configurator{
		Client:       client,
		User:         user,
		Password:     password,
		PrimaryPort:  constant.MySQLPort,
		ConnectRetry: constant.MySQLMasterConnectRetry,
		PollInterval: constant.ReadinessPollInterval * time.Millisecond,
	}
}

// State return current state of the last run
func (c *Configurator) State() string {
	if c.machine == nil {
		return StateWaitReady
	}
	return c.machine.Current()
}

// Run configure replication of node from position, position is ignored on primary
func (c *Configurator) Run(ctx context.Context, node dtstruct.NodeIdentity, position dtstruct.ReplicationPosition) (err error) {
	c.machine = fsm.NewFSM(
		StateWaitReady,
		fsm.Events{
			{Name: EventPrimaryReady, Src: []string{StateWaitReady}, Dst: StateConfigurePrimary},
			{Name: EventReplicaReady, Src: []string{StateWaitReady}, Dst: StateConfigureReplica},
			{Name: EventPositionAbsent, Src: []string{StateWaitReady}, Dst: StateSkip},
			{Name: EventFinish, Src: []string{StateConfigurePrimary, StateConfigureReplica, StateSkip}, Dst: StateDone},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug("%s: replication configurator %s -> %s", node.Hostname, e.Src, e.Dst)
			},
			"enter_" + StateConfigurePrimary: func(ctx context.Context, e *fsm.Event) {
				e.Err = c.configurePrimary(ctx, node)
			},
			"enter_" + StateConfigureReplica: func(ctx context.Context, e *fsm.Event) {
				e.Err = c.configureReplica(ctx, node, position)
			},
			"enter_" + StateSkip: func(_ context.Context, e *fsm.Event) {
				metric.Inc(constant.MetricReplicationSkip)
				log.Warning("%s: replication position is unknown, keep replication state of data dir as is", node.Hostname)
			},
		},
	)

	defer func() {
		if err != nil {
			metric.Inc(constant.MetricReplicationFail)
			err = log.Errore(err)
		}
	}()

	log.Infof("%s: wait for local instance to be ready", node.Hostname)
	if err = db.WaitForReady(ctx, c.Client, c.PollInterval, c.ReadyTimeout); err != nil {
		return err
	}

	event := EventPrimaryReady
	if !node.IsPrimary() {
		event = EventReplicaReady
		if position.IsUnknown() {
			event = EventPositionAbsent
		}
	}
	if err = c.machine.Event(ctx, event); err != nil {
		return err
	}
	if err = c.machine.Event(ctx, EventFinish); err != nil {
		return err
	}
	metric.Inc(constant.MetricReplicationConfigure)
	log.Infof("%s: replication configured as %s", node.Hostname, node.Role)
	return nil
}

func (c *Configurator) configurePrimary(ctx context.Context, node dtstruct.NodeIdentity) error {
	log.Infof("%s: ensure replication account %s", node.Hostname, c.User)
	if err := c.exec(ctx, writableStatements...); err != nil {
		return err
	}
	if err := c.exec(ctx, replicationUserStatements(c.User, c.Password)...); err != nil {
		return err
	}
	return c.finish(ctx, node)
}

func (c *Configurator) configureReplica(ctx context.Context, node dtstruct.NodeIdentity, position dtstruct.ReplicationPosition) error {
	log.Infof("%s: replicate from %s at %s", node.Hostname, node.PrimaryHostAddress, position)
	if err := c.exec(ctx, writableStatements...); err != nil {
		return err
	}
	if err := c.exec(ctx, changeMasterStatements(node.PrimaryHostAddress, c.PrimaryPort, c.User, c.Password, c.ConnectRetry, position)...); err != nil {
		return err
	}
	if err := c.exec(ctx, startSlave); err != nil {
		log.Warning("%s: start slave failed, retry with reset slave, error:%s", node.Hostname, err)
		if err = c.exec(ctx, startSlaveWorkaround...); err != nil {
			return err
		}
	}
	return c.finish(ctx, node)
}

// finish record completed bootstrap and switch read only mode for role
func (c *Configurator) finish(ctx context.Context, node dtstruct.NodeIdentity) error {
	if err := c.exec(ctx, markDoneStatements(node.Hostname)...); err != nil {
		return err
	}
	return c.exec(ctx, readOnlyStatement(node.Role))
}

// exec run statements in order on the session, password never shows up in log or error
func (c *Configurator) exec(ctx context.Context, statements ...string) error {
	for _, statement := range statements {
		redacted := sqlutil.Redact(statement, util.QuoteLiteral(c.Password), c.Password)
		log.Debug("exec: %s", redacted)
		if err := c.Client.Exec(ctx, statement); err != nil {
			return &common.ReplicationConfigError{Statement: redacted, Cause: err}
		}
	}
	return nil
}
