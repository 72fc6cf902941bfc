/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sync

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"mosn.io/pkg/utils"

	"mosn.io/bolt/pkg/log"
)

// PoolExecutor is a bounded goroutine pool.
//
// Tasks go to a new worker while fewer than minSize workers run, then to the
// queue, then to a new worker while fewer than maxSize run. Anything beyond is
// rejected. Workers above minSize exit after keepAlive without work.
type PoolExecutor struct {
	name      string
	minSize   int32
	maxSize   int32
	keepAlive time.Duration

	queue   chan func()
	stop    chan struct{}
	workers atomic.Int32
	active  atomic.Int32
	closed  atomic.Bool
}

// NewPoolExecutor creates an executor, no worker is started before the first task.
func NewPoolExecutor(name string, minSize, maxSize, queueSize int, keepAlive time.Duration) (*PoolExecutor, error) {
	if minSize < 0 || maxSize <= 0 || minSize > maxSize {
		return nil, fmt.Errorf("invalid pool size, min %d, max %d", minSize, maxSize)
	}
	if queueSize < 0 {
		return nil, fmt.Errorf("invalid queue size %d", queueSize)
	}
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &PoolExecutor{
		name:      name,
		minSize:   int32(minSize),
		maxSize:   int32(maxSize),
		keepAlive: keepAlive,
		queue:     make(chan func(), queueSize),
		stop:      make(chan struct{}),
	}, nil
}

// NewDefaultExecutor creates the executor shared by all connections.
func NewDefaultExecutor() *PoolExecutor {
	p, _ := NewPoolExecutor(DefaultExecutorName, DefaultMinPoolSize, DefaultMaxPoolSize, DefaultQueueSize, DefaultKeepAlive)
	return p
}

func (p *PoolExecutor) Name() string {
	return p.name
}

func (p *PoolExecutor) Execute(task func()) error {
	if p.closed.Load() {
		return errors.Wrapf(ErrExecutorShutdown, "executor %s", p.name)
	}

	if p.addWorker(p.minSize, task) {
		return nil
	}

	select {
	case p.queue <- task:
		// a queued task needs at least one worker
		if p.workers.Load() == 0 {
			p.addWorker(p.maxSize, nil)
		}
		return nil
	default:
	}

	if p.addWorker(p.maxSize, task) {
		return nil
	}

	if log.DefaultLogger.GetLogLevel() >= log.WARN {
		log.DefaultLogger.Warnf("[sync] executor %s rejected task, workers %d, queued %d", p.name, p.workers.Load(), len(p.queue))
	}
	return errors.Wrapf(ErrExecutorRejected, "executor %s", p.name)
}

// Shutdown stops accepting tasks. Queued tasks still run before the workers exit.
func (p *PoolExecutor) Shutdown() {
	if p.closed.CAS(false, true) {
		close(p.stop)
	}
}

// Workers returns the number of running workers.
func (p *PoolExecutor) Workers() int {
	return int(p.workers.Load())
}

// Active returns the number of workers running a task.
func (p *PoolExecutor) Active() int {
	return int(p.active.Load())
}

// QueueLen returns the number of tasks waiting for a worker.
func (p *PoolExecutor) QueueLen() int {
	return len(p.queue)
}

func (p *PoolExecutor) addWorker(limit int32, task func()) bool {
	for {
		n := p.workers.Load()
		if n >= limit {
			return false
		}
		if p.workers.CAS(n, n+1) {
			utils.GoWithRecover(func() {
				p.work(task)
			}, func(r interface{}) {
				p.workers.Dec()
			})
			return true
		}
	}
}

// retire gives up one worker slot unless the pool is at its core size.
func (p *PoolExecutor) retire() bool {
	for {
		n := p.workers.Load()
		if n <= p.minSize {
			return false
		}
		if p.workers.CAS(n, n-1) {
			return true
		}
	}
}

// idleExit retires an idle worker. A task queued while the last worker was
// retiring saw a live worker in Execute, so it gets a fresh one here.
func (p *PoolExecutor) idleExit() bool {
	if !p.retire() {
		return false
	}
	if len(p.queue) > 0 {
		p.addWorker(p.maxSize, nil)
	}
	return true
}

func (p *PoolExecutor) work(task func()) {
	idle := time.NewTimer(p.keepAlive)
	defer idle.Stop()

	for {
		if task != nil {
			p.run(task)
			task = nil
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(p.keepAlive)

		select {
		case task = <-p.queue:
		case <-idle.C:
			if p.idleExit() {
				return
			}
		case <-p.stop:
			p.drain()
			p.workers.Dec()
			return
		}
	}
}

func (p *PoolExecutor) drain() {
	for {
		select {
		case task := <-p.queue:
			p.run(task)
		default:
			return
		}
	}
}

func (p *PoolExecutor) run(task func()) {
	p.active.Inc()
	defer func() {
		p.active.Dec()
		if r := recover(); r != nil {
			log.DefaultLogger.Alertf(log.ErrorKeyExecutor, "[sync] executor %s task panic %v\n%s", p.name, r, string(debug.Stack()))
		}
	}()
	task()
}
