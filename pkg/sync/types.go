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
	"errors"
	"time"
)

var (
	ErrExecutorRejected = errors.New("executor saturated, task rejected")
	ErrExecutorShutdown = errors.New("executor shutdown")
)

// Default pool shape for command processing.
const (
	DefaultMinPoolSize  = 20
	DefaultMaxPoolSize  = 400
	DefaultQueueSize    = 600
	DefaultKeepAlive    = 60 * time.Second
	DefaultExecutorName = "bolt-default-executor"
)

// Executor runs tasks asynchronously.
// Execute never blocks: a task that cannot be accepted is rejected with an error.
type Executor interface {
	Execute(task func()) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func()) error

func (f ExecutorFunc) Execute(task func()) error {
	return f(task)
}

// DirectExecutor runs tasks on the calling goroutine.
var DirectExecutor Executor = ExecutorFunc(func(task func()) error {
	task()
	return nil
})
