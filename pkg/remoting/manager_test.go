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

package remoting

import (
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mosn.io/bolt/pkg/protocol/bolt"
	mosnsync "mosn.io/bolt/pkg/sync"
)

func TestRegisterProcessorOverride(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := NewProcessorManager(mosnsync.DirectExecutor)
	p1 := NewMockProcessor(ctrl)
	p2 := NewMockProcessor(ctrl)

	m.RegisterProcessor(bolt.CmdCodeRpcRequest, p1)
	p, err := m.GetProcessor(bolt.CmdCodeRpcRequest)
	require.NoError(t, err)
	assert.True(t, p == Processor(p1))

	// last registration wins
	m.RegisterProcessor(bolt.CmdCodeRpcRequest, p2)
	p, err = m.GetProcessor(bolt.CmdCodeRpcRequest)
	require.NoError(t, err)
	assert.True(t, p == Processor(p2))
}

func TestRegisterDefaultProcessorTwice(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := NewProcessorManager(nil)
	first := NewMockProcessor(ctrl)
	require.NoError(t, m.RegisterDefaultProcessor(first))

	err := m.RegisterDefaultProcessor(NewMockProcessor(ctrl))
	assert.True(t, errors.Is(err, ErrDefaultProcessorRegistered))

	p, err := m.GetProcessor(99)
	require.NoError(t, err)
	assert.True(t, p == Processor(first))
}

func TestGetProcessorFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := NewProcessorManager(nil)
	_, err := m.GetProcessor(bolt.CmdCodeHeartbeat)
	assert.True(t, errors.Is(err, ErrNoProcessor))

	specific := NewMockProcessor(ctrl)
	m.RegisterProcessor(bolt.CmdCodeHeartbeat, specific)
	fallback := NewMockProcessor(ctrl)
	require.NoError(t, m.RegisterDefaultProcessor(fallback))

	p, _ := m.GetProcessor(bolt.CmdCodeHeartbeat)
	assert.True(t, p == Processor(specific))
	p, _ = m.GetProcessor(bolt.CmdCodeRpcResponse)
	assert.True(t, p == Processor(fallback))
}

func TestExecutorFor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dedicated, err := mosnsync.NewPoolExecutor("dedicated", 1, 1, 1, 0)
	require.NoError(t, err)
	defer dedicated.Shutdown()
	shared, err := mosnsync.NewPoolExecutor("shared", 1, 1, 1, 0)
	require.NoError(t, err)
	defer shared.Shutdown()

	m := NewProcessorManager(shared)
	p := NewMockProcessor(ctrl)
	assert.Equal(t, mosnsync.Executor(shared), m.ExecutorFor(p))
	assert.Equal(t, mosnsync.Executor(dedicated), m.ExecutorFor(WithExecutor(p, dedicated)))

	// without any executor the task runs inline
	m = NewProcessorManager(nil)
	ran := false
	require.NoError(t, m.ExecutorFor(p).Execute(func() { ran = true }))
	assert.True(t, ran)

	m.RegisterDefaultExecutor(shared)
	assert.Equal(t, mosnsync.Executor(shared), m.DefaultExecutor())
}

func TestConcurrentLookup(t *testing.T) {
	m := NewProcessorManager(nil)
	noop := ProcessorFunc(func(*RemotingContext, bolt.Command) error { return nil })

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.GetProcessor(uint16(j % 16))
			}
		}()
	}
	for code := uint16(0); code < 16; code++ {
		m.RegisterProcessor(code, noop)
	}
	wg.Wait()

	for code := uint16(0); code < 16; code++ {
		_, err := m.GetProcessor(code)
		assert.NoError(t, err)
	}
}
