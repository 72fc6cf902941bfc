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
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestNewPoolExecutorInvalid(t *testing.T) {
	_, err := NewPoolExecutor("t", 5, 2, 1, time.Second)
	assert.Error(t, err)
	_, err = NewPoolExecutor("t", 0, 0, 1, time.Second)
	assert.Error(t, err)
	_, err = NewPoolExecutor("t", 1, 2, -1, time.Second)
	assert.Error(t, err)
}

func TestDefaultExecutor(t *testing.T) {
	p := NewDefaultExecutor()
	defer p.Shutdown()
	assert.Equal(t, DefaultExecutorName, p.Name())
	assert.Equal(t, int32(DefaultMinPoolSize), p.minSize)
	assert.Equal(t, int32(DefaultMaxPoolSize), p.maxSize)
	assert.Equal(t, DefaultQueueSize, cap(p.queue))
	assert.Equal(t, DefaultKeepAlive, p.keepAlive)
}

func TestExecuteRunsTasks(t *testing.T) {
	p, err := NewPoolExecutor("t", 2, 4, 16, time.Second)
	require.NoError(t, err)
	defer p.Shutdown()

	var wg sync.WaitGroup
	counter := atomic.NewInt32(0)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		require.NoError(t, p.Execute(func() {
			counter.Inc()
			wg.Done()
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(16), counter.Load())
	assert.LessOrEqual(t, p.Workers(), 4)
}

func TestExecuteSaturation(t *testing.T) {
	const (
		minSize   = 1
		maxSize   = 3
		queueSize = 2
	)
	p, err := NewPoolExecutor("t", minSize, maxSize, queueSize, time.Second)
	require.NoError(t, err)
	defer p.Shutdown()

	block := make(chan struct{})
	started := make(chan struct{}, maxSize+queueSize)
	task := func() {
		started <- struct{}{}
		<-block
	}

	// core worker, then the queue, then the extra workers
	for i := 0; i < maxSize+queueSize; i++ {
		require.NoError(t, p.Execute(task), "task %d", i)
	}
	for i := 0; i < 3; i++ {
		err := p.Execute(task)
		assert.True(t, errors.Is(err, ErrExecutorRejected))
	}
	assert.Equal(t, maxSize, p.Workers())
	assert.Equal(t, queueSize, p.QueueLen())

	close(block)
	for i := 0; i < maxSize+queueSize; i++ {
		select {
		case <-started:
		case <-time.After(3 * time.Second):
			t.Fatalf("only %d tasks ran", i)
		}
	}
}

func TestExecuteShrinksToCore(t *testing.T) {
	p, err := NewPoolExecutor("t", 1, 3, 0, 50*time.Millisecond)
	require.NoError(t, err)
	defer p.Shutdown()

	block := make(chan struct{})
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Execute(func() { <-block }))
	}
	assert.Equal(t, 3, p.Workers())
	close(block)

	assert.Eventually(t, func() bool {
		return p.Workers() == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestIdleExitKeepsCoreWorkers(t *testing.T) {
	p, err := NewPoolExecutor("t", 1, 2, 1, time.Hour)
	require.NoError(t, err)
	defer p.Shutdown()

	p.workers.Store(1)
	assert.False(t, p.idleExit())
	assert.Equal(t, 1, p.Workers())
}

func TestIdleExitServesQueuedTask(t *testing.T) {
	p, err := NewPoolExecutor("t", 0, 1, 1, time.Hour)
	require.NoError(t, err)
	defer p.Shutdown()

	// the last worker times out while Execute queues a task, having seen it alive
	p.workers.Store(1)
	done := make(chan struct{})
	p.queue <- func() { close(done) }

	assert.True(t, p.idleExit())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued task was not run after the last worker retired")
	}
	assert.Equal(t, 1, p.Workers())
}

func TestExecuteWithoutCoreWorkers(t *testing.T) {
	p, err := NewPoolExecutor("t", 0, 2, 4, 5*time.Millisecond)
	require.NoError(t, err)
	defer p.Shutdown()

	counter := atomic.NewInt32(0)
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Execute(func() { counter.Inc() }))
		time.Sleep(time.Duration(i%7) * time.Millisecond)
	}
	assert.Eventually(t, func() bool {
		return counter.Load() == 50
	}, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return p.Workers() == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestExecuteRecoversPanic(t *testing.T) {
	p, err := NewPoolExecutor("t", 1, 1, 4, time.Second)
	require.NoError(t, err)
	defer p.Shutdown()

	require.NoError(t, p.Execute(func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, p.Execute(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker died with the panicking task")
	}
	assert.Equal(t, 1, p.Workers())
}

func TestShutdown(t *testing.T) {
	p, err := NewPoolExecutor("t", 1, 1, 4, time.Second)
	require.NoError(t, err)

	block := make(chan struct{})
	counter := atomic.NewInt32(0)
	require.NoError(t, p.Execute(func() { <-block }))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Execute(func() { counter.Inc() }))
	}

	p.Shutdown()
	p.Shutdown()
	assert.True(t, errors.Is(p.Execute(func() {}), ErrExecutorShutdown))

	// queued tasks still run
	close(block)
	assert.Eventually(t, func() bool {
		return counter.Load() == 3 && p.Workers() == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDirectExecutor(t *testing.T) {
	ran := false
	require.NoError(t, DirectExecutor.Execute(func() { ran = true }))
	assert.True(t, ran)
}
