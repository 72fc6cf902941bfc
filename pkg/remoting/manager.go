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

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"mosn.io/bolt/pkg/log"
	mosnsync "mosn.io/bolt/pkg/sync"
)

var (
	ErrNoProcessor                = errors.New("no processor")
	ErrDefaultProcessorRegistered = errors.New("default processor already registered")
)

// processorTable is an immutable snapshot, writers replace it as a whole.
type processorTable struct {
	processors       map[uint16]Processor
	defaultProcessor Processor
	defaultExecutor  mosnsync.Executor
}

// ProcessorManager maps cmd codes to processors.
// Lookups read a snapshot and never block, registrations copy it.
type ProcessorManager struct {
	mutex sync.Mutex
	table atomic.Value // *processorTable
}

func NewProcessorManager(defaultExecutor mosnsync.Executor) *ProcessorManager {
	m := &ProcessorManager{}
	m.table.Store(&processorTable{
		processors:      make(map[uint16]Processor),
		defaultExecutor: defaultExecutor,
	})
	return m
}

func (m *ProcessorManager) load() *processorTable {
	return m.table.Load().(*processorTable)
}

// update runs f on a copy of the current table and publishes it.
func (m *ProcessorManager) update(f func(t *processorTable) error) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	old := m.load()
	t := &processorTable{
		processors:       make(map[uint16]Processor, len(old.processors)+1),
		defaultProcessor: old.defaultProcessor,
		defaultExecutor:  old.defaultExecutor,
	}
	for code, p := range old.processors {
		t.processors[code] = p
	}
	if err := f(t); err != nil {
		return err
	}
	m.table.Store(t)
	return nil
}

// RegisterProcessor binds p to cmdCode, an existing binding is replaced.
func (m *ProcessorManager) RegisterProcessor(cmdCode uint16, p Processor) {
	m.update(func(t *processorTable) error {
		if _, ok := t.processors[cmdCode]; ok {
			log.DefaultLogger.Warnf("[remoting] processor for cmd code %d already registered, replaced by %T", cmdCode, p)
		}
		t.processors[cmdCode] = p
		return nil
	})
}

// RegisterDefaultProcessor sets the fallback processor, it can only be set once.
func (m *ProcessorManager) RegisterDefaultProcessor(p Processor) error {
	return m.update(func(t *processorTable) error {
		if t.defaultProcessor != nil {
			return errors.Wrapf(ErrDefaultProcessorRegistered, "existing %T", t.defaultProcessor)
		}
		t.defaultProcessor = p
		return nil
	})
}

// GetProcessor returns the processor for cmdCode, else the default processor.
func (m *ProcessorManager) GetProcessor(cmdCode uint16) (Processor, error) {
	t := m.load()
	if p, ok := t.processors[cmdCode]; ok {
		return p, nil
	}
	if t.defaultProcessor != nil {
		return t.defaultProcessor, nil
	}
	return nil, errors.Wrapf(ErrNoProcessor, "cmd code %d", cmdCode)
}

func (m *ProcessorManager) DefaultExecutor() mosnsync.Executor {
	return m.load().defaultExecutor
}

func (m *ProcessorManager) RegisterDefaultExecutor(executor mosnsync.Executor) {
	m.update(func(t *processorTable) error {
		t.defaultExecutor = executor
		return nil
	})
}

// ExecutorFor returns the dedicated executor of p when it has one, else the default executor.
func (m *ProcessorManager) ExecutorFor(p Processor) mosnsync.Executor {
	if provider, ok := p.(ExecutorProvider); ok {
		if executor := provider.Executor(); executor != nil {
			return executor
		}
	}
	if executor := m.DefaultExecutor(); executor != nil {
		return executor
	}
	return mosnsync.DirectExecutor
}
