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
	"context"
	"sync"

	"go.uber.org/atomic"

	"mosn.io/bolt/pkg/protocol/bolt"
)

// InvokeFutures tracks the requests waiting for a response on one connection.
type InvokeFutures struct {
	mutex   sync.Mutex
	futures map[uint32]chan *bolt.Response
	nextId  atomic.Uint32
}

func NewInvokeFutures() *InvokeFutures {
	return &InvokeFutures{
		futures: make(map[uint32]chan *bolt.Response),
	}
}

// NextID returns a fresh request id.
func (f *InvokeFutures) NextID() uint32 {
	return f.nextId.Inc()
}

// Add registers a waiter for id, the channel receives at most one response.
func (f *InvokeFutures) Add(id uint32) <-chan *bolt.Response {
	ch := make(chan *bolt.Response, 1)
	f.mutex.Lock()
	f.futures[id] = ch
	f.mutex.Unlock()
	return ch
}

func (f *InvokeFutures) Remove(id uint32) {
	f.mutex.Lock()
	delete(f.futures, id)
	f.mutex.Unlock()
}

// Complete delivers response to its waiter, false if nobody waits for it.
func (f *InvokeFutures) Complete(response *bolt.Response) bool {
	f.mutex.Lock()
	ch, ok := f.futures[response.RequestId]
	delete(f.futures, response.RequestId)
	f.mutex.Unlock()
	if ok {
		ch <- response
	}
	return ok
}

// Wait blocks until the response for id arrives or ctx is done.
func (f *InvokeFutures) Wait(ctx context.Context, id uint32, ch <-chan *bolt.Response) (*bolt.Response, error) {
	select {
	case response := <-ch:
		return response, nil
	case <-ctx.Done():
		f.Remove(id)
		return nil, ctx.Err()
	}
}

// Pending returns the number of waiters.
func (f *InvokeFutures) Pending() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.futures)
}

// FailAll completes every waiter with a response carrying status.
func (f *InvokeFutures) FailAll(status uint16) {
	f.mutex.Lock()
	futures := f.futures
	f.futures = make(map[uint32]chan *bolt.Response)
	f.mutex.Unlock()

	for id, ch := range futures {
		ch <- bolt.NewRpcResponse(id, status, nil, nil)
	}
}
