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
	"go.uber.org/multierr"

	"mosn.io/bolt/pkg/log"
	"mosn.io/bolt/pkg/protocol/bolt"
)

var (
	ErrNoUserProcessor         = errors.New("no user processor")
	ErrUserProcessorRegistered = errors.New("user processor already registered")
)

// UserProcessor handles the rpc requests whose class name equals Interest.
type UserProcessor interface {
	Interest() string
	HandleRequest(ctx *RemotingContext, request *bolt.Request) (interface{}, error)
}

type userProcessorFunc struct {
	interest string
	handle   func(ctx *RemotingContext, request *bolt.Request) (interface{}, error)
}

func (p *userProcessorFunc) Interest() string {
	return p.interest
}

func (p *userProcessorFunc) HandleRequest(ctx *RemotingContext, request *bolt.Request) (interface{}, error) {
	return p.handle(ctx, request)
}

// UserProcessorFunc builds a UserProcessor from a function.
func UserProcessorFunc(interest string, handle func(ctx *RemotingContext, request *bolt.Request) (interface{}, error)) UserProcessor {
	return &userProcessorFunc{
		interest: interest,
		handle:   handle,
	}
}

// UserProcessorRegistry maps class names to user processors.
type UserProcessorRegistry struct {
	mutex      sync.RWMutex
	processors map[string]UserProcessor
}

func NewUserProcessorRegistry() *UserProcessorRegistry {
	return &UserProcessorRegistry{
		processors: make(map[string]UserProcessor),
	}
}

func (r *UserProcessorRegistry) Register(p UserProcessor) error {
	interest := p.Interest()
	if interest == "" {
		return errors.New("user processor interest is empty")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.processors[interest]; ok {
		return errors.Wrapf(ErrUserProcessorRegistered, "interest %s", interest)
	}
	r.processors[interest] = p
	return nil
}

func (r *UserProcessorRegistry) Get(interest string) (UserProcessor, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	p, ok := r.processors[interest]
	return p, ok
}

// RpcRequestProcessor deserializes requests in stages and routes them to user processors by class name.
type RpcRequestProcessor struct {
	users *UserProcessorRegistry
}

func NewRpcRequestProcessor(users *UserProcessorRegistry) *RpcRequestProcessor {
	if users == nil {
		users = NewUserProcessorRegistry()
	}
	return &RpcRequestProcessor{users: users}
}

func (p *RpcRequestProcessor) Process(ctx *RemotingContext, cmd bolt.Command) error {
	request, ok := cmd.(*bolt.Request)
	if !ok {
		return errors.Errorf("rpc request processor got %s", cmd.Type())
	}

	if ctx.IsRequestTimeout() {
		log.Proxy.Warnf(ctx.Context(), "[remoting] request %d timeout, arrive at %s, timeout %dms, discarded",
			request.RequestId, request.ArriveTime, request.Timeout)
		return nil
	}

	// 1. class only, enough to pick the user processor
	if err := request.Deserialize(bolt.LevelClass); err != nil {
		return p.fail(ctx, request, bolt.ResponseStatusServerDeserialException, err)
	}
	user, ok := p.users.Get(request.ClassName)
	if !ok {
		err := errors.Wrapf(ErrNoUserProcessor, "class %q", request.ClassName)
		return p.fail(ctx, request, bolt.ResponseStatusNoProcessor, err)
	}

	// 2. headers and content
	if err := request.Deserialize(bolt.LevelAll); err != nil {
		return p.fail(ctx, request, bolt.ResponseStatusServerDeserialException, err)
	}

	result, err := user.HandleRequest(ctx, request)
	if err != nil {
		return p.fail(ctx, request, bolt.ResponseStatusServerException, err)
	}
	if request.IsOneway() {
		return nil
	}

	response := ctx.Protocol().Hijack(request, bolt.ResponseStatusSuccess)
	response.Payload = result
	if named, ok := result.(interface{ JavaClassName() string }); ok {
		response.ClassName = named.JavaClassName()
	}
	if err := response.Serialize(); err != nil {
		return p.fail(ctx, request, bolt.ResponseStatusServerSerialException, err)
	}
	return ctx.WriteResponse(response)
}

func (p *RpcRequestProcessor) fail(ctx *RemotingContext, request *bolt.Request, status uint16, cause error) error {
	if request.IsOneway() {
		return cause
	}
	if err := writeFailure(ctx, request, status, cause); err != nil {
		return multierr.Append(cause, err)
	}
	return cause
}

// RpcResponseProcessor completes the invocation waiting for a response.
type RpcResponseProcessor struct {
	futures *InvokeFutures
}

func NewRpcResponseProcessor(futures *InvokeFutures) *RpcResponseProcessor {
	return &RpcResponseProcessor{futures: futures}
}

func (p *RpcResponseProcessor) Process(ctx *RemotingContext, cmd bolt.Command) error {
	response, ok := cmd.(*bolt.Response)
	if !ok {
		return errors.Errorf("rpc response processor got %s", cmd.Type())
	}
	if p.futures == nil || !p.futures.Complete(response) {
		log.Proxy.Warnf(ctx.Context(), "[remoting] no invocation waits for response %d, maybe already timeout", response.RequestId)
	}
	return nil
}

// HeartbeatProcessor acks heartbeat requests and completes heartbeat invocations.
type HeartbeatProcessor struct {
	futures *InvokeFutures
}

func NewHeartbeatProcessor(futures *InvokeFutures) *HeartbeatProcessor {
	return &HeartbeatProcessor{futures: futures}
}

func (p *HeartbeatProcessor) Process(ctx *RemotingContext, cmd bolt.Command) error {
	switch c := cmd.(type) {
	case *bolt.Request:
		if log.Proxy.Enabled(log.DEBUG) {
			log.Proxy.Debugf(ctx.Context(), "[remoting] heartbeat received, request id %d", c.RequestId)
		}
		return ctx.WriteResponse(ctx.Protocol().Reply(c))
	case *bolt.Response:
		if p.futures == nil || !p.futures.Complete(c) {
			log.Proxy.Warnf(ctx.Context(), "[remoting] no invocation waits for heartbeat ack %d", c.RequestId)
		}
	}
	return nil
}
