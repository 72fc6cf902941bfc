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
	"net"
	"time"

	"mosn.io/pkg/buffer"

	"mosn.io/bolt/pkg/protocol/bolt"
	mosnsync "mosn.io/bolt/pkg/sync"
)

// Connection is the write side of a connection as seen by processors.
type Connection interface {
	ID() uint64
	RemoteAddr() net.Addr
	Write(buf buffer.IoBuffer) error
}

// Processor handles the commands registered under one cmd code.
type Processor interface {
	Process(ctx *RemotingContext, cmd bolt.Command) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx *RemotingContext, cmd bolt.Command) error

func (f ProcessorFunc) Process(ctx *RemotingContext, cmd bolt.Command) error {
	return f(ctx, cmd)
}

// ExecutorProvider is implemented by processors owning a dedicated executor.
type ExecutorProvider interface {
	Executor() mosnsync.Executor
}

type executorProcessor struct {
	Processor
	executor mosnsync.Executor
}

func (p *executorProcessor) Executor() mosnsync.Executor {
	return p.executor
}

// WithExecutor binds a dedicated executor to p.
func WithExecutor(p Processor, executor mosnsync.Executor) Processor {
	return &executorProcessor{
		Processor: p,
		executor:  executor,
	}
}

// RemotingContext carries what a processor needs to answer a command.
type RemotingContext struct {
	ctx        context.Context
	conn       Connection
	protocol   *bolt.Protocol
	arriveTime time.Time
	timeout    int32
	oneway     bool
}

func NewRemotingContext(ctx context.Context, conn Connection, protocol *bolt.Protocol, cmd bolt.Command) *RemotingContext {
	rctx := &RemotingContext{
		ctx:      ctx,
		conn:     conn,
		protocol: protocol,
	}
	if request, ok := cmd.(*bolt.Request); ok {
		rctx.arriveTime = request.ArriveTime
		rctx.timeout = request.Timeout
		rctx.oneway = request.IsOneway()
	}
	return rctx
}

func (c *RemotingContext) Context() context.Context {
	return c.ctx
}

func (c *RemotingContext) Connection() Connection {
	return c.conn
}

func (c *RemotingContext) Protocol() *bolt.Protocol {
	return c.protocol
}

func (c *RemotingContext) ArriveTime() time.Time {
	return c.arriveTime
}

// Timeout is the request timeout in milliseconds, zero or negative means none.
func (c *RemotingContext) Timeout() int32 {
	return c.timeout
}

// IsRequestTimeout reports whether the request outlived its timeout while waiting for processing.
func (c *RemotingContext) IsRequestTimeout() bool {
	if c.timeout <= 0 || c.oneway || c.arriveTime.IsZero() {
		return false
	}
	return time.Since(c.arriveTime) > time.Duration(c.timeout)*time.Millisecond
}

// WriteResponse encodes response with the connection framing version and writes it.
func (c *RemotingContext) WriteResponse(response *bolt.Response) error {
	buf, err := c.protocol.Encode(c.ctx, response)
	if err != nil {
		return err
	}
	return c.conn.Write(buf)
}
