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

package network

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"mosn.io/pkg/buffer"
	"mosn.io/pkg/utils"

	"mosn.io/bolt/pkg/config"
	mosnctx "mosn.io/bolt/pkg/context"
	"mosn.io/bolt/pkg/log"
	"mosn.io/bolt/pkg/metrics"
	"mosn.io/bolt/pkg/protocol/bolt"
	"mosn.io/bolt/pkg/remoting"
	mosnsync "mosn.io/bolt/pkg/sync"
)

const (
	DefaultReadBufferSize = 16 * 1024
	DefaultWriteTimeout   = 15 * time.Second
)

var (
	ErrConnectionHasClosed = errors.New("connection has closed")

	idCounter atomic.Uint64
)

// ConnConfig holds the per connection settings.
type ConnConfig struct {
	// ProtocolVersion forces the framing version of every written command,
	// zero keeps the version carried by the command itself.
	ProtocolVersion byte
	Switch          bolt.ProtocolSwitch
	Codec           byte
	ReadBufferSize  int
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	WriteTimeout    time.Duration
}

// ServerConnConfig builds the settings of accepted connections, responses mirror the request framing.
func ServerConnConfig(cfg *config.Config) ConnConfig {
	return ConnConfig{
		Switch:         cfg.SwitchCode(),
		Codec:          cfg.SerializerCode(),
		ReadBufferSize: int(cfg.Server.ReadBufferSize.Bytes()),
		IdleTimeout:    cfg.Server.IdleTimeout.Duration,
	}
}

// ClientConnConfig builds the settings of dialed connections.
func ClientConnConfig(cfg *config.Config) ConnConfig {
	c := ServerConnConfig(cfg)
	c.ProtocolVersion = cfg.Protocol.Version
	c.IdleTimeout = 0
	return c
}

// Conn drives one bolt connection: a single read loop decodes frames and hands
// them to the command handler in arrival order, writes are serialized.
type Conn struct {
	id       uint64
	rawc     net.Conn
	cfg      ConnConfig
	ctx      context.Context
	handler  *remoting.CommandHandler
	futures  *remoting.InvokeFutures
	protocol *bolt.Protocol
	stats    *metrics.CodecStats
	idle     *idleChecker

	readBuffer buffer.IoBuffer
	scratch    []byte
	writeMutex sync.Mutex

	closed         atomic.Bool
	stopChan       chan struct{}
	closeCallbacks []func(c *Conn)
}

// NewConn wraps rawc, futures may be nil for connections that never invoke.
func NewConn(rawc net.Conn, handler *remoting.CommandHandler, futures *remoting.InvokeFutures, cfg ConnConfig) *Conn {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = buffer.ConnReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Codec == 0 {
		cfg.Codec = bolt.Hessian2Serialize
	}

	c := &Conn{
		id:         idCounter.Inc(),
		rawc:       rawc,
		cfg:        cfg,
		handler:    handler,
		futures:    futures,
		protocol:   handler.Protocol(),
		stats:      metrics.NewCodecStats(string(bolt.ProtocolName)),
		readBuffer: buffer.GetIoBuffer(cfg.ReadBufferSize),
		scratch:    make([]byte, cfg.ReadBufferSize),
		stopChan:   make(chan struct{}),
	}
	c.idle = newIdleChecker(c, cfg.ReadTimeout, cfg.IdleTimeout)

	ctx := mosnctx.WithValue(context.Background(), mosnctx.ContextKeyConnectionID, c.id)
	ctx = mosnctx.WithValue(ctx, mosnctx.ContextKeyRemoteAddr, rawc.RemoteAddr())
	if cfg.ProtocolVersion != 0 {
		ctx = bolt.WithProtocolVersion(ctx, cfg.ProtocolVersion)
	}
	c.ctx = ctx
	return c
}

// NewClientConn wraps rawc with a handler that answers heartbeats and completes invocations.
func NewClientConn(rawc net.Conn, cfg ConnConfig) *Conn {
	futures := remoting.NewInvokeFutures()
	manager := remoting.NewProcessorManager(mosnsync.DirectExecutor)
	handler := remoting.NewRpcCommandHandler(manager, nil, futures)
	return NewConn(rawc, handler, futures, cfg)
}

// Dial connects to address and starts the read loop.
func Dial(ctx context.Context, address string, cfg ConnConfig) (*Conn, error) {
	var dialer net.Dialer
	rawc, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", address)
	}
	c := NewClientConn(rawc, cfg)
	c.Start()
	return c, nil
}

func (c *Conn) ID() uint64 {
	return c.id
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.rawc.RemoteAddr()
}

func (c *Conn) LocalAddr() net.Addr {
	return c.rawc.LocalAddr()
}

func (c *Conn) Context() context.Context {
	return c.ctx
}

// AddCloseCallback must be called before Start.
func (c *Conn) AddCloseCallback(cb func(c *Conn)) {
	c.closeCallbacks = append(c.closeCallbacks, cb)
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.stopChan
}

func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Start runs the read loop in a new goroutine.
func (c *Conn) Start() {
	utils.GoWithRecover(c.readLoop, func(r interface{}) {
		log.Proxy.Alertf(c.ctx, log.ErrorKeyCodec, "[network] [read loop] panic %v", r)
		c.Close()
	})
}

func (c *Conn) readLoop() {
	defer c.Close()
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		c.rawc.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		n, err := c.rawc.Read(c.scratch)
		if n > 0 {
			c.readBuffer.Write(c.scratch[:n])
			c.idle.onRead()
			if !c.onRead() {
				return
			}
		}
		if err == nil {
			continue
		}
		if c.closed.Load() {
			return
		}
		if te, ok := err.(net.Error); ok && te.Timeout() {
			if n == 0 && c.idle.onReadTimeout() {
				log.Proxy.Infof(c.ctx, "[network] [read loop] close idle connection")
				return
			}
			continue
		}
		if err == io.EOF {
			if log.Proxy.Enabled(log.DEBUG) {
				log.Proxy.Debugf(c.ctx, "[network] [read loop] remote closed")
			}
		} else {
			log.Proxy.Errorf(c.ctx, "[network] [read loop] error on read: %v", err)
		}
		return
	}
}

// onRead decodes every complete frame and dispatches them, false closes the connection.
func (c *Conn) onRead() bool {
	cmds, err := c.protocol.Decode(c.ctx, c.readBuffer)
	if len(cmds) > 0 {
		c.stats.FramesDecoded.Inc(int64(len(cmds)))
		if herr := c.handler.HandleCommands(c.ctx, c, cmds); herr != nil {
			if log.Proxy.Enabled(log.DEBUG) {
				log.Proxy.Debugf(c.ctx, "[network] dispatch failed: %v", herr)
			}
		}
	}
	if err != nil {
		c.stats.DecodeErrors.Inc(1)
		if errors.Is(err, bolt.ErrCrcCheck) {
			c.stats.CrcFailures.Inc(1)
		}
		log.Proxy.Alertf(c.ctx, log.ErrorKeyCodec, "[network] decode failed, close connection: %v", err)
		return false
	}
	return true
}

// Write sends buf as a whole, concurrent writers never interleave.
func (c *Conn) Write(buf buffer.IoBuffer) error {
	if c.closed.Load() {
		return ErrConnectionHasClosed
	}
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	c.rawc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	for buf.Len() > 0 {
		if _, err := buf.WriteTo(c.rawc); err != nil {
			c.stats.EncodeErrors.Inc(1)
			log.Proxy.Errorf(c.ctx, "[network] write failed: %v", err)
			return errors.Wrap(err, "write")
		}
	}
	c.stats.FramesEncoded.Inc(1)
	return nil
}

// Send encodes cmd with the connection framing and writes it. Requests whose
// switch is still zero take the connection switch, a caller-set switch is kept.
func (c *Conn) Send(cmd bolt.Command) error {
	if request, ok := cmd.(*bolt.Request); ok && request.Switch == 0 {
		request.Switch = c.cfg.Switch
	}
	buf, err := c.protocol.Encode(c.ctx, cmd)
	if err != nil {
		c.stats.EncodeErrors.Inc(1)
		return err
	}
	return c.Write(buf)
}

// Invoke sends request with a fresh id and waits for its response until ctx is done.
func (c *Conn) Invoke(ctx context.Context, request *bolt.Request) (*bolt.Response, error) {
	if c.futures == nil {
		return nil, errors.New("connection can not invoke")
	}
	id := c.futures.NextID()
	request.SetRequestId(id)
	if deadline, ok := ctx.Deadline(); ok && request.Timeout <= 0 {
		request.Timeout = int32(time.Until(deadline) / time.Millisecond)
	}

	ch := c.futures.Add(id)
	if err := c.Send(request); err != nil {
		c.futures.Remove(id)
		return nil, err
	}
	return c.futures.Wait(ctx, id, ch)
}

// InvokeObject serializes payload under className with the connection codec and invokes it.
func (c *Conn) InvokeObject(ctx context.Context, className string, headers map[string]string, payload interface{}) (*bolt.Response, error) {
	request := bolt.NewRpcRequest(0, headers, nil)
	request.Codec = c.cfg.Codec
	request.ClassName = className
	request.Payload = payload
	if err := request.Serialize(); err != nil {
		return nil, err
	}
	response, err := c.Invoke(ctx, request)
	if err != nil {
		return nil, err
	}
	if err := response.Deserialize(bolt.LevelAll); err != nil {
		return response, err
	}
	return response, nil
}

// Oneway sends request without waiting for anything.
func (c *Conn) Oneway(request *bolt.Request) error {
	request.CmdType = bolt.CmdTypeRequestOneway
	if c.futures != nil {
		request.SetRequestId(c.futures.NextID())
	}
	return c.Send(request)
}

// Heartbeat sends a heartbeat and waits for the ack.
func (c *Conn) Heartbeat(ctx context.Context) (*bolt.Response, error) {
	if c.futures == nil {
		return nil, errors.New("connection can not invoke")
	}
	id := c.futures.NextID()
	ch := c.futures.Add(id)
	if err := c.Send(c.protocol.Trigger(id)); err != nil {
		c.futures.Remove(id)
		return nil, err
	}
	return c.futures.Wait(ctx, id, ch)
}

// Close closes the raw connection and fails every pending invocation.
func (c *Conn) Close() error {
	if !c.closed.CAS(false, true) {
		return nil
	}
	close(c.stopChan)
	err := c.rawc.Close()

	if c.futures != nil {
		c.futures.FailAll(bolt.ResponseStatusConnectionClosed)
	}
	for _, cb := range c.closeCallbacks {
		cb(c)
	}
	if log.Proxy.Enabled(log.DEBUG) {
		log.Proxy.Debugf(c.ctx, "[network] connection closed")
	}
	return err
}
