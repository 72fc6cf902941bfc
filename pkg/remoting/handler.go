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

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"mosn.io/bolt/pkg/log"
	"mosn.io/bolt/pkg/metrics"
	"mosn.io/bolt/pkg/protocol/bolt"
	mosnsync "mosn.io/bolt/pkg/sync"
)

// CommandHandler routes decoded commands to their processors.
type CommandHandler struct {
	manager  *ProcessorManager
	protocol *bolt.Protocol
	stats    *metrics.DispatchStats
}

func NewCommandHandler(manager *ProcessorManager) *CommandHandler {
	return &CommandHandler{
		manager:  manager,
		protocol: bolt.NewProtocol(),
		stats:    metrics.NewDispatchStats(string(bolt.ProtocolName)),
	}
}

// NewRpcCommandHandler registers the heartbeat, rpc request and rpc response processors.
func NewRpcCommandHandler(manager *ProcessorManager, users *UserProcessorRegistry, futures *InvokeFutures) *CommandHandler {
	h := NewCommandHandler(manager)
	manager.RegisterProcessor(bolt.CmdCodeHeartbeat, NewHeartbeatProcessor(futures))
	manager.RegisterProcessor(bolt.CmdCodeRpcRequest, NewRpcRequestProcessor(users))
	manager.RegisterProcessor(bolt.CmdCodeRpcResponse, NewRpcResponseProcessor(futures))
	return h
}

func (h *CommandHandler) Manager() *ProcessorManager {
	return h.manager
}

func (h *CommandHandler) Protocol() *bolt.Protocol {
	return h.protocol
}

// HandleCommands dispatches cmds in arrival order.
// A failed command does not stop the following ones, all errors are returned together.
func (h *CommandHandler) HandleCommands(ctx context.Context, conn Connection, cmds []bolt.Command) error {
	var errs error
	for _, cmd := range cmds {
		errs = multierr.Append(errs, h.HandleCommand(ctx, conn, cmd))
	}
	return errs
}

// HandleCommand hands cmd to its processor on the processor's executor.
// Routing and rejection errors answer requests with a failure response and are returned.
func (h *CommandHandler) HandleCommand(ctx context.Context, conn Connection, cmd bolt.Command) error {
	h.stats.Dispatched.Inc(1)
	header := cmd.GetCommandHeader()

	processor, err := h.manager.GetProcessor(header.CmdCode)
	if err != nil {
		h.stats.NoProcessor.Inc(1)
		log.Proxy.Errorf(ctx, "[remoting] no processor available, cmd code %d, request id %d", header.CmdCode, header.RequestId)
		h.sendFailure(ctx, conn, cmd, err)
		return err
	}

	rctx := NewRemotingContext(ctx, conn, h.protocol, cmd)
	executor := h.manager.ExecutorFor(processor)
	err = executor.Execute(func() {
		if err := processor.Process(rctx, cmd); err != nil {
			log.Proxy.Errorf(ctx, "[remoting] process command failed, cmd code %d, request id %d: %v", header.CmdCode, header.RequestId, err)
		}
	})
	if err != nil {
		h.stats.Rejected.Inc(1)
		log.Proxy.Alertf(ctx, log.ErrorKeyDispatch, "[remoting] executor rejected command, cmd code %d, request id %d: %v", header.CmdCode, header.RequestId, err)
		h.sendFailure(ctx, conn, cmd, err)
		return err
	}
	return nil
}

// sendFailure answers a request that will never reach its processor.
func (h *CommandHandler) sendFailure(ctx context.Context, conn Connection, cmd bolt.Command, cause error) {
	request, ok := cmd.(*bolt.Request)
	if !ok || request.IsOneway() {
		return
	}
	rctx := NewRemotingContext(ctx, conn, h.protocol, cmd)
	if err := writeFailure(rctx, request, StatusMapping(cause), cause); err != nil {
		log.Proxy.Errorf(ctx, "[remoting] send failure response failed, request id %d: %v", request.RequestId, err)
		return
	}
	h.stats.FailureResponses.Inc(1)
}

// writeFailure writes a response with status, the error message is the content when it can be serialized.
func writeFailure(ctx *RemotingContext, request *bolt.Request, status uint16, cause error) error {
	response := ctx.Protocol().Hijack(request, status)
	if cause != nil {
		response.Payload = cause.Error()
		if err := response.SerializeContent(); err != nil {
			response.Payload = nil
		}
	}
	return ctx.WriteResponse(response)
}

// StatusMapping maps an error to the response status reported to the peer.
func StatusMapping(err error) uint16 {
	switch {
	case err == nil:
		return bolt.ResponseStatusSuccess
	case errors.Is(err, ErrNoProcessor), errors.Is(err, ErrNoUserProcessor):
		return bolt.ResponseStatusNoProcessor
	case errors.Is(err, mosnsync.ErrExecutorRejected), errors.Is(err, mosnsync.ErrExecutorShutdown):
		return bolt.ResponseStatusServerThreadpoolBusy
	case bolt.IsFramingError(err):
		return bolt.ResponseStatusCodecException
	}
	var derr *bolt.DeserializationError
	if errors.As(err, &derr) {
		return bolt.ResponseStatusServerDeserialException
	}
	var serr *bolt.SerializationError
	if errors.As(err, &serr) {
		return bolt.ResponseStatusServerSerialException
	}
	return bolt.ResponseStatusUnknown
}
