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
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mosn.io/bolt/pkg/protocol/bolt"
	mosnsync "mosn.io/bolt/pkg/sync"
)

const stringClass = "java.lang.String"

func echoProcessor(calls *int) UserProcessor {
	return UserProcessorFunc(stringClass, func(ctx *RemotingContext, request *bolt.Request) (interface{}, error) {
		*calls++
		return request.Payload.(string) + " echo", nil
	})
}

func stringRequest(id uint32, payload string) *bolt.Request {
	request := bolt.NewRpcRequest(id, map[string]string{"service": "echo"}, nil)
	request.ClassName = stringClass
	request.Payload = payload
	if err := request.Serialize(); err != nil {
		panic(err)
	}
	// drop the go values, processors must rebuild them from bytes
	request.ClassName = ""
	request.Payload = nil
	request.Headers.Reset()
	return request
}

func newRpcHandler(t *testing.T, users ...UserProcessor) (*CommandHandler, *InvokeFutures) {
	registry := NewUserProcessorRegistry()
	for _, u := range users {
		require.NoError(t, registry.Register(u))
	}
	futures := NewInvokeFutures()
	return NewRpcCommandHandler(NewProcessorManager(mosnsync.DirectExecutor), registry, futures), futures
}

func TestUserProcessorRegistry(t *testing.T) {
	registry := NewUserProcessorRegistry()
	calls := 0
	require.NoError(t, registry.Register(echoProcessor(&calls)))
	err := registry.Register(echoProcessor(&calls))
	assert.True(t, errors.Is(err, ErrUserProcessorRegistered))
	assert.Error(t, registry.Register(UserProcessorFunc("", nil)))

	_, ok := registry.Get(stringClass)
	assert.True(t, ok)
	_, ok = registry.Get("java.lang.Integer")
	assert.False(t, ok)
}

func TestRpcRequestEcho(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := NewMockConnection(ctrl)
	responses := expectResponses(t, conn)

	calls := 0
	h, _ := newRpcHandler(t, echoProcessor(&calls))
	require.NoError(t, h.HandleCommand(context.Background(), conn, stringRequest(21, "hello")))

	assert.Equal(t, 1, calls)
	require.Len(t, *responses, 1)
	response := (*responses)[0]
	assert.Equal(t, uint32(21), response.RequestId)
	assert.Equal(t, bolt.ResponseStatusSuccess, response.ResponseStatus)
	require.NoError(t, response.Deserialize(bolt.LevelAll))
	assert.Equal(t, "hello echo", response.Payload)
}

func TestRpcRequestSeesHeaders(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := NewMockConnection(ctrl)
	expectResponses(t, conn)

	var service string
	h, _ := newRpcHandler(t, UserProcessorFunc(stringClass, func(ctx *RemotingContext, request *bolt.Request) (interface{}, error) {
		service, _ = request.Headers.Get("service")
		return "ok", nil
	}))
	require.NoError(t, h.HandleCommand(context.Background(), conn, stringRequest(22, "hello")))
	assert.Equal(t, "echo", service)
}

func TestRpcRequestOneway(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	// no Write expected
	conn := NewMockConnection(ctrl)

	calls := 0
	h, _ := newRpcHandler(t, echoProcessor(&calls))
	request := stringRequest(23, "fire")
	request.CmdType = bolt.CmdTypeRequestOneway
	require.NoError(t, h.HandleCommand(context.Background(), conn, request))
	assert.Equal(t, 1, calls)
}

func TestRpcRequestNoUserProcessor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := NewMockConnection(ctrl)
	responses := expectResponses(t, conn)

	h, _ := newRpcHandler(t)
	require.NoError(t, h.HandleCommand(context.Background(), conn, stringRequest(24, "hello")))

	require.Len(t, *responses, 1)
	assert.Equal(t, bolt.ResponseStatusNoProcessor, (*responses)[0].ResponseStatus)
}

func TestRpcRequestUserError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := NewMockConnection(ctrl)
	responses := expectResponses(t, conn)

	h, _ := newRpcHandler(t, UserProcessorFunc(stringClass, func(*RemotingContext, *bolt.Request) (interface{}, error) {
		return nil, errors.New("user failure")
	}))
	require.NoError(t, h.HandleCommand(context.Background(), conn, stringRequest(25, "hello")))

	require.Len(t, *responses, 1)
	response := (*responses)[0]
	assert.Equal(t, bolt.ResponseStatusServerException, response.ResponseStatus)
	require.NoError(t, response.Deserialize(bolt.LevelAll))
	assert.Equal(t, "user failure", response.Payload)
}

func TestRpcRequestBadContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := NewMockConnection(ctrl)
	responses := expectResponses(t, conn)

	calls := 0
	h, _ := newRpcHandler(t, echoProcessor(&calls))
	request := stringRequest(26, "hello")
	request.Codec = 99
	require.NoError(t, h.HandleCommand(context.Background(), conn, request))

	assert.Equal(t, 0, calls)
	require.Len(t, *responses, 1)
	assert.Equal(t, bolt.ResponseStatusServerDeserialException, (*responses)[0].ResponseStatus)
}

func TestRpcRequestTimeoutDiscarded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	// no Write expected
	conn := NewMockConnection(ctrl)

	calls := 0
	h, _ := newRpcHandler(t, echoProcessor(&calls))
	request := stringRequest(27, "late")
	request.Timeout = 5
	request.ArriveTime = time.Now().Add(-time.Second)
	require.NoError(t, h.HandleCommand(context.Background(), conn, request))
	assert.Equal(t, 0, calls)
}

func TestHeartbeatReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := NewMockConnection(ctrl)
	responses := expectResponses(t, conn)

	h, _ := newRpcHandler(t)
	require.NoError(t, h.HandleCommand(context.Background(), conn, h.Protocol().Trigger(31)))

	require.Len(t, *responses, 1)
	ack := (*responses)[0]
	assert.Equal(t, uint32(31), ack.RequestId)
	assert.Equal(t, bolt.CmdCodeHeartbeat, ack.CmdCode)
	assert.Equal(t, bolt.ResponseStatusSuccess, ack.ResponseStatus)
	assert.True(t, ack.IsHeartbeatFrame())
}

func TestResponsesCompleteFutures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := NewMockConnection(ctrl)

	h, futures := newRpcHandler(t)
	ch := futures.Add(41)
	hb := futures.Add(42)

	require.NoError(t, h.HandleCommand(context.Background(), conn, bolt.NewRpcResponse(41, bolt.ResponseStatusSuccess, nil, nil)))
	require.NoError(t, h.HandleCommand(context.Background(), conn, h.Protocol().Reply(h.Protocol().Trigger(42))))
	// nobody waits for this one
	require.NoError(t, h.HandleCommand(context.Background(), conn, bolt.NewRpcResponse(43, bolt.ResponseStatusSuccess, nil, nil)))

	response, err := futures.Wait(context.Background(), 41, ch)
	require.NoError(t, err)
	assert.Equal(t, uint32(41), response.RequestId)
	ack, err := futures.Wait(context.Background(), 42, hb)
	require.NoError(t, err)
	assert.True(t, ack.IsHeartbeatFrame())
	assert.Equal(t, 0, futures.Pending())
}
