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
	"io/ioutil"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mosn.io/pkg/buffer"

	"mosn.io/bolt/pkg/config"
	"mosn.io/bolt/pkg/protocol/bolt"
	"mosn.io/bolt/pkg/remoting"
	mosnsync "mosn.io/bolt/pkg/sync"
)

const stringClass = "java.lang.String"

func echoHandler(t *testing.T) *remoting.CommandHandler {
	users := remoting.NewUserProcessorRegistry()
	require.NoError(t, users.Register(remoting.UserProcessorFunc(stringClass,
		func(ctx *remoting.RemotingContext, request *bolt.Request) (interface{}, error) {
			return request.Payload.(string) + " echo", nil
		})))
	executor, err := mosnsync.NewPoolExecutor("test", 2, 4, 16, time.Second)
	require.NoError(t, err)
	return remoting.NewRpcCommandHandler(remoting.NewProcessorManager(executor), users, nil)
}

func startListener(t *testing.T, cfg ConnConfig) *Listener {
	l := NewListener("127.0.0.1:0", echoHandler(t), cfg)
	require.NoError(t, l.Listen())
	go l.Serve(nil)
	return l
}

func TestInvokeOverTcp(t *testing.T) {
	for _, version := range []byte{bolt.ProtocolVersion1, bolt.ProtocolVersion2} {
		for _, crc := range []bool{true, false} {
			cfg := config.Default()
			cfg.Protocol.Version = version
			cfg.Protocol.Crc = crc

			l := startListener(t, ServerConnConfig(cfg))
			client, err := Dial(context.Background(), l.Addr().String(), ClientConnConfig(cfg))
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			response, err := client.InvokeObject(ctx, stringClass, map[string]string{"service": "echo"}, "hello")
			cancel()
			require.NoError(t, err, "version %d crc %v", version, crc)
			assert.Equal(t, bolt.ResponseStatusSuccess, response.ResponseStatus)
			assert.Equal(t, "hello echo", response.Payload)
			assert.Equal(t, version, response.ProtocolVersion)

			client.Close()
			l.Close()
		}
	}
}

func TestConcurrentInvoke(t *testing.T) {
	l := startListener(t, ServerConnConfig(config.Default()))
	defer l.Close()
	client, err := Dial(context.Background(), l.Addr().String(), ClientConnConfig(config.Default()))
	require.NoError(t, err)
	defer client.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			response, err := client.InvokeObject(ctx, stringClass, nil, "ping")
			if assert.NoError(t, err) {
				assert.Equal(t, "ping echo", response.Payload)
			}
		}()
	}
	wg.Wait()
}

func TestHeartbeat(t *testing.T) {
	l := startListener(t, ServerConnConfig(config.Default()))
	defer l.Close()
	client, err := Dial(context.Background(), l.Addr().String(), ClientConnConfig(config.Default()))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ack, err := client.Heartbeat(ctx)
	require.NoError(t, err)
	assert.True(t, ack.IsHeartbeatFrame())
	assert.Equal(t, bolt.ResponseStatusSuccess, ack.ResponseStatus)
}

func TestInvokeNoUserProcessor(t *testing.T) {
	l := startListener(t, ServerConnConfig(config.Default()))
	defer l.Close()
	client, err := Dial(context.Background(), l.Addr().String(), ClientConnConfig(config.Default()))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	response, err := client.InvokeObject(ctx, "java.lang.Integer", nil, int32(1))
	require.NoError(t, err)
	assert.Equal(t, bolt.ResponseStatusNoProcessor, response.ResponseStatus)
}

func TestListenerTracksConnections(t *testing.T) {
	l := startListener(t, ServerConnConfig(config.Default()))
	client, err := Dial(context.Background(), l.Addr().String(), ClientConnConfig(config.Default()))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return l.Connections() == 1 }, time.Second, 10*time.Millisecond)
	client.Close()
	assert.Eventually(t, func() bool { return l.Connections() == 0 }, time.Second, 10*time.Millisecond)

	client, err = Dial(context.Background(), l.Addr().String(), ClientConnConfig(config.Default()))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return l.Connections() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, l.Close())
	assert.Equal(t, 0, l.Connections())
	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("client not closed after listener close")
	}
}

func TestFramingErrorClosesConnection(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	conn := NewConn(local, echoHandler(t), nil, ConnConfig{})
	before := conn.stats.DecodeErrors.Count()
	conn.Start()

	go remote.Write([]byte{0x09, 0x01, 0x01})
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("connection not closed on bad magic")
	}
	assert.True(t, conn.IsClosed())
	assert.Equal(t, before+1, conn.stats.DecodeErrors.Count())
}

func TestCrcFailureClosesConnection(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	conn := NewConn(local, echoHandler(t), nil, ConnConfig{})
	before := conn.stats.CrcFailures.Count()
	conn.Start()

	request := bolt.NewRpcRequest(1, nil, []byte("payload"))
	request.Switch = bolt.NewProtocolSwitch(bolt.CrcSwitchIndex)
	buf, err := bolt.Encode(bolt.WithProtocolVersion(context.Background(), bolt.ProtocolVersion2), request)
	require.NoError(t, err)
	frame := buf.Bytes()
	frame[len(frame)-1] ^= 0xff

	go remote.Write(frame)
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("connection not closed on crc failure")
	}
	assert.Equal(t, before+1, conn.stats.CrcFailures.Count())
}

func TestSendKeepsRequestSwitch(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	crc := bolt.NewProtocolSwitch(bolt.CrcSwitchIndex)
	client := NewClientConn(local, ConnConfig{ProtocolVersion: bolt.ProtocolVersion2, Switch: crc})
	defer client.Close()

	custom := bolt.NewProtocolSwitch(5)
	explicit := bolt.NewRpcRequest(1, nil, []byte("explicit"))
	explicit.Switch = custom
	plain := bolt.NewRpcRequest(2, nil, []byte("plain"))

	go func() {
		assert.NoError(t, client.Send(explicit))
		assert.NoError(t, client.Send(plain))
	}()

	received := buffer.NewIoBuffer(256)
	var commands []bolt.Command
	remote.SetReadDeadline(time.Now().Add(time.Second))
	for len(commands) < 2 {
		chunk := make([]byte, 256)
		n, err := remote.Read(chunk)
		require.NoError(t, err)
		received.Write(chunk[:n])
		decoded, err := bolt.Decode(context.Background(), received)
		require.NoError(t, err)
		commands = append(commands, decoded...)
	}

	assert.Equal(t, custom, commands[0].GetCommandHeader().Switch)
	assert.False(t, commands[0].GetCommandHeader().Switch.CrcEnabled())
	assert.Equal(t, crc, commands[1].GetCommandHeader().Switch)
}

func TestCloseFailsPendingInvocations(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	// swallow everything, never answer
	go io.Copy(ioutil.Discard, remote)

	client := NewClientConn(local, ConnConfig{})
	client.Start()

	done := make(chan *bolt.Response, 1)
	go func() {
		response, err := client.Invoke(context.Background(), bolt.NewRpcRequest(0, nil, nil))
		assert.NoError(t, err)
		done <- response
	}()
	assert.Eventually(t, func() bool { return client.futures.Pending() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, client.Close())
	select {
	case response := <-done:
		assert.Equal(t, bolt.ResponseStatusConnectionClosed, response.ResponseStatus)
	case <-time.After(time.Second):
		t.Fatal("pending invocation not failed")
	}

	assert.Equal(t, ErrConnectionHasClosed, client.Send(bolt.NewRpcRequest(1, nil, nil)))
	// closing twice is harmless
	assert.NoError(t, client.Close())
}

func TestInvokeTimeout(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	go io.Copy(ioutil.Discard, remote)

	client := NewClientConn(local, ConnConfig{})
	client.Start()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Invoke(ctx, bolt.NewRpcRequest(0, nil, nil))
	assert.Equal(t, context.DeadlineExceeded, err)
	assert.Equal(t, 0, client.futures.Pending())
}

func TestIdleConnectionClosed(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	conn := NewConn(local, echoHandler(t), nil, ConnConfig{
		ReadTimeout: 10 * time.Millisecond,
		IdleTimeout: 30 * time.Millisecond,
	})
	conn.Start()
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("idle connection not closed")
	}
}

func TestGetIdleCount(t *testing.T) {
	assert.Equal(t, uint32(0), getIdleCount(time.Second, 0))
	assert.Equal(t, uint32(3), getIdleCount(time.Second, 3*time.Second))
	assert.Equal(t, uint32(4), getIdleCount(time.Second, 3500*time.Millisecond))
	assert.Equal(t, uint32(1), getIdleCount(0, time.Second))
}
