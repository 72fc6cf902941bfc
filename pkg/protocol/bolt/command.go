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

package bolt

import (
	"math"
	"net"
	"time"

	"github.com/pkg/errors"
)

// CommandType is the semantic kind of a command, derived from its cmd type and cmd code.
type CommandType uint8

const (
	TypeRequest CommandType = iota + 1
	TypeRequestOneway
	TypeResponse
	TypeHeartbeatRequest
	TypeHeartbeatResponse
)

func (t CommandType) String() string {
	switch t {
	case TypeRequest:
		return "REQUEST"
	case TypeRequestOneway:
		return "REQUEST_ONEWAY"
	case TypeResponse:
		return "RESPONSE"
	case TypeHeartbeatRequest:
		return "HEARTBEAT_REQUEST"
	case TypeHeartbeatResponse:
		return "HEARTBEAT_RESPONSE"
	}
	return "UNKNOWN"
}

// CommandHeader is the fixed part shared by every frame.
type CommandHeader struct {
	Protocol        byte // magic
	ProtocolVersion byte // framing version
	CmdType         byte
	CmdCode         uint16
	Version         byte // command version
	RequestId       uint32
	Codec           byte
	Switch          ProtocolSwitch
	ClassLen        uint16
	HeaderLen       uint16
	ContentLen      uint32
}

// Command is implemented by *Request and *Response only.
type Command interface {
	GetCommandHeader() *CommandHeader
	Type() CommandType
	IsHeartbeatFrame() bool
	GetRequestId() uint32
	SetRequestId(id uint32)

	ClassBytes() []byte
	HeaderBytes() []byte
	ContentBytes() []byte
	SetClassBytes(class []byte) error
	SetHeaderBytes(header []byte) error
	SetContentBytes(content []byte) error

	SerializeClass() error
	SerializeHeader() error
	SerializeContent() error
	Serialize() error
	DeserializeClass() error
	DeserializeHeader() error
	DeserializeContent() error
	Deserialize(level DeserializeLevel) error

	command()
}

// rpcCommand carries the header, the three raw blocks and their typed forms.
type rpcCommand struct {
	CommandHeader

	class   []byte
	header  []byte
	content []byte
	// oversized block handed to a constructor, reported by Encode
	blockErr error

	// typed representations, filled by the staged (de)serialization
	ClassName string
	Headers   Header
	Payload   interface{}
}

func (c *rpcCommand) command() {}

func (c *rpcCommand) GetCommandHeader() *CommandHeader {
	return &c.CommandHeader
}

func (c *rpcCommand) IsHeartbeatFrame() bool {
	return c.CmdCode == CmdCodeHeartbeat
}

func (c *rpcCommand) GetRequestId() uint32 {
	return c.RequestId
}

func (c *rpcCommand) SetRequestId(id uint32) {
	c.RequestId = id
}

func (c *rpcCommand) ClassBytes() []byte {
	return c.class
}

func (c *rpcCommand) HeaderBytes() []byte {
	return c.header
}

func (c *rpcCommand) ContentBytes() []byte {
	return c.content
}

// SetClassBytes replaces the class block, the recorded length follows.
// A block longer than the length field can carry fails with ErrBlockTooLarge
// and leaves the command unchanged.
func (c *rpcCommand) SetClassBytes(class []byte) error {
	if len(class) > math.MaxUint16 {
		return errors.Wrapf(ErrBlockTooLarge, "class block %d bytes", len(class))
	}
	c.class = class
	c.ClassLen = uint16(len(class))
	return nil
}

func (c *rpcCommand) SetHeaderBytes(header []byte) error {
	if len(header) > math.MaxUint16 {
		return errors.Wrapf(ErrBlockTooLarge, "header block %d bytes", len(header))
	}
	c.header = header
	c.HeaderLen = uint16(len(header))
	return nil
}

func (c *rpcCommand) SetContentBytes(content []byte) error {
	if uint64(len(content)) > math.MaxUint32 {
		return errors.Wrapf(ErrBlockTooLarge, "content block %d bytes", len(content))
	}
	c.content = content
	c.ContentLen = uint32(len(content))
	return nil
}

func (c *rpcCommand) setHeaders(headers map[string]string) error {
	for k, v := range headers {
		c.Headers.Set(k, v)
	}
	return c.SetHeaderBytes(encodeHeader(&c.Headers))
}

// setBlocks stores the constructor arguments, keeping the first oversized block error.
func (c *rpcCommand) setBlocks(headers map[string]string, content []byte) {
	if len(headers) > 0 {
		c.blockErr = c.setHeaders(headers)
	}
	if len(content) > 0 && c.blockErr == nil {
		c.blockErr = c.SetContentBytes(content)
	}
}

// Request is a request or oneway request frame, heartbeats included.
type Request struct {
	rpcCommand
	Timeout int32

	// ArriveTime is stamped by the decoder.
	ArriveTime time.Time
}

func (r *Request) Type() CommandType {
	switch {
	case r.IsHeartbeatFrame():
		return TypeHeartbeatRequest
	case r.CmdType == CmdTypeRequestOneway:
		return TypeRequestOneway
	}
	return TypeRequest
}

func (r *Request) IsOneway() bool {
	return r.CmdType == CmdTypeRequestOneway
}

// Response is a response frame, heartbeat acks included.
type Response struct {
	rpcCommand
	ResponseStatus uint16

	// ResponseTime and ResponseHost are stamped by the decoder.
	ResponseTime time.Time
	ResponseHost net.Addr
}

func (r *Response) Type() CommandType {
	if r.IsHeartbeatFrame() {
		return TypeHeartbeatResponse
	}
	return TypeResponse
}

func newCommandHeader(cmdType byte, cmdCode uint16, requestId uint32) CommandHeader {
	return CommandHeader{
		Protocol:        ProtocolCode,
		ProtocolVersion: ProtocolVersion1,
		CmdType:         cmdType,
		CmdCode:         cmdCode,
		Version:         CommandVersion,
		RequestId:       requestId,
		Codec:           Hessian2Serialize,
	}
}

// NewRpcRequest builds a rpc request with raw content bytes.
func NewRpcRequest(requestId uint32, headers map[string]string, content []byte) *Request {
	request := &Request{
		rpcCommand: rpcCommand{
			CommandHeader: newCommandHeader(CmdTypeRequest, CmdCodeRpcRequest, requestId),
		},
		Timeout: DefaultTimeout,
	}
	request.setBlocks(headers, content)
	return request
}

// NewRpcOnewayRequest builds a rpc request that expects no response.
func NewRpcOnewayRequest(requestId uint32, headers map[string]string, content []byte) *Request {
	request := NewRpcRequest(requestId, headers, content)
	request.CmdType = CmdTypeRequestOneway
	return request
}

// NewRpcResponse builds a rpc response with raw content bytes.
func NewRpcResponse(requestId uint32, statusCode uint16, headers map[string]string, content []byte) *Response {
	response := &Response{
		rpcCommand: rpcCommand{
			CommandHeader: newCommandHeader(CmdTypeResponse, CmdCodeRpcResponse, requestId),
		},
		ResponseStatus: statusCode,
	}
	response.setBlocks(headers, content)
	return response
}
