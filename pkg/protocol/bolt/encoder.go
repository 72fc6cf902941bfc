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
	"context"
	"encoding/binary"
	"hash/crc32"
	"math"

	"github.com/pkg/errors"
	"mosn.io/pkg/buffer"

	mosnctx "mosn.io/bolt/pkg/context"
)

// Encode writes model into a new buffer, only *Request and *Response are accepted.
// The framing version is the one negotiated for the connection (see WithProtocolVersion),
// else the command's own, else version 1.
func Encode(ctx context.Context, model interface{}) (buffer.IoBuffer, error) {
	switch frame := model.(type) {
	case *Request:
		return encodeRequest(ctx, frame)
	case *Response:
		return encodeResponse(ctx, frame)
	}
	return nil, errors.Wrapf(ErrUnknownType, "%T", model)
}

// WithProtocolVersion records the framing version negotiated for a connection.
func WithProtocolVersion(ctx context.Context, version byte) context.Context {
	return mosnctx.WithValue(ctx, mosnctx.ContextKeyProtocolVersion, version)
}

func framingVersion(ctx context.Context, header *CommandHeader) byte {
	if version, ok := mosnctx.Get(ctx, mosnctx.ContextKeyProtocolVersion).(byte); ok && validVersion(version) {
		return version
	}
	if validVersion(header.ProtocolVersion) {
		return header.ProtocolVersion
	}
	return ProtocolVersion1
}

func validVersion(version byte) bool {
	return version == ProtocolVersion1 || version == ProtocolVersion2
}

func encodeRequest(ctx context.Context, request *Request) (buffer.IoBuffer, error) {
	if request.CmdType != CmdTypeRequest && request.CmdType != CmdTypeRequestOneway {
		return nil, errors.Wrapf(ErrUnknownType, "request with cmd type %d", request.CmdType)
	}

	// 1. calculate frame length
	if err := request.fillLength(); err != nil {
		return nil, err
	}
	request.Protocol = ProtocolCode
	request.ProtocolVersion = framingVersion(ctx, &request.CommandHeader)
	crcOn := withCrc(request.ProtocolVersion, request.Switch)
	frameLen := frameLength(RequestHeaderLen, request.ClassLen, request.HeaderLen, request.ContentLen, crcOn)

	// 2. encode: meta, class, header, content
	buf := make([]byte, frameLen)
	buf[0] = request.Protocol
	buf[1] = request.ProtocolVersion
	buf[2] = request.CmdType
	binary.BigEndian.PutUint16(buf[3:], request.CmdCode)
	buf[5] = request.Version
	binary.BigEndian.PutUint32(buf[6:], request.RequestId)
	buf[10] = request.Codec
	buf[11] = byte(request.Switch)
	binary.BigEndian.PutUint32(buf[12:], uint32(request.Timeout))
	binary.BigEndian.PutUint16(buf[16:], request.ClassLen)
	binary.BigEndian.PutUint16(buf[18:], request.HeaderLen)
	binary.BigEndian.PutUint32(buf[20:], request.ContentLen)
	request.writeBlocks(buf[RequestHeaderLen:])

	// 3. crc over the bytes written so far
	if crcOn {
		putCrc(buf)
	}
	return buffer.NewIoBufferBytes(buf), nil
}

func encodeResponse(ctx context.Context, response *Response) (buffer.IoBuffer, error) {
	if response.CmdType != CmdTypeResponse {
		return nil, errors.Wrapf(ErrUnknownType, "response with cmd type %d", response.CmdType)
	}

	// 1. calculate frame length
	if err := response.fillLength(); err != nil {
		return nil, err
	}
	response.Protocol = ProtocolCode
	response.ProtocolVersion = framingVersion(ctx, &response.CommandHeader)
	crcOn := withCrc(response.ProtocolVersion, response.Switch)
	frameLen := frameLength(ResponseHeaderLen, response.ClassLen, response.HeaderLen, response.ContentLen, crcOn)

	// 2. encode: meta, class, header, content
	buf := make([]byte, frameLen)
	buf[0] = response.Protocol
	buf[1] = response.ProtocolVersion
	buf[2] = response.CmdType
	binary.BigEndian.PutUint16(buf[3:], response.CmdCode)
	buf[5] = response.Version
	binary.BigEndian.PutUint32(buf[6:], response.RequestId)
	buf[10] = response.Codec
	buf[11] = byte(response.Switch)
	binary.BigEndian.PutUint16(buf[12:], response.ResponseStatus)
	binary.BigEndian.PutUint16(buf[14:], response.ClassLen)
	binary.BigEndian.PutUint16(buf[16:], response.HeaderLen)
	binary.BigEndian.PutUint32(buf[18:], response.ContentLen)
	response.writeBlocks(buf[ResponseHeaderLen:])

	// 3. crc over the bytes written so far
	if crcOn {
		putCrc(buf)
	}
	return buffer.NewIoBufferBytes(buf), nil
}

// fillLength derives the recorded lengths from the blocks.
func (c *rpcCommand) fillLength() error {
	if c.blockErr != nil {
		return c.blockErr
	}
	if len(c.class) > math.MaxUint16 {
		return errors.Wrapf(ErrBlockTooLarge, "class block %d bytes", len(c.class))
	}
	if len(c.header) > math.MaxUint16 {
		return errors.Wrapf(ErrBlockTooLarge, "header block %d bytes", len(c.header))
	}
	if uint64(len(c.content)) > math.MaxUint32 {
		return errors.Wrapf(ErrBlockTooLarge, "content block %d bytes", len(c.content))
	}
	c.ClassLen = uint16(len(c.class))
	c.HeaderLen = uint16(len(c.header))
	c.ContentLen = uint32(len(c.content))
	return nil
}

func (c *rpcCommand) writeBlocks(buf []byte) {
	index := copy(buf, c.class)
	index += copy(buf[index:], c.header)
	copy(buf[index:], c.content)
}

func putCrc(frame []byte) {
	n := len(frame) - CrcLen
	binary.BigEndian.PutUint32(frame[n:], crc32.ChecksumIEEE(frame[:n]))
}
