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
	"net"
	"time"

	"github.com/pkg/errors"
	"mosn.io/pkg/buffer"

	mosnctx "mosn.io/bolt/pkg/context"
)

// Decode drains every complete frame available in data.
// Bytes of a trailing partial frame stay in data for the next call.
// A framing error is returned together with the commands decoded before it.
func Decode(ctx context.Context, data buffer.IoBuffer) ([]Command, error) {
	var cmds []Command
	for {
		cmd, err := decodeCommand(ctx, data)
		if err != nil {
			return cmds, err
		}
		if cmd == nil {
			return cmds, nil
		}
		cmds = append(cmds, cmd)
	}
}

// decodeCommand returns (nil, nil) until a whole frame is buffered.
// data is drained only once the frame passed every check.
func decodeCommand(ctx context.Context, data buffer.IoBuffer) (Command, error) {
	bytes := data.Bytes()
	bytesLen := len(bytes)

	// 1. magic is checked as soon as one byte arrives
	if bytesLen == 0 {
		return nil, nil
	}
	if bytes[0] != ProtocolCode {
		return nil, errors.Wrapf(ErrUnknownProtocol, "protocol code %d", bytes[0])
	}

	// 2. magic, framing version and cmd type select the header layout
	if bytesLen < LessLen {
		return nil, nil
	}
	version := bytes[1]
	if version != ProtocolVersion1 && version != ProtocolVersion2 {
		return nil, errors.Wrapf(ErrUnknownVersion, "protocol version %d", version)
	}

	cmdType := bytes[2]
	switch cmdType {
	case CmdTypeRequest, CmdTypeRequestOneway:
		return decodeRequest(ctx, data, bytes)
	case CmdTypeResponse:
		return decodeResponse(ctx, data, bytes)
	}
	return nil, errors.Wrapf(ErrUnknownCmdType, "cmd type %d", cmdType)
}

func decodeRequest(ctx context.Context, data buffer.IoBuffer, bytes []byte) (Command, error) {
	bytesLen := len(bytes)

	// 1. least bytes to decode header is RequestHeaderLen(24)
	if bytesLen < RequestHeaderLen {
		return nil, nil
	}

	// 2. least bytes to decode whole frame
	switchCode := ProtocolSwitch(bytes[11])
	classLen := binary.BigEndian.Uint16(bytes[16:18])
	headerLen := binary.BigEndian.Uint16(bytes[18:20])
	contentLen := binary.BigEndian.Uint32(bytes[20:24])

	crcOn := withCrc(bytes[1], switchCode)
	frameLen := frameLength(RequestHeaderLen, classLen, headerLen, contentLen, crcOn)
	if bytesLen < frameLen {
		return nil, nil
	}

	// 3. verify the trailer before consuming anything
	if crcOn {
		if err := checkCrc(bytes[:frameLen]); err != nil {
			return nil, err
		}
	}

	// 4. decode header
	request := &Request{
		rpcCommand: rpcCommand{
			CommandHeader: CommandHeader{
				Protocol:        ProtocolCode,
				ProtocolVersion: bytes[1],
				CmdType:         bytes[2],
				CmdCode:         binary.BigEndian.Uint16(bytes[3:5]),
				Version:         bytes[5],
				RequestId:       binary.BigEndian.Uint32(bytes[6:10]),
				Codec:           bytes[10],
				Switch:          switchCode,
				ClassLen:        classLen,
				HeaderLen:       headerLen,
				ContentLen:      contentLen,
			},
		},
		Timeout:    int32(binary.BigEndian.Uint32(bytes[12:16])),
		ArriveTime: time.Now(),
	}

	// 5. copy blocks for io multiplexing, then commit
	request.class, request.header, request.content = copyBlocks(bytes, RequestHeaderLen, classLen, headerLen, contentLen)
	data.Drain(frameLen)

	return request, nil
}

func decodeResponse(ctx context.Context, data buffer.IoBuffer, bytes []byte) (Command, error) {
	bytesLen := len(bytes)

	// 1. least bytes to decode header is ResponseHeaderLen(22)
	if bytesLen < ResponseHeaderLen {
		return nil, nil
	}

	// 2. least bytes to decode whole frame
	switchCode := ProtocolSwitch(bytes[11])
	classLen := binary.BigEndian.Uint16(bytes[14:16])
	headerLen := binary.BigEndian.Uint16(bytes[16:18])
	contentLen := binary.BigEndian.Uint32(bytes[18:22])

	crcOn := withCrc(bytes[1], switchCode)
	frameLen := frameLength(ResponseHeaderLen, classLen, headerLen, contentLen, crcOn)
	if bytesLen < frameLen {
		return nil, nil
	}

	// 3. verify the trailer before consuming anything
	if crcOn {
		if err := checkCrc(bytes[:frameLen]); err != nil {
			return nil, err
		}
	}

	// 4. decode header
	response := &Response{
		rpcCommand: rpcCommand{
			CommandHeader: CommandHeader{
				Protocol:        ProtocolCode,
				ProtocolVersion: bytes[1],
				CmdType:         CmdTypeResponse,
				CmdCode:         binary.BigEndian.Uint16(bytes[3:5]),
				Version:         bytes[5],
				RequestId:       binary.BigEndian.Uint32(bytes[6:10]),
				Codec:           bytes[10],
				Switch:          switchCode,
				ClassLen:        classLen,
				HeaderLen:       headerLen,
				ContentLen:      contentLen,
			},
		},
		ResponseStatus: binary.BigEndian.Uint16(bytes[12:14]),
		ResponseTime:   time.Now(),
	}
	if addr, ok := mosnctx.Get(ctx, mosnctx.ContextKeyRemoteAddr).(net.Addr); ok {
		response.ResponseHost = addr
	}

	// 5. copy blocks for io multiplexing, then commit
	response.class, response.header, response.content = copyBlocks(bytes, ResponseHeaderLen, classLen, headerLen, contentLen)
	data.Drain(frameLen)

	return response, nil
}

// withCrc reports whether a frame carries the crc32 trailer, framing version 1 never does.
func withCrc(version byte, switchCode ProtocolSwitch) bool {
	return version == ProtocolVersion2 && switchCode.CrcEnabled()
}

func frameLength(fixedLen int, classLen, headerLen uint16, contentLen uint32, crcOn bool) int {
	frameLen := fixedLen + int(classLen) + int(headerLen) + int(contentLen)
	if crcOn {
		frameLen += CrcLen
	}
	return frameLen
}

// checkCrc compares the trailer of frame with the checksum of everything before it.
func checkCrc(frame []byte) error {
	n := len(frame) - CrcLen
	expected := binary.BigEndian.Uint32(frame[n:])
	actual := crc32.ChecksumIEEE(frame[:n])
	if expected != actual {
		return errors.Wrapf(ErrCrcCheck, "expected %d, actual %d", expected, actual)
	}
	return nil
}

// copyBlocks copies the three blocks into one allocation, zero length blocks stay nil.
func copyBlocks(bytes []byte, fixedLen int, classLen, headerLen uint16, contentLen uint32) (class, header, content []byte) {
	total := int(classLen) + int(headerLen) + int(contentLen)
	if total == 0 {
		return
	}
	raw := make([]byte, total)
	copy(raw, bytes[fixedLen:fixedLen+total])

	headerIndex := int(classLen)
	contentIndex := headerIndex + int(headerLen)
	if classLen > 0 {
		class = raw[:headerIndex:headerIndex]
	}
	if headerLen > 0 {
		header = raw[headerIndex:contentIndex:contentIndex]
	}
	if contentLen > 0 {
		content = raw[contentIndex:total:total]
	}
	return
}
