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
	"strconv"

	"mosn.io/api"
	"mosn.io/pkg/buffer"

	"mosn.io/bolt/pkg/log"
)

/**
 * Request command protocol for v2
 * 0     1     2           4           6           8          10     11     12          14         16
 * +-----+-----+-----+-----+-----+-----+-----+-----+-----+-----+------+-----+-----+-----+-----+-----+
 * |proto| ver1|type | cmdcode   |ver2 |   requestId           |codec|switch|   timeout             |
 * +-----------+-----------+-----------+-----------+-----------+------------+-----------+-----------+
 * |classLen   |headerLen  |contentLen             |           ... ...                             |
 * +-----------+-----------+-----------+-----------+                                               +
 * |               className + header  + content  bytes                                            |
 * +                                                                                               +
 * |                               ... ...                                 | CRC32(optional)       |
 * +-----------------------------------------------------------------------------------------------+
 *
 * proto: code for protocol
 * ver1: version for protocol framing
 * type: request/response/request oneway
 * cmdcode: code for remoting command
 * ver2:version for remoting command
 * requestId: id of request
 * codec: code for codec
 * switch: function switch for protocol, bit 0 enables CRC32
 * headerLen: length of header
 * contentLen: length of content
 * CRC32: CRC32 of the frame, present when ver1 is 2 and the crc switch is on
 *
 * Response command protocol for v2
 * 0     1     2     3     4           6           8          10     11    12          14          16
 * +-----+-----+-----+-----+-----+-----+-----+-----+-----+-----+------+-----+-----+-----+-----+-----+
 * |proto| ver1| type| cmdcode   |ver2 |   requestId           |codec|switch|respstatus |  classLen |
 * +-----------+-----------+-----------+-----------+-----------+------------+-----------+-----------+
 * |headerLen  | contentLen            |                      ... ...                              |
 * +-----------+-----------+-----------+                                                           +
 * |                         className + header  + content  bytes                                  |
 * +                                                                                               +
 * |                               ... ...                                 | CRC32(optional)       |
 * +-----------------------------------------------------------------------------------------------+
 * respstatus: response status
 */

// Protocol bundles the codec with the heartbeat and hijack frame builders.
type Protocol struct{}

func NewProtocol() *Protocol {
	return &Protocol{}
}

func (proto *Protocol) Name() api.ProtocolName {
	return ProtocolName
}

func (proto *Protocol) Encode(ctx context.Context, model interface{}) (buffer.IoBuffer, error) {
	buf, err := Encode(ctx, model)
	if err != nil {
		log.Proxy.Errorf(ctx, "[protocol][bolt] encode command failed: %v", err)
	}
	return buf, err
}

func (proto *Protocol) Decode(ctx context.Context, data buffer.IoBuffer) ([]Command, error) {
	return Decode(ctx, data)
}

// Trigger builds a heartbeat request.
func (proto *Protocol) Trigger(requestId uint32) *Request {
	return &Request{
		rpcCommand: rpcCommand{
			CommandHeader: newCommandHeader(CmdTypeRequest, CmdCodeHeartbeat, requestId),
		},
		Timeout: DefaultTimeout,
	}
}

// Reply builds the heartbeat ack for request.
func (proto *Protocol) Reply(request Command) *Response {
	response := proto.Hijack(request, ResponseStatusSuccess)
	response.CmdCode = CmdCodeHeartbeat
	return response
}

// Hijack builds a response for request carrying only a status.
func (proto *Protocol) Hijack(request Command, statusCode uint16) *Response {
	header := request.GetCommandHeader()
	response := &Response{
		rpcCommand: rpcCommand{
			CommandHeader: newCommandHeader(CmdTypeResponse, CmdCodeRpcResponse, header.RequestId),
		},
		ResponseStatus: statusCode,
	}
	response.ProtocolVersion = header.ProtocolVersion
	response.Codec = header.Codec
	response.Switch = header.Switch
	return response
}

var statusText = map[uint16]string{
	ResponseStatusSuccess:                 "SUCCESS",
	ResponseStatusError:                   "ERROR",
	ResponseStatusServerException:         "SERVER_EXCEPTION",
	ResponseStatusUnknown:                 "UNKNOWN",
	ResponseStatusServerThreadpoolBusy:    "SERVER_THREADPOOL_BUSY",
	ResponseStatusErrorComm:               "ERROR_COMM",
	ResponseStatusNoProcessor:             "NO_PROCESSOR",
	ResponseStatusTimeout:                 "TIMEOUT",
	ResponseStatusClientSendError:         "CLIENT_SEND_ERROR",
	ResponseStatusCodecException:          "CODEC_EXCEPTION",
	ResponseStatusConnectionClosed:        "CONNECTION_CLOSED",
	ResponseStatusServerSerialException:   "SERVER_SERIAL_EXCEPTION",
	ResponseStatusServerDeserialException: "SERVER_DESERIAL_EXCEPTION",
}

// StatusText returns the name of a response status.
func StatusText(status uint16) string {
	if text, ok := statusText[status]; ok {
		return text
	}
	return "STATUS_" + strconv.Itoa(int(status))
}
