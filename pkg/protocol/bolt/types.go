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
	"fmt"

	"github.com/pkg/errors"
	"mosn.io/api"
)

// bolt v2 constants
const (
	ProtocolName     api.ProtocolName = "boltv2" // protocol
	ProtocolCode     byte             = 2
	ProtocolVersion1 byte             = 1 // framing version, no crc
	ProtocolVersion2 byte             = 2 // framing version, crc capable

	CommandVersion byte = 1 // cmd version

	CmdTypeResponse      byte = 0 // cmd type
	CmdTypeRequest       byte = 1
	CmdTypeRequestOneway byte = 2

	CmdCodeHeartbeat   uint16 = 0 // cmd code
	CmdCodeRpcRequest  uint16 = 1
	CmdCodeRpcResponse uint16 = 2

	Hessian2Serialize byte = 1 // serialize

	ResponseStatusSuccess                 uint16 = 0  // 0x00 response status
	ResponseStatusError                   uint16 = 1  // 0x01
	ResponseStatusServerException         uint16 = 2  // 0x02
	ResponseStatusUnknown                 uint16 = 3  // 0x03
	ResponseStatusServerThreadpoolBusy    uint16 = 4  // 0x04
	ResponseStatusErrorComm               uint16 = 5  // 0x05
	ResponseStatusNoProcessor             uint16 = 6  // 0x06
	ResponseStatusTimeout                 uint16 = 7  // 0x07
	ResponseStatusClientSendError         uint16 = 8  // 0x08
	ResponseStatusCodecException          uint16 = 9  // 0x09
	ResponseStatusConnectionClosed        uint16 = 16 // 0x10
	ResponseStatusServerSerialException   uint16 = 17 // 0x11
	ResponseStatusServerDeserialException uint16 = 18 // 0x12

	RequestHeaderLen  int = 24 // protocol header fields length
	ResponseHeaderLen int = 22
	LessLen           int = 3 // magic, framing version and cmd type
	CrcLen            int = 4

	RequestIdIndex = 6
	SwitchIndex    = 11

	// DefaultTimeout is used by commands that carry no deadline, heartbeats included.
	DefaultTimeout int32 = -1
)

const (
	// Encode/Decode Exception Msg
	UnKnownProtocol  string = "unknown protocol code"
	UnKnownVersion   string = "unknown protocol version"
	UnKnownCmdType   string = "unknown cmd type"
	CrcCheckFailed   string = "crc check failed"
	UnKnownType      string = "unknown command model type"
	BlockTooLarge    string = "command block too large"
	InvalidDeserialL string = "invalid deserialize level"
)

var (
	// framing errors, fatal for the connection
	ErrUnknownProtocol = errors.New(UnKnownProtocol)
	ErrUnknownVersion  = errors.New(UnKnownVersion)
	ErrUnknownCmdType  = errors.New(UnKnownCmdType)
	ErrCrcCheck        = errors.New(CrcCheckFailed)

	// caller errors
	ErrUnknownType             = errors.New(UnKnownType)
	ErrBlockTooLarge           = errors.New(BlockTooLarge)
	ErrInvalidDeserializeLevel = errors.New(InvalidDeserialL)
)

// IsFramingError reports whether err means the byte stream can no longer be trusted.
// Connections must be closed on framing errors.
func IsFramingError(err error) bool {
	switch errors.Cause(err) {
	case ErrUnknownProtocol, ErrUnknownVersion, ErrUnknownCmdType, ErrCrcCheck:
		return true
	}
	return false
}

// SerializationError is returned when a typed representation cannot be turned into block bytes.
type SerializationError struct {
	Stage string
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s failed: %v", e.Stage, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Cause() error { return e.Err }

// DeserializationError is returned when block bytes cannot be turned into a typed representation.
type DeserializationError struct {
	Stage string
	Err   error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize %s failed: %v", e.Stage, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

func (e *DeserializationError) Cause() error { return e.Err }

// IsCodecError reports whether err came from the payload (de)serialization stages.
func IsCodecError(err error) bool {
	var serr *SerializationError
	var derr *DeserializationError
	return errors.As(err, &serr) || errors.As(err, &derr)
}
