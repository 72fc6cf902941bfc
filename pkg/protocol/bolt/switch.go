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

import "strconv"

// CrcSwitchIndex is the switch bit enabling the frame crc32 trailer.
const CrcSwitchIndex = 0

const switchBits = 8

// ProtocolSwitch is the 8-bit feature mask carried in every frame.
// Bits without a known meaning are kept untouched so they survive a decode/encode cycle.
type ProtocolSwitch byte

// NewProtocolSwitch returns a switch with the given bit indexes turned on.
// Indexes outside [0, 8) are ignored.
func NewProtocolSwitch(indexes ...int) ProtocolSwitch {
	var s ProtocolSwitch
	for _, i := range indexes {
		s = s.On(i)
	}
	return s
}

// IsOn reports whether the bit at index is set.
func (s ProtocolSwitch) IsOn(index int) bool {
	if index < 0 || index >= switchBits {
		return false
	}
	return s&(1<<uint(index)) != 0
}

// On returns a copy of s with the bit at index set.
func (s ProtocolSwitch) On(index int) ProtocolSwitch {
	if index < 0 || index >= switchBits {
		return s
	}
	return s | 1<<uint(index)
}

// Off returns a copy of s with the bit at index cleared.
func (s ProtocolSwitch) Off(index int) ProtocolSwitch {
	if index < 0 || index >= switchBits {
		return s
	}
	return s &^ (1 << uint(index))
}

func (s ProtocolSwitch) CrcEnabled() bool {
	return s.IsOn(CrcSwitchIndex)
}

func (s ProtocolSwitch) String() string {
	return "0b" + strconv.FormatUint(uint64(s), 2)
}
