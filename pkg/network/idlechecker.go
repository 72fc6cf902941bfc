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
	"math"
	"time"

	"go.uber.org/atomic"
	"mosn.io/pkg/buffer"

	"mosn.io/bolt/pkg/log"
)

// getIdleCount calculates the idle timeout as max idle count.
func getIdleCount(readTimeout time.Duration, idleTimeout time.Duration) uint32 {
	if idleTimeout <= 0 {
		return 0
	}
	if readTimeout == 0 {
		readTimeout = buffer.ConnReadTimeout
	}
	fd := float64(idleTimeout)
	ft := float64(readTimeout)
	return uint32(math.Ceil(fd / ft))
}

// idleChecker closes a connection that saw no inbound bytes for maxIdleCount read timeouts.
type idleChecker struct {
	conn         *Conn
	maxIdleCount uint32
	idleCount    atomic.Uint32
}

func newIdleChecker(conn *Conn, readTimeout time.Duration, idleTimeout time.Duration) *idleChecker {
	checker := &idleChecker{
		conn:         conn,
		maxIdleCount: getIdleCount(readTimeout, idleTimeout),
	}
	if checker.maxIdleCount > 0 && log.DefaultLogger.GetLogLevel() >= log.DEBUG {
		log.DefaultLogger.Debugf("[network] new idle checker, maxIdleCount: %d, conn: %d", checker.maxIdleCount, conn.id)
	}
	return checker
}

func (c *idleChecker) onRead() {
	c.idleCount.Store(0)
}

// onReadTimeout reports whether the connection should be closed.
func (c *idleChecker) onReadTimeout() bool {
	if c.maxIdleCount == 0 {
		return false
	}
	count := c.idleCount.Inc()
	if log.DefaultLogger.GetLogLevel() >= log.DEBUG {
		log.DefaultLogger.Debugf("[network] [idle checker] connection %d idle %d times, maxIdleCount: %d", c.conn.id, count, c.maxIdleCount)
	}
	return count >= c.maxIdleCount
}
