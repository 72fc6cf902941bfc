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
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"

	"mosn.io/bolt/pkg/log"
	"mosn.io/bolt/pkg/remoting"
)

// Listener accepts bolt connections and serves them with one shared command handler.
type Listener struct {
	localAddress string
	handler      *remoting.CommandHandler
	connConfig   ConnConfig

	rawl   net.Listener
	closed atomic.Bool

	mutex sync.Mutex
	conns map[uint64]*Conn
}

func NewListener(address string, handler *remoting.CommandHandler, cfg ConnConfig) *Listener {
	return &Listener{
		localAddress: address,
		handler:      handler,
		connConfig:   cfg,
		conns:        make(map[uint64]*Conn),
	}
}

// Listen binds the local address.
func (l *Listener) Listen() error {
	la, err := net.ResolveTCPAddr("tcp", l.localAddress)
	if err != nil {
		return err
	}
	rawl, err := net.ListenTCP("tcp", la)
	if err != nil {
		return err
	}
	l.rawl = rawl
	return nil
}

func (l *Listener) Addr() net.Addr {
	return l.rawl.Addr()
}

// Serve accepts connections until Close, rawl overrides the bound listener when not nil.
func (l *Listener) Serve(rawl net.Listener) error {
	if rawl != nil {
		l.rawl = rawl
	}
	log.DefaultLogger.Infof("[network] [listener] serving bolt on %s", l.rawl.Addr())

	var tempDelay time.Duration
	for {
		rawc, err := l.rawl.Accept()
		if err != nil {
			if l.closed.Load() {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > time.Second {
					tempDelay = time.Second
				}
				log.DefaultLogger.Warnf("[network] [listener] accept error: %v, retrying in %s", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			log.DefaultLogger.Errorf("[network] [listener] accept failed: %v", err)
			return err
		}
		tempDelay = 0
		l.onAccept(rawc)
	}
}

func (l *Listener) onAccept(rawc net.Conn) {
	conn := NewConn(rawc, l.handler, nil, l.connConfig)
	conn.AddCloseCallback(l.remove)

	l.mutex.Lock()
	if l.closed.Load() {
		l.mutex.Unlock()
		rawc.Close()
		return
	}
	l.conns[conn.ID()] = conn
	l.mutex.Unlock()

	if log.DefaultLogger.GetLogLevel() >= log.DEBUG {
		log.DefaultLogger.Debugf("[network] [listener] accept connection %d from %s", conn.ID(), rawc.RemoteAddr())
	}
	conn.Start()
}

func (l *Listener) remove(c *Conn) {
	l.mutex.Lock()
	delete(l.conns, c.ID())
	l.mutex.Unlock()
}

// Connections returns the number of open connections.
func (l *Listener) Connections() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.conns)
}

// Close stops accepting and closes every open connection.
func (l *Listener) Close() error {
	if !l.closed.CAS(false, true) {
		return nil
	}
	var err error
	if l.rawl != nil {
		err = l.rawl.Close()
	}

	l.mutex.Lock()
	conns := make([]*Conn, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.mutex.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return err
}
