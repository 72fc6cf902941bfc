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

package log

import (
	"context"
	"net"
	"path"
	"strconv"

	mosnctx "mosn.io/bolt/pkg/context"
	"mosn.io/pkg/log"
)

// error code used by Errorf, alerts carry their own key
const defaultErrorCode = "normal"

// ConnLogger logs bolt runtime events. Every line is prefixed with the
// connection found in the context, rendered as [{connId},{remoteAddr}].
// Alerts are also copied to alert.{file} when the output is a file.
type ConnLogger struct {
	out   *log.SimpleErrorLog
	alert *log.SimpleErrorLog
}

// NewConnLogger opens output, one of stdout, stderr or a file path.
func NewConnLogger(output string, level log.Level) (*ConnLogger, error) {
	lg, err := log.GetOrCreateLogger(output, nil)
	if err != nil {
		return nil, err
	}
	l := &ConnLogger{
		out: &log.SimpleErrorLog{
			Logger:    lg,
			Formatter: log.DefaultFormatter,
			Level:     level,
		},
	}
	switch output {
	case "", "stdout", "stderr", "/dev/stderr", "/dev/stdout":
	default:
		dir, file := path.Split(output)
		alg, err := log.GetOrCreateLogger(path.Join(dir, "alert."+file), nil)
		if err != nil {
			return nil, err
		}
		l.alert = &log.SimpleErrorLog{
			Logger:    alg,
			Formatter: log.DefaultFormatter,
			Level:     log.ERROR,
		}
	}
	return l, nil
}

// Enabled reports whether a line at level would be written. Callers gate
// expensive argument building on it.
func (l *ConnLogger) Enabled(level log.Level) bool {
	return !l.out.Disable() && l.out.Level >= level
}

func (l *ConnLogger) Tracef(ctx context.Context, format string, args ...interface{}) {
	l.printf(ctx, log.TRACE, log.TracePre, "", format, args)
}

func (l *ConnLogger) Debugf(ctx context.Context, format string, args ...interface{}) {
	l.printf(ctx, log.DEBUG, log.DebugPre, "", format, args)
}

func (l *ConnLogger) Infof(ctx context.Context, format string, args ...interface{}) {
	l.printf(ctx, log.INFO, log.InfoPre, "", format, args)
}

func (l *ConnLogger) Warnf(ctx context.Context, format string, args ...interface{}) {
	l.printf(ctx, log.WARN, log.WarnPre, "", format, args)
}

func (l *ConnLogger) Errorf(ctx context.Context, format string, args ...interface{}) {
	l.printf(ctx, log.ERROR, log.ErrorPre, defaultErrorCode, format, args)
}

// Alertf logs at error level tagged with alert, one of the ErrorKey constants.
func (l *ConnLogger) Alertf(ctx context.Context, alert string, format string, args ...interface{}) {
	l.printf(ctx, log.ERROR, log.ErrorPre, alert, format, args)
	if l.alert != nil && !l.alert.Disable() {
		l.alert.Alertf(alert, connInfo(ctx)+" "+format, args...)
	}
}

func (l *ConnLogger) printf(ctx context.Context, level log.Level, pre, alert, format string, args []interface{}) {
	if !l.Enabled(level) {
		return
	}
	l.out.Printf(l.out.Formatter(pre, alert, connInfo(ctx)+" "+format), args...)
}

// connInfo renders [{connId},{remoteAddr}]
func connInfo(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	cid := "-"
	addr := "-"

	if connId, ok := mosnctx.Get(ctx, mosnctx.ContextKeyConnectionID).(uint64); ok {
		cid = strconv.FormatUint(connId, 10)
	}
	if remote, ok := mosnctx.Get(ctx, mosnctx.ContextKeyRemoteAddr).(net.Addr); ok && remote != nil {
		addr = remote.String()
	}

	return "[" + cid + "," + addr + "]"
}
