// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"fmt"

	"github.com/q191201771/naza/pkg/nazalog"
)

// LogDump 按key(比如pid)限制打印次数的日志，用于打印每条流开始的若干个包
//
// 日志级别为trace时总是打印，为debug时每个key最多打印debugMaxNum次，更高级别时不打印
//
type LogDump struct {
	log         nazalog.Logger
	debugMaxNum int

	key2count map[uint32]int
}

func NewLogDump(log nazalog.Logger, debugMaxNum int) LogDump {
	return LogDump{
		log:         log,
		debugMaxNum: debugMaxNum,
		key2count:   make(map[uint32]int),
	}
}

func (ld *LogDump) ShouldDump(key uint32) bool {
	switch ld.log.GetOption().Level {
	case nazalog.LevelTrace:
		return true
	case nazalog.LevelDebug:
		if ld.key2count[key] >= ld.debugMaxNum {
			return false
		}
		ld.key2count[key]++
		return true
	}
	return false
}

// Reset 节目表变化后，重新开始计数
func (ld *LogDump) Reset() {
	ld.key2count = make(map[uint32]int)
}

// Outf
//
// 调用之前需调用 ShouldDump ，避免不需要打印时构造实参的开销，比如hex.Dump
//
func (ld *LogDump) Outf(format string, v ...interface{}) {
	ld.log.Out(ld.log.GetOption().Level, 3, fmt.Sprintf(format, v...))
}
