// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsin

import (
	"errors"

	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/ingest"
	"github.com/q191201771/tsin/pkg/tsdemux"
)

// RunState 读取协程的状态
type RunState int

const (
	RunStateNotStarted RunState = iota
	RunStateRunning
	RunStateStopRequested
	RunStateStopped
)

func (s RunState) String() string {
	switch s {
	case RunStateNotStarted:
		return "NOT_STARTED"
	case RunStateRunning:
		return "RUNNING"
	case RunStateStopRequested:
		return "STOP_REQUESTED"
	case RunStateStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// iWorkerControl 读取协程的启停，由Session实现，单元测试中替换
type iWorkerControl interface {
	// start 启动读取协程，调用后状态为Running
	start()

	// stop 请求读取协程退出，退出完成后Session会调用 controller.onWorkerStopped
	stop()

	// seek 输入源跳到指定的播放位置，输入源不支持时忽略
	seek(ms uint64)
}

type progRequest struct {
	fragment string
}

// controller 保存Session的全部状态，只在Session的loop协程中访问
//
// 除了 playing regulate firstByte 会被feed协程访问，其他字段没有并发访问
//
type controller struct {
	uniqueKey string
	option    SessionOption
	terminal  ITerminal
	engine    *tsdemux.Engine
	worker    iWorkerControl

	runState RunState
	playing  nazaatomic.Int32
	regulate nazaatomic.Bool

	// 输入源相关
	sourceKind ingest.SourceKind
	durationMs uint64
	hasTuner   bool
	tunerVpid  uint16
	tunerApid  uint16
	firstByte  nazaatomic.Bool // feed协程写入

	// 选择请求
	pidRequests      []uint16
	progRequests     []progRequest
	epgRequested     bool
	epgDeclared      bool
	requestAll       bool
	selectedPrograms map[uint16]struct{}

	epgChannel Channel
	connected  bool
	closing    bool

	clock clockRegulator

	// stop 等待读取协程退出的回复
	stopWaiters []func(error)

	// drainCommands 时钟调节等待期间处理排队中的命令，由Session注入
	drainCommands func()

	nowMs func() int64

	dump base.LogDump
}

func newController(uniqueKey string, terminal ITerminal, option SessionOption) *controller {
	c := &controller{
		uniqueKey:        uniqueKey,
		option:           option,
		terminal:         terminal,
		selectedPrograms: make(map[uint16]struct{}),
		drainCommands:    func() {},
		nowMs:            nowMs,
		dump:             base.NewLogDump(Log, 16),
	}
	c.clock.jumpThresholdMs = option.PcrJumpThresholdMs
	c.clock.jumpClampMs = option.PcrJumpClampMs
	c.engine = tsdemux.NewEngine(uniqueKey, c.onEvent)
	return c
}

// setSource 输入源打开后调用
func (c *controller) setSource(s ingest.ISource) {
	c.sourceKind = s.Kind()
	c.durationMs = uint64(s.Duration().Milliseconds())
	if ts, ok := s.(ingest.ITunedSource); ok {
		c.hasTuner = true
		c.tunerVpid, c.tunerApid = ts.TunedPids()
	}
}

func (c *controller) startWorker() {
	if c.worker == nil || c.closing {
		return
	}
	Log.Debugf("[%s] start worker. regulate=%t, playing=%d", c.uniqueKey, c.regulate.Load(), c.playing.Load())
	c.runState = RunStateRunning
	c.worker.start()
}

// restartUnregulated 没有通道在播放，但还有未解析的请求时，不按节奏全速读取
func (c *controller) restartUnregulated() {
	if c.closing {
		return
	}
	c.regulate.Store(false)
	c.startWorker()
}

// onWorkerStopped 读取协程退出
//
// @param err: 正常读完时为nil，被stop时为context.Canceled
//
func (c *controller) onWorkerStopped(err error) {
	prev := c.runState
	c.runState = RunStateStopped
	Log.Infof("[%s] worker stopped. prev=%s, err=%v", c.uniqueKey, prev, err)

	if prev != RunStateStopRequested {
		// 读完数据正常结束时err为 base.ErrEndOfStream
		if err != nil && !errors.Is(err, base.ErrEndOfStream) && !c.firstByte.Load() && !c.connected {
			c.terminal.OnConnect(nil, err)
		} else {
			c.notifyEndOfStream()
		}
	}

	waiters := c.stopWaiters
	c.stopWaiters = nil
	for _, done := range waiters {
		done(nil)
	}

	if prev != RunStateStopRequested || c.closing {
		return
	}
	// 等待退出期间又有通道开始播放
	if c.playing.Load() > 0 {
		c.startWorker()
		return
	}
	if len(c.progRequests) > 0 {
		Log.Debugf("[%s] restart worker for pending fragment requests. n=%d", c.uniqueKey, len(c.progRequests))
		c.restartUnregulated()
	}
}

// closeService 请求读取协程退出，退出后回复done
func (c *controller) closeService(done func(error)) {
	c.closing = true
	Log.Infof("[%s] close service. run state=%s", c.uniqueKey, c.runState)
	c.terminal.OnDisconnect(nil, nil)
	if c.runState != RunStateRunning && c.runState != RunStateStopRequested {
		done(nil)
		return
	}
	c.runState = RunStateStopRequested
	c.stopWaiters = append(c.stopWaiters, done)
	c.worker.stop()
}

func (c *controller) notifyEndOfStream() {
	for _, prog := range c.engine.Programs() {
		for _, s := range prog.Streams {
			if s.User != nil {
				c.terminal.OnEndOfStream(s.User)
			}
		}
	}
	if c.epgChannel != nil {
		c.terminal.OnEndOfStream(c.epgChannel)
	}
}

func (c *controller) markConnected() {
	if c.connected {
		return
	}
	c.connected = true
	Log.Infof("[%s] service connected.", c.uniqueKey)
	c.terminal.OnConnect(nil, nil)
}
