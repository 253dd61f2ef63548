// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsin

import (
	"time"

	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/mpegts"
	"github.com/q191201771/tsin/pkg/tsdemux"
)

// clockRegulator 用PCR和墙上时钟比较，得到读取领先播放的时长
//
// 注意，PCR为0是合法的第一个采样，所以用hasReference而不是pcrLast==0判断
//
type clockRegulator struct {
	hasReference  bool
	pcrLast       uint64 // 27MHz
	wallAtLastPcr int64  // 毫秒
	nbPck         uint64 // 上一个调节点之后收到的PCR个数

	jumpThresholdMs uint32
	jumpClampMs     uint32
}

// update 输入一个新的PCR采样
//
// @return drift: 大于0时表示读取领先，需要等待的毫秒数
//
func (r *clockRegulator) update(pcr uint64, nowMs int64) (drift int64) {
	r.nbPck++
	if !r.hasReference {
		r.reset(pcr, nowMs)
		return 0
	}

	if pcr < r.pcrLast {
		Log.Errorf("%+v. pcr went backward, reset reference. last=%d, now=%d", base.ErrMalformedPcr, r.pcrLast, pcr)
		r.reset(pcr, nowMs)
		return 0
	}

	deltaMs := int64((pcr - r.pcrLast) / mpegts.PcrTicksPerMs)
	if r.jumpThresholdMs > 0 && deltaMs > int64(r.jumpThresholdMs) {
		Log.Errorf("%+v. pcr jump. delta=%dms, clamp to %dms", base.ErrMalformedPcr, deltaMs, r.jumpClampMs)
		return int64(r.jumpClampMs)
	}

	elapsed := nowMs - r.wallAtLastPcr
	return deltaMs - elapsed
}

func (r *clockRegulator) reset(pcr uint64, nowMs int64) {
	r.hasReference = true
	r.pcrLast = pcr
	r.wallAtLastPcr = nowMs
	r.nbPck = 0
}

// onPcr 时钟调节
//
// 1. 绑定了通道的PCR流，先转发一个只带OCR的包
// 2. 标记节目时钟已初始化
// 3. 不连续点只记录日志
// 4. 需要调节时，读取领先并且终端缓冲达到阈值则等待
//
func (c *controller) onPcr(prog *tsdemux.Program, s *tsdemux.Stream, pcr *tsdemux.PcrUnit) {
	if s != nil && s.User != nil {
		hdr := mpegts.SlHeader{
			OcrFlag:              true,
			ObjectClockReference: pcr.Value,
			M2tsPcr:              1,
		}
		if pcr.Discontinuity {
			hdr.M2tsPcr = 2
		}
		c.terminal.OnSlPacket(s.User, nil, &hdr)
	}

	prog.ClockInitialized = true

	if pcr.Discontinuity {
		Log.Infof("[%s] pcr discontinuity. program=%d, pcr=%d", c.uniqueKey, prog.Number, pcr.Value)
		return
	}

	if !c.regulate.Load() {
		return
	}

	now := c.nowMs()
	drift := c.clock.update(pcr.Value, now)
	if drift <= 0 {
		if drift < 0 {
			Log.Debugf("[%s] reading behind schedule. drift=%dms", c.uniqueKey, drift)
		}
		return
	}

	c.waitDrift(drift)
	c.clock.reset(pcr.Value, c.nowMs())
}

// waitDrift 读取领先时，终端缓冲达到阈值就一直等待，期间处理排队中的命令，收到Stop后立即退出
func (c *controller) waitDrift(drift int64) {
	Log.Debugf("[%s] reading ahead of schedule. drift=%dms", c.uniqueKey, drift)
	sleep := time.Duration(c.option.RegulateSleepMs) * time.Millisecond
	for c.runState == RunStateRunning {
		if c.terminal.BufferOccupancyMs() < c.option.BufferMaxMs {
			return
		}
		time.Sleep(sleep)
		c.drainCommands()
	}
}

func nowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
