// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsin

import (
	"github.com/q191201771/tsin/pkg/mpegts"
	"github.com/q191201771/tsin/pkg/tsdemux"
)

// onEvent 解析引擎的事件回调，在loop协程中执行
func (c *controller) onEvent(evt tsdemux.Event) {
	switch evt.Type {
	case tsdemux.EventPatFound:
		n := len(c.engine.Programs())
		if n == 1 {
			c.markConnected()
		}
		c.terminal.OnServiceEvent(ServiceEvent{Type: ServiceEventPatFound, ProgramCount: n})
	case tsdemux.EventPatRepeat, tsdemux.EventPatUpdate:
		// noop
	case tsdemux.EventPmtFound:
		// 多节目时PAT阶段没有通知连接成功，在第一个PMT时通知
		c.markConnected()
		c.setupProgram(evt.Program, c.requestAll, !c.requestAll)
		c.flush()
	case tsdemux.EventPmtUpdate:
		_, selected := c.selectedPrograms[evt.Program.Number]
		noDeclare := !c.requestAll && !selected
		c.dump.Reset()
		c.setupProgram(evt.Program, c.requestAll, noDeclare)
		c.flush()
	case tsdemux.EventPmtRepeat,
		tsdemux.EventSdtFound, tsdemux.EventSdtRepeat, tsdemux.EventSdtUpdate:
		c.flush()
	case tsdemux.EventDvbGeneral:
		if c.epgChannel != nil && evt.Section != nil {
			c.terminal.OnSlPacket(c.epgChannel, evt.Section.Section, nil)
		}
	case tsdemux.EventPesPacket:
		c.onPes(evt)
	case tsdemux.EventSlPacket:
		c.onSl(evt)
	case tsdemux.EventAacConfig:
		c.onAacConfig(evt)
	case tsdemux.EventPcr:
		c.onPcr(evt.Program, evt.Stream, evt.Pcr)
	case tsdemux.EventAitFound:
		sevt := ServiceEvent{Type: ServiceEventAitFound}
		if evt.Stream != nil {
			sevt.Pid = evt.Stream.Pid
		}
		if evt.Section != nil {
			sevt.Section = evt.Section.Section
		}
		c.terminal.OnServiceEvent(sevt)
	default:
		Log.Warnf("[%s] unknown event. type=%s", c.uniqueKey, evt.Type)
	}
}

func (c *controller) onPes(evt tsdemux.Event) {
	s := evt.Stream
	if s.User == nil || !s.Program.ClockInitialized {
		return
	}
	pes := evt.Pes
	if c.dump.ShouldDump(uint32(s.Pid)) {
		c.dump.Outf("[%s] pes. %s, len=%d, pts=%d, dts=%d, rap=%t", c.uniqueKey, s.String(), len(pes.Data), pes.Pts, pes.Dts, pes.Rap)
	}
	hdr := mpegts.SlHeader{
		AccessUnitStartFlag:      true,
		CompositionTimeStampFlag: pes.HasPts,
		CompositionTimeStamp:     pes.Pts,
		RandomAccessPointFlag:    pes.Rap,
	}
	if pes.HasDts {
		hdr.DecodingTimeStampFlag = true
		hdr.DecodingTimeStamp = pes.Dts
	}
	c.terminal.OnSlPacket(s.User, pes.Data, &hdr)
}

func (c *controller) onSl(evt tsdemux.Event) {
	s := evt.Stream
	if s.User == nil || (!s.Program.ClockInitialized && !s.IsSection) {
		return
	}

	var data []byte
	var version uint8
	fromSection := false
	switch {
	case evt.Pes != nil:
		data = evt.Pes.Data
	case evt.Section != nil:
		data = evt.Section.Payload
		version = evt.Section.Version
		fromSection = true
	default:
		return
	}

	if s.SlConfig == nil {
		hdr := mpegts.SlHeader{AccessUnitStartFlag: true, AccessUnitEndFlag: true}
		if fromSection {
			hdr.M2tsVersionNumberPlusOne = version + 1
		}
		c.terminal.OnSlPacket(s.User, data, &hdr)
		return
	}

	hdr, headerLen, err := mpegts.Depacketize(s.SlConfig, data)
	if err != nil {
		Log.Warnf("[%s] depacketize sl failed. %s, err=%+v", c.uniqueKey, s.String(), err)
		return
	}
	if fromSection {
		hdr.M2tsVersionNumberPlusOne = version + 1
	}
	c.terminal.OnSlPacket(s.User, data[headerLen:], &hdr)
}

// onAacConfig 从ADTS头或者LATM的StreamMuxConfig中得到AudioSpecificConfig后完成AAC流的第二步声明
func (c *controller) onAacConfig(evt tsdemux.Event) {
	s := evt.Stream
	if s.Aac != tsdemux.AacAwaitingConfig {
		return
	}
	Log.Infof("[%s] aac config found. %s, asc=%x", c.uniqueKey, s.String(), evt.Config)

	c.engine.SetFraming(s, tsdemux.FramingSkipNoReset)
	s.Aac = tsdemux.AacConfigured
	c.declare(s, evt.Config)
	if c.sourceKind.IsRegulated() {
		c.regulate.Store(true)
	}
	s.Program.ClockInitialized = true
	c.terminal.AddMedia(nil, false)
}
