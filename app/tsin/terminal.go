// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/mpegts"
	"github.com/q191201771/tsin/pkg/tsin"
)

type esChannel struct {
	esId       uint32
	streamType uint8
}

func (ch *esChannel) String() string {
	return fmt.Sprintf("es(%d)", ch.esId)
}

type channelStat struct {
	ch      *esChannel
	nPacket uint64
	nByte   uint64
	nPcr    uint64
	lastCts uint64
	eos     bool
}

// logTerminal 把收到的数据打印到日志中，并模拟一个实时消费的缓冲
//
// 注意，回调都在Session内部协程中执行，回调中不能同步调用Session的方法，否则会死锁
//
type logTerminal struct {
	session *tsin.Session
	playAll bool
	dump    base.LogDump

	mu       sync.Mutex
	channels map[uint32]*channelStat
	hasVideo bool
	hasAudio bool
	doneCh   chan struct{}
	doneOnce sync.Once

	// 以下只在回调中访问
	hasClock   bool
	clockWall  time.Time
	clockStart uint64 // ms
	clockMax   uint64 // ms
}

func newLogTerminal(playAll bool) *logTerminal {
	return &logTerminal{
		playAll:  playAll,
		dump:     base.NewLogDump(nazalog.GetGlobalLogger(), 16),
		channels: make(map[uint32]*channelStat),
		doneCh:   make(chan struct{}),
	}
}

func (t *logTerminal) OnConnect(ch tsin.Channel, err error) {
	if ch == nil {
		if err != nil {
			nazalog.Errorf("service connect failed. err=%+v", err)
			t.finish()
			return
		}
		nazalog.Infof("service connected.")
		return
	}
	nazalog.Infof("channel connected. ch=%s, err=%v", ch, err)
}

func (t *logTerminal) OnDisconnect(ch tsin.Channel, err error) {
	nazalog.Infof("disconnected. ch=%v, err=%v", ch, err)
}

func (t *logTerminal) AddMedia(od *tsin.ObjectDescriptor, noSceneUpdate bool) {
	if od == nil {
		nazalog.Infof("scene update.")
		return
	}
	nazalog.Infof("add media. od=%s, no_scene_update=%t", od, noSceneUpdate)

	for _, esd := range od.Esds {
		if !t.shouldPlay(esd) {
			continue
		}
		ch := &esChannel{esId: esd.EsId, streamType: esd.StreamType}
		t.mu.Lock()
		t.channels[esd.EsId] = &channelStat{ch: ch}
		t.mu.Unlock()
		go t.play(ch)
	}
}

func (t *logTerminal) OnSlPacket(ch tsin.Channel, payload []byte, hdr *mpegts.SlHeader) {
	c, ok := ch.(*esChannel)
	if !ok {
		return
	}

	t.mu.Lock()
	cs := t.channels[c.esId]
	if cs != nil {
		if hdr != nil && hdr.M2tsPcr != 0 {
			cs.nPcr++
		} else {
			cs.nPacket++
			cs.nByte += uint64(len(payload))
			if hdr != nil && hdr.CompositionTimeStampFlag {
				cs.lastCts = hdr.CompositionTimeStamp
			}
		}
	}
	t.mu.Unlock()

	if hdr != nil && hdr.CompositionTimeStampFlag {
		t.updateClock(hdr.CompositionTimeStamp / 90)
	}

	if t.dump.ShouldDump(c.esId) {
		n := len(payload)
		if n > 32 {
			n = 32
		}
		if hdr == nil {
			t.dump.Outf("sl packet. ch=%s, len=%d, hdr=nil, payload=%s", c, len(payload), hex.EncodeToString(payload[:n]))
		} else {
			t.dump.Outf("sl packet. ch=%s, len=%d, rap=%t, cts=%d, dts=%d, pcr=%d(%d), payload=%s",
				c, len(payload), hdr.RandomAccessPointFlag, hdr.CompositionTimeStamp, hdr.DecodingTimeStamp,
				hdr.M2tsPcr, hdr.ObjectClockReference, hex.EncodeToString(payload[:n]))
		}
	}
}

func (t *logTerminal) OnServiceEvent(evt tsin.ServiceEvent) {
	switch evt.Type {
	case tsin.ServiceEventPatFound:
		nazalog.Infof("pat found. program count=%d", evt.ProgramCount)
	case tsin.ServiceEventAitFound:
		nazalog.Infof("ait found. pid=%d, len=%d", evt.Pid, len(evt.Section))
	}
}

func (t *logTerminal) OnEndOfStream(ch tsin.Channel) {
	nazalog.Infof("end of stream. ch=%v", ch)
	c, ok := ch.(*esChannel)
	if !ok {
		return
	}

	t.mu.Lock()
	if cs := t.channels[c.esId]; cs != nil {
		cs.eos = true
	}
	all := true
	for _, cs := range t.channels {
		if !cs.eos {
			all = false
		}
	}
	t.mu.Unlock()

	if all {
		t.finish()
	}
}

// BufferOccupancyMs 按收到的最大CTS与墙上时钟的差值估算缓冲时长
func (t *logTerminal) BufferOccupancyMs() uint32 {
	if !t.hasClock {
		return 0
	}
	played := uint64(time.Since(t.clockWall).Milliseconds())
	buffered := t.clockMax - t.clockStart
	if buffered <= played {
		return 0
	}
	return uint32(buffered - played)
}

func (t *logTerminal) Done() <-chan struct{} {
	return t.doneCh
}

func (t *logTerminal) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []uint32
	for id := range t.channels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var sb strings.Builder
	for _, id := range ids {
		cs := t.channels[id]
		sb.WriteString(fmt.Sprintf("[es=%d, st=0x%02x, packet=%d, byte=%d, pcr=%d, cts=%d, eos=%t]",
			id, cs.ch.streamType, cs.nPacket, cs.nByte, cs.nPcr, cs.lastCts, cs.eos))
	}
	return sb.String()
}

// ----- private -------------------------------------------------------------------------------------------------------

func (t *logTerminal) shouldPlay(esd tsin.EsDescriptor) bool {
	if t.playAll {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch esd.StreamType {
	case tsin.ObjectStreamTypeVisual:
		if !t.hasVideo {
			t.hasVideo = true
			return true
		}
	case tsin.ObjectStreamTypeAudio:
		if !t.hasAudio {
			t.hasAudio = true
			return true
		}
	}
	return false
}

func (t *logTerminal) play(ch *esChannel) {
	if err := t.session.ConnectChannel(ch, fmt.Sprintf("ES_ID=%d", ch.esId)); err != nil {
		nazalog.Warnf("connect channel failed. ch=%s, err=%+v", ch, err)
		t.removeChannel(ch)
		return
	}

	bufCmd := &tsin.Command{Type: tsin.CommandBuffer, Channel: ch}
	if err := t.session.ServiceCommand(bufCmd); err == nil {
		nazalog.Debugf("channel buffer. ch=%s, max=%dms, min=%dms", ch, bufCmd.BufferMaxMs, bufCmd.BufferMinMs)
	}

	if err := t.session.ServiceCommand(&tsin.Command{Type: tsin.CommandPlay, Channel: ch}); err != nil {
		nazalog.Warnf("play channel failed. ch=%s, err=%+v", ch, err)
		t.removeChannel(ch)
	}
}

func (t *logTerminal) removeChannel(ch *esChannel) {
	t.mu.Lock()
	delete(t.channels, ch.esId)
	t.mu.Unlock()
}

func (t *logTerminal) updateClock(ms uint64) {
	if !t.hasClock {
		t.hasClock = true
		t.clockWall = time.Now()
		t.clockStart = ms
		t.clockMax = ms
		return
	}
	if ms < t.clockStart {
		// 时间戳回退或者回绕，重新计时
		t.clockWall = time.Now()
		t.clockStart = ms
		t.clockMax = ms
		return
	}
	if ms > t.clockMax {
		t.clockMax = ms
	}
}

func (t *logTerminal) finish() {
	t.doneOnce.Do(func() {
		close(t.doneCh)
	})
}
