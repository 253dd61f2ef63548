// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsdemux

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsin/pkg/aac"
	"github.com/q191201771/tsin/pkg/mpegts"
)

type eventRecorder struct {
	events []Event
	hook   func(evt Event)
}

func (r *eventRecorder) onEvent(evt Event) {
	r.events = append(r.events, evt)
	if r.hook != nil {
		r.hook(evt)
	}
}

func (r *eventRecorder) types() []EventType {
	var out []EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *eventRecorder) reset() {
	r.events = nil
}

func newTestEngine() (*Engine, *eventRecorder) {
	r := &eventRecorder{}
	return NewEngine("TEST", r.onEvent), r
}

func patUnit(programs ...PatProgram) Unit {
	return Unit{Pid: mpegts.PidPat, Pat: &PatUnit{TransportStreamId: 1, Programs: programs}}
}

func pmtUnit(number uint16, pcrPid uint16, streams ...PmtStream) Unit {
	return Unit{Pid: 0x1000, Pmt: &PmtUnit{ProgramNumber: number, PcrPid: pcrPid, Streams: streams}}
}

func TestEnginePat(t *testing.T) {
	e, r := newTestEngine()

	e.OnUnit(patUnit(PatProgram{Number: 0, PmtPid: 0x10}, PatProgram{Number: 1, PmtPid: 0x1000}))
	e.OnUnit(patUnit(PatProgram{Number: 0, PmtPid: 0x10}, PatProgram{Number: 1, PmtPid: 0x1000}))
	e.OnUnit(patUnit(PatProgram{Number: 1, PmtPid: 0x1000}, PatProgram{Number: 2, PmtPid: 0x1001}))

	assert.Equal(t, []EventType{EventPatFound, EventPatRepeat, EventPatUpdate}, r.types())
	assert.Equal(t, 2, len(e.Programs()))
	assert.Equal(t, uint16(0x1001), e.ProgramByNumber(2).PmtPid)
	assert.Equal(t, true, e.ProgramByNumber(0) == nil)
}

func TestEnginePmt(t *testing.T) {
	e, r := newTestEngine()
	e.OnUnit(patUnit(PatProgram{Number: 1, PmtPid: 0x1000}))
	r.reset()

	video := PmtStream{Pid: 0x100, StreamType: mpegts.StreamTypeAvc}
	audio := PmtStream{Pid: 0x101, StreamType: mpegts.StreamTypeAacAdts}
	e.OnUnit(pmtUnit(1, 0x100, video, audio))
	e.OnUnit(pmtUnit(1, 0x100, video, audio))

	sect := PmtStream{Pid: 0x102, StreamType: mpegts.StreamTypeMpeg4SlSect, Mpeg4EsId: 3}
	// 更新后的PMT中即使去掉了某个流，已有的流也保留
	e.OnUnit(pmtUnit(1, 0x100, video, sect))

	assert.Equal(t, []EventType{EventPmtFound, EventPmtRepeat, EventPmtUpdate}, r.types())
	prog := e.ProgramByNumber(1)
	assert.Equal(t, true, prog.PmtSeen())
	assert.Equal(t, 3, len(prog.Streams))
	assert.Equal(t, prog, r.events[0].Program)

	s := e.StreamByPid(0x101)
	assert.Equal(t, FramingSkip, s.Framing)
	assert.Equal(t, AacAwaitingConfig, s.Aac)
	assert.Equal(t, uint32(0x101), s.EsId())

	s = e.StreamByPid(0x102)
	assert.Equal(t, true, s.IsSection)
	assert.Equal(t, uint32(3), s.EsId())
	assert.Equal(t, AacNone, s.Aac)
}

func TestEnginePes(t *testing.T) {
	e, r := newTestEngine()
	e.OnUnit(pmtUnit(1, 0x100,
		PmtStream{Pid: 0x100, StreamType: mpegts.StreamTypeAvc},
		PmtStream{Pid: 0x103, StreamType: mpegts.StreamTypeMpeg4SlPes}))
	r.reset()

	pes := &PesUnit{Data: []byte{1, 2, 3}, HasPts: true, Pts: 90000}
	e.OnUnit(Unit{Pid: 0x100, Pes: pes})
	e.OnUnit(Unit{Pid: 0x200, Pes: pes})
	assert.Equal(t, 0, len(r.events))

	e.SetFraming(e.StreamByPid(0x100), FramingDefault)
	e.OnUnit(Unit{Pid: 0x100, Pes: pes})
	e.SetFraming(e.StreamByPid(0x103), FramingDefault)
	e.OnUnit(Unit{Pid: 0x103, Pes: pes})
	assert.Equal(t, []EventType{EventPesPacket, EventSlPacket}, r.types())
	assert.Equal(t, pes, r.events[0].Pes)
	assert.Equal(t, uint16(0x100), r.events[0].Stream.Pid)

	e.SetFraming(e.StreamByPid(0x100), FramingSkipNoReset)
	r.reset()
	e.OnUnit(Unit{Pid: 0x100, Pes: pes})
	assert.Equal(t, 0, len(r.events))
}

func TestEngineAacConfig(t *testing.T) {
	e, r := newTestEngine()
	e.OnUnit(pmtUnit(1, 0x101, PmtStream{Pid: 0x101, StreamType: mpegts.StreamTypeAacAdts}))
	s := e.StreamByPid(0x101)
	e.SetFraming(s, FramingDefault)
	r.reset()

	ascCtx := aac.AscContext{AudioObjectType: 2, SamplingFrequencyIndex: 3, ChannelConfiguration: 2}
	data := append(ascCtx.PackAdtsHeader(10), make([]byte, 10)...)

	// 模拟上层收到配置后切换framing
	r.hook = func(evt Event) {
		if evt.Type == EventAacConfig {
			evt.Stream.Aac = AacConfigured
			e.SetFraming(evt.Stream, FramingSkipNoReset)
		}
	}
	e.OnUnit(Unit{Pid: 0x101, Pes: &PesUnit{Data: data}})
	assert.Equal(t, []EventType{EventAacConfig}, r.types())
	assert.Equal(t, ascCtx.Pack(), r.events[0].Config)

	e.SetFraming(s, FramingDefault)
	r.reset()
	e.OnUnit(Unit{Pid: 0x101, Pes: &PesUnit{Data: data}})
	assert.Equal(t, []EventType{EventPesPacket}, r.types())
}

func TestEngineLatmConfig(t *testing.T) {
	e, r := newTestEngine()
	e.OnUnit(pmtUnit(1, 0x100,
		PmtStream{Pid: 0x100, StreamType: mpegts.StreamTypeAvc},
		PmtStream{Pid: 0x101, StreamType: mpegts.StreamTypeAacLatm},
	))
	s := e.StreamByPid(0x101)
	assert.Equal(t, AacAwaitingConfig, s.Aac)
	e.SetFraming(s, FramingDefault)
	r.reset()

	// ADTS形式的负载不会被当作LATM配置
	ascCtx := aac.AscContext{AudioObjectType: 2, SamplingFrequencyIndex: 4, ChannelConfiguration: 1}
	e.OnUnit(Unit{Pid: 0x101, Pes: &PesUnit{Data: append(ascCtx.PackAdtsHeader(10), make([]byte, 10)...)}})
	assert.Equal(t, []EventType{EventPesPacket}, r.types())

	r.reset()
	e.OnUnit(Unit{Pid: 0x101, Pes: &PesUnit{Data: ascCtx.PackLoasFrame(make([]byte, 20))}})
	assert.Equal(t, []EventType{EventAacConfig, EventPesPacket}, r.types())
	assert.Equal(t, ascCtx.Pack(), r.events[0].Config)
	assert.Equal(t, s, r.events[0].Stream)
}

func TestEnginePcr(t *testing.T) {
	e, r := newTestEngine()
	e.OnUnit(patUnit(PatProgram{Number: 1, PmtPid: 0x1000}, PatProgram{Number: 2, PmtPid: 0x1001}))
	e.OnUnit(pmtUnit(1, 0x100, PmtStream{Pid: 0x100, StreamType: mpegts.StreamTypeAvc}))
	r.reset()

	// program 2的PMT还没有出现，PCR只属于program 1
	e.OnUnit(Unit{Pid: 0x100, Pcr: &PcrUnit{Value: 27000000}})
	e.OnUnit(Unit{Pid: 0x1FF, Pcr: &PcrUnit{Value: 27000000}})
	assert.Equal(t, []EventType{EventPcr}, r.types())
	assert.Equal(t, uint16(1), r.events[0].Program.Number)
	assert.Equal(t, uint16(0x100), r.events[0].Stream.Pid)
	assert.Equal(t, uint64(27000000), r.events[0].Pcr.Value)
}

func TestEngineSection(t *testing.T) {
	e, r := newTestEngine()
	e.OnUnit(pmtUnit(1, 0x100, PmtStream{Pid: 0x102, StreamType: mpegts.StreamTypeMpeg4SlSect}))
	r.reset()

	sec := func(tableId uint8, version uint8) *SectionUnit {
		return &SectionUnit{TableId: tableId, Version: version, Payload: []byte{0xAB}}
	}
	e.OnUnit(Unit{Pid: 0x102, Section: sec(mpegts.TableIdOd, 1)})
	e.OnUnit(Unit{Pid: 0x102, Section: sec(mpegts.TableIdOd, 1)})
	e.OnUnit(Unit{Pid: 0x102, Section: sec(mpegts.TableIdOd, 2)})
	assert.Equal(t, []EventType{EventSlPacket, EventSlPacket}, r.types())

	r.reset()
	e.StreamByPid(0x102).SendRepeatedSections = true
	e.OnUnit(Unit{Pid: 0x102, Section: sec(mpegts.TableIdOd, 2)})
	assert.Equal(t, []EventType{EventSlPacket}, r.types())

	r.reset()
	e.OnUnit(Unit{Pid: mpegts.PidEit, Section: sec(mpegts.TableIdEitStart, 0)})
	e.OnUnit(Unit{Pid: mpegts.PidEit, Section: sec(0x42, 0)})
	e.OnUnit(Unit{Pid: 0x300, Section: sec(mpegts.TableIdAit, 0)})
	assert.Equal(t, []EventType{EventDvbGeneral, EventAitFound}, r.types())
}

func TestEngineSdt(t *testing.T) {
	e, r := newTestEngine()
	news := Service{Id: 1, Name: "News"}
	sport := Service{Id: 2, Name: "Sport"}
	e.OnUnit(Unit{Pid: mpegts.PidSdt, Sdt: &SdtUnit{Services: []Service{news}}})
	e.OnUnit(Unit{Pid: mpegts.PidSdt, Sdt: &SdtUnit{Services: []Service{news}}})
	e.OnUnit(Unit{Pid: mpegts.PidSdt, Sdt: &SdtUnit{Services: []Service{news, sport}}})
	assert.Equal(t, []EventType{EventSdtFound, EventSdtRepeat, EventSdtUpdate}, r.types())
	assert.Equal(t, []Service{news, sport}, e.Services())
}

func TestSplitSections(t *testing.T) {
	pat := mpegts.PackPat(1, 5, []mpegts.PatProgram{{ProgramNumber: 1, PmtPid: 0x1000}})
	// 一个负载中两个section，后面跟着填充
	payload := append([]byte{0x00}, pat[1:]...)
	payload = append(payload, pat[1:]...)
	payload = append(payload, 0xFF, 0xFF)

	sections, err := splitSections(payload)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(sections))
	assert.Equal(t, uint8(5), sections[0].Version)
	assert.Equal(t, pat[1:], sections[0].Section)
	assert.Equal(t, []byte{0x00, 0x01, 0xF0, 0x00}, sections[1].Payload)

	broken := append([]byte(nil), payload...)
	broken[10] ^= 0xFF
	sections, err = splitSections(broken)
	assert.IsNotNil(t, err)
	assert.Equal(t, 0, len(sections))

	_, err = splitSections([]byte{0x05, 0x00})
	assert.IsNotNil(t, err)
}
