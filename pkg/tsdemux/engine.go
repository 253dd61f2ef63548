// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsdemux

import (
	"github.com/q191201771/tsin/pkg/aac"
	"github.com/q191201771/tsin/pkg/mpegts"
)

// Engine 维护ts流的节目表，把Unit转换成Event
//
// 注意，Engine不是协程安全的，所有方法(包括onEvent回调中对Engine的操作)必须在同一个协程中调用
//
type Engine struct {
	uniqueKey string
	onEvent   func(evt Event)

	patSeen     bool
	patPrograms []PatProgram

	programs []*Program
	streams  map[uint16]*Stream

	sdtSeen  bool
	services []Service
}

func NewEngine(uniqueKey string, onEvent func(evt Event)) *Engine {
	return &Engine{
		uniqueKey: uniqueKey,
		onEvent:   onEvent,
		streams:   make(map[uint16]*Stream),
	}
}

func (e *Engine) OnUnit(u Unit) {
	switch {
	case u.Pat != nil:
		e.onPat(u.Pat)
	case u.Pmt != nil:
		e.onPmt(u.Pmt)
	case u.Sdt != nil:
		e.onSdt(u.Sdt)
	case u.Pes != nil:
		e.onPes(u.Pid, u.Pes)
	case u.Pcr != nil:
		e.onPcr(u.Pid, u.Pcr)
	case u.Section != nil:
		e.onSection(u.Pid, u.Section)
	}
}

// Programs 按PAT中出现的顺序
func (e *Engine) Programs() []*Program {
	return e.programs
}

func (e *Engine) ProgramByNumber(number uint16) *Program {
	for _, p := range e.programs {
		if p.Number == number {
			return p
		}
	}
	return nil
}

func (e *Engine) StreamByPid(pid uint16) *Stream {
	return e.streams[pid]
}

func (e *Engine) Services() []Service {
	return e.services
}

func (e *Engine) SetFraming(s *Stream, mode FramingMode) {
	if s.Framing == mode {
		return
	}
	Log.Debugf("[%s] set framing. %s, %s -> %s", e.uniqueKey, s.String(), s.Framing, mode)
	s.Framing = mode
}

// ----- private -------------------------------------------------------------------------------------------------------

func (e *Engine) onPat(pat *PatUnit) {
	var programs []PatProgram
	for _, p := range pat.Programs {
		// program_number为0时指向NIT
		if p.Number == 0 {
			continue
		}
		programs = append(programs, p)
	}

	typ := EventPatFound
	if e.patSeen {
		typ = EventPatRepeat
		if !equalPatPrograms(e.patPrograms, programs) {
			typ = EventPatUpdate
		}
	}
	e.patSeen = true
	e.patPrograms = programs

	for _, p := range programs {
		prog := e.ProgramByNumber(p.Number)
		if prog == nil {
			e.programs = append(e.programs, &Program{
				Number: p.Number,
				PmtPid: p.PmtPid,
			})
			continue
		}
		prog.PmtPid = p.PmtPid
	}
	if typ != EventPatRepeat {
		Log.Debugf("[%s] %s. programs=%+v", e.uniqueKey, typ, programs)
	}
	e.onEvent(Event{Type: typ})
}

func (e *Engine) onPmt(pmt *PmtUnit) {
	prog := e.ProgramByNumber(pmt.ProgramNumber)
	if prog == nil {
		prog = &Program{Number: pmt.ProgramNumber}
		e.programs = append(e.programs, prog)
	}

	changed := prog.PcrPid != pmt.PcrPid
	prog.PcrPid = pmt.PcrPid
	if pmt.Iod != nil {
		prog.Iod = pmt.Iod
	}

	for _, ps := range pmt.Streams {
		if prog.PmtPid != 0 && ps.Pid == prog.PmtPid {
			continue
		}
		// 同一个pid只属于首次声明它的Program
		if _, ok := e.streams[ps.Pid]; ok {
			continue
		}
		s := &Stream{
			Pid:        ps.Pid,
			StreamType: ps.StreamType,
			Mpeg4EsId:  ps.Mpeg4EsId,
			Program:    prog,
			Framing:    FramingSkip,
			IsSection:  mpegts.IsSectionStream(ps.StreamType),
		}
		if ps.StreamType == mpegts.StreamTypeAacAdts || ps.StreamType == mpegts.StreamTypeAacLatm {
			s.Aac = AacAwaitingConfig
		}
		e.streams[ps.Pid] = s
		prog.Streams = append(prog.Streams, s)
		changed = true
		Log.Debugf("[%s] add stream. program=%d, %s, es_id=%d", e.uniqueKey, prog.Number, s.String(), s.Mpeg4EsId)
	}

	typ := EventPmtFound
	if prog.pmtSeen {
		typ = EventPmtRepeat
		if changed {
			typ = EventPmtUpdate
		}
	}
	prog.pmtSeen = true
	e.onEvent(Event{Type: typ, Program: prog})
}

func (e *Engine) onSdt(sdt *SdtUnit) {
	typ := EventSdtFound
	if e.sdtSeen {
		typ = EventSdtRepeat
		if !equalServices(e.services, sdt.Services) {
			typ = EventSdtUpdate
		}
	}
	e.sdtSeen = true
	e.services = sdt.Services
	if typ != EventSdtRepeat {
		Log.Debugf("[%s] %s. services=%+v", e.uniqueKey, typ, sdt.Services)
	}
	e.onEvent(Event{Type: typ})
}

func (e *Engine) onPes(pid uint16, pes *PesUnit) {
	s, ok := e.streams[pid]
	if !ok || s.Framing != FramingDefault {
		return
	}

	if s.Aac == AacAwaitingConfig {
		var asc []byte
		switch s.StreamType {
		case mpegts.StreamTypeAacAdts:
			asc = findAdtsConfig(pes.Data)
		case mpegts.StreamTypeAacLatm:
			asc = aac.FindLoasConfig(pes.Data)
		}
		if asc != nil {
			e.onEvent(Event{Type: EventAacConfig, Program: s.Program, Stream: s, Config: asc})
			// 回调中可能修改了framing
			if s.Framing != FramingDefault {
				return
			}
		}
	}

	typ := EventPesPacket
	if s.StreamType == mpegts.StreamTypeMpeg4SlPes {
		typ = EventSlPacket
	}
	e.onEvent(Event{Type: typ, Program: s.Program, Stream: s, Pes: pes})
}

func (e *Engine) onPcr(pid uint16, pcr *PcrUnit) {
	s := e.streams[pid]
	for _, p := range e.programs {
		if !p.pmtSeen || p.PcrPid != pid {
			continue
		}
		e.onEvent(Event{Type: EventPcr, Program: p, Stream: s, Pcr: pcr})
	}
}

func (e *Engine) onSection(pid uint16, sec *SectionUnit) {
	s := e.streams[pid]

	if sec.TableId == mpegts.TableIdAit {
		e.onEvent(Event{Type: EventAitFound, Stream: s, Section: sec})
		return
	}

	if s == nil || !s.IsSection {
		if pid == mpegts.PidEit && sec.TableId >= mpegts.TableIdEitStart && sec.TableId <= mpegts.TableIdEitEnd {
			e.onEvent(Event{Type: EventDvbGeneral, Section: sec})
		}
		return
	}

	if s.hasSectionVersion && s.sectionVersion == sec.Version && !s.SendRepeatedSections {
		return
	}
	s.hasSectionVersion = true
	s.sectionVersion = sec.Version
	e.onEvent(Event{Type: EventSlPacket, Program: s.Program, Stream: s, Section: sec})
}

func findAdtsConfig(data []byte) []byte {
	idx := aac.FindAdtsHeader(data)
	if idx < 0 {
		return nil
	}
	asc, err := aac.MakeAscWithAdtsHeader(data[idx:])
	if err != nil {
		return nil
	}
	return asc
}

func equalPatPrograms(a, b []PatProgram) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalServices(a, b []Service) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
