// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsin

import (
	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/ingest"
	"github.com/q191201771/tsin/pkg/mpegts"
)

// Stat 在loop协程中生成一致的快照
func (s *Session) Stat() (ret base.StatSession) {
	_ = s.exec(func(c *controller, done func(error)) {
		ret = c.stat()
		ret.SessionId = s.uniqueKey
		ret.Url = s.url
		if !s.startTime.IsZero() {
			ret.StartTime = base.ReadableTime(s.startTime)
		}
		done(nil)
	}, 0)
	ret.ReadBytesSum = s.readBytes.Load()
	ret.Bitrate = int(s.bitrate.Rate())
	return
}

func (c *controller) stat() (ret base.StatSession) {
	ret.Protocol = protocolOf(c.sourceKind)
	ret.DurationMs = c.durationMs
	ret.RunState = c.runState.String()
	ret.Playing = int(c.playing.Load())
	ret.Regulate = c.regulate.Load()
	ret.PendingPids = append(ret.PendingPids, c.pidRequests...)
	for _, r := range c.progRequests {
		ret.PendingFragments = append(ret.PendingFragments, r.fragment)
	}
	ret.EpgRequested = c.epgRequested
	ret.HasClockReference = c.clock.hasReference
	ret.PcrLast = c.clock.pcrLast

	services := c.engine.Services()
	for _, prog := range c.engine.Programs() {
		sp := base.StatProgram{
			Number:           prog.Number,
			PmtPid:           prog.PmtPid,
			PcrPid:           prog.PcrPid,
			HasIod:           prog.Iod != nil,
			ClockInitialized: prog.ClockInitialized,
		}
		for _, svc := range services {
			if svc.Id == prog.Number {
				sp.Name = svc.Name
			}
		}
		for _, st := range prog.Streams {
			sp.Streams = append(sp.Streams, base.StatStream{
				Pid:        st.Pid,
				EsId:       st.EsId(),
				StreamType: mpegts.StreamTypeString(st.StreamType),
				Framing:    st.Framing.String(),
				Declared:   st.Declared,
				Bound:      st.User != nil,
			})
		}
		ret.Programs = append(ret.Programs, sp)
	}
	return
}

func protocolOf(k ingest.SourceKind) string {
	switch k {
	case ingest.SourceKindFile:
		return base.ProtocolFile
	case ingest.SourceKindHttp:
		return base.ProtocolHttp
	case ingest.SourceKindUdp:
		return base.ProtocolUdp
	case ingest.SourceKindTcp:
		return base.ProtocolTcp
	case ingest.SourceKindSrt:
		return base.ProtocolSrt
	case ingest.SourceKindDvb:
		return base.ProtocolDvb
	}
	return base.ProtocolUnknow
}
