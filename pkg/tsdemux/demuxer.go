// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsdemux

import (
	"context"
	"errors"
	"io"

	astits "github.com/asticode/go-astits"
	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/mpegts"
)

type DemuxerOption struct {
	ReadBufSize int

	// SectionPids 在PMT出现之前就需要按section方式解析的pid，EIT的pid总是按section解析
	SectionPids []uint16
}

var defaultDemuxerOption = DemuxerOption{
	ReadBufSize: 65536,
}

type ModDemuxerOption func(option *DemuxerOption)

// Demuxer
//
// 注意，Demuxer的所有方法必须在同一个协程中调用
//
type Demuxer struct {
	uniqueKey string
	option    DemuxerOption

	ctx context.Context
	ar  *alignReader
	dmx *astits.Demuxer

	sectionPids map[uint16]struct{}
	pending     []Unit
	eof         bool
	nParseErr   int
}

const maxConsecutiveParseErr = 64

func NewDemuxer(ctx context.Context, r io.Reader, modOptions ...ModDemuxerOption) *Demuxer {
	option := defaultDemuxerOption
	for _, fn := range modOptions {
		fn(&option)
	}

	d := &Demuxer{
		uniqueKey:   base.GenUkEngine(),
		option:      option,
		ctx:         ctx,
		sectionPids: make(map[uint16]struct{}),
	}
	d.sectionPids[mpegts.PidEit] = struct{}{}
	for _, pid := range option.SectionPids {
		d.sectionPids[pid] = struct{}{}
	}

	d.ar = newAlignReader(r, option.ReadBufSize, d.onPacket)
	d.dmx = astits.NewDemuxer(ctx, d.ar,
		astits.DemuxerOptPacketSize(mpegts.PacketSize),
		astits.DemuxerOptPacketsParser(d.parsePackets))
	Log.Debugf("[%s] lifecycle new tsdemux.Demuxer. option=%+v", d.uniqueKey, option)
	return d
}

// Next 阻塞直到至少有一个Unit可用
//
// 同一批次中，PCR和section在astits输出的数据之前，顺序与它们在流中出现的顺序一致
//
// @return err: 流正常结束时为io.EOF
//
func (d *Demuxer) Next() ([]Unit, error) {
	for {
		if len(d.pending) > 0 {
			units := d.pending
			d.pending = nil
			return units, nil
		}
		if d.eof {
			return nil, io.EOF
		}

		data, err := d.dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				d.eof = true
				continue
			}
			if d.ctx.Err() != nil {
				return nil, nazaerrors.Wrap(base.ErrDemuxClosed)
			}
			if d.ar.err != nil && d.ar.err != io.EOF {
				// 数据源本身出错
				return nil, d.ar.err
			}
			// 单个PSI或PES解析失败，跳过继续
			d.nParseErr++
			if d.nParseErr > maxConsecutiveParseErr {
				return nil, err
			}
			Log.Warnf("[%s] astits parse failed. err=%+v", d.uniqueKey, err)
			continue
		}
		d.nParseErr = 0
		if data == nil {
			continue
		}
		if u, ok := d.convert(data); ok {
			d.pending = append(d.pending, u)
		}
	}
}

func (d *Demuxer) Dispose() {
	Log.Debugf("[%s] lifecycle dispose tsdemux.Demuxer. dropped=%d", d.uniqueKey, d.ar.dropped)
}

// ----- private -------------------------------------------------------------------------------------------------------

func (d *Demuxer) onPacket(packet []byte) {
	pid, pcr, discontinuity, ok := mpegts.ParsePacketPcr(packet)
	if !ok {
		return
	}
	d.pending = append(d.pending, Unit{
		Pid: pid,
		Pcr: &PcrUnit{
			Value:         pcr,
			Discontinuity: discontinuity,
		},
	})
}

// parsePackets 在astits解析之前拦截EIT和私有section流
func (d *Demuxer) parsePackets(ps []*astits.Packet) (ds []*astits.DemuxerData, skip bool, err error) {
	if len(ps) == 0 {
		return nil, false, nil
	}
	pid := ps[0].Header.PID
	if _, ok := d.sectionPids[pid]; !ok {
		return nil, false, nil
	}
	if !ps[0].Header.PayloadUnitStartIndicator {
		return nil, true, nil
	}

	var payload []byte
	for _, p := range ps {
		payload = append(payload, p.Payload...)
	}
	sections, err := splitSections(payload)
	if err != nil {
		Log.Warnf("[%s] split sections failed. pid=%d, err=%+v", d.uniqueKey, pid, err)
	}
	for _, s := range sections {
		d.pending = append(d.pending, Unit{Pid: pid, Section: s})
	}
	return nil, true, nil
}

func (d *Demuxer) convert(data *astits.DemuxerData) (u Unit, ok bool) {
	if data.FirstPacket != nil {
		u.Pid = data.FirstPacket.Header.PID
	}

	switch {
	case data.PAT != nil:
		pat := &PatUnit{TransportStreamId: data.PAT.TransportStreamID}
		for _, p := range data.PAT.Programs {
			pat.Programs = append(pat.Programs, PatProgram{Number: p.ProgramNumber, PmtPid: p.ProgramMapID})
		}
		u.Pat = pat
		return u, true
	case data.PMT != nil:
		u.Pmt = d.convertPmt(data.PMT)
		return u, true
	case data.SDT != nil:
		sdt := &SdtUnit{TransportStreamId: data.SDT.TransportStreamID}
		for _, s := range data.SDT.Services {
			svc := Service{Id: s.ServiceID}
			for _, desc := range s.Descriptors {
				if desc.Service != nil {
					svc.Name = string(desc.Service.Name)
					svc.Provider = string(desc.Service.Provider)
				}
			}
			sdt.Services = append(sdt.Services, svc)
		}
		u.Sdt = sdt
		return u, true
	case data.PES != nil:
		u.Pes = convertPes(data)
		return u, true
	}
	return u, false
}

func (d *Demuxer) convertPmt(pmt *astits.PMTData) *PmtUnit {
	out := &PmtUnit{
		ProgramNumber: pmt.ProgramNumber,
		PcrPid:        pmt.PCRPID,
	}
	for _, desc := range pmt.ProgramDescriptors {
		if desc.Tag != mpegts.DescriptorTagIod || desc.Unknown == nil {
			continue
		}
		iod, err := mpegts.ParseIodDescriptor(desc.Unknown.Content)
		if err != nil {
			Log.Warnf("[%s] parse iod descriptor failed. program=%d, err=%+v", d.uniqueKey, pmt.ProgramNumber, err)
			continue
		}
		out.Iod = iod
	}

	for _, es := range pmt.ElementaryStreams {
		s := PmtStream{
			Pid:        es.ElementaryPID,
			StreamType: uint8(es.StreamType),
		}
		for _, desc := range es.ElementaryStreamDescriptors {
			if desc.Tag != mpegts.DescriptorTagSl || desc.Unknown == nil {
				continue
			}
			if esId, err := mpegts.ParseSlDescriptor(desc.Unknown.Content); err == nil {
				s.Mpeg4EsId = esId
			}
		}
		if mpegts.IsSectionStream(s.StreamType) {
			d.sectionPids[s.Pid] = struct{}{}
		}
		out.Streams = append(out.Streams, s)
	}
	return out
}

func convertPes(data *astits.DemuxerData) *PesUnit {
	pes := &PesUnit{
		Data: data.PES.Data,
	}
	if data.PES.Header != nil && data.PES.Header.OptionalHeader != nil {
		oh := data.PES.Header.OptionalHeader
		if oh.PTS != nil {
			pes.HasPts = true
			pes.Pts = uint64(oh.PTS.Base)
		}
		if oh.DTS != nil {
			pes.HasDts = true
			pes.Dts = uint64(oh.DTS.Base)
		}
	}
	if data.FirstPacket != nil && data.FirstPacket.AdaptationField != nil {
		pes.Rap = data.FirstPacket.AdaptationField.RandomAccessIndicator
		pes.Discontinuity = data.FirstPacket.AdaptationField.DiscontinuityIndicator
	}
	return pes
}

// splitSections 从PUSI开始的负载中切割出所有完整的section
//
// @param payload: 以pointer_field开始
//
func splitSections(payload []byte) ([]*SectionUnit, error) {
	if len(payload) < 1 || len(payload) < 1+int(payload[0]) {
		return nil, base.ErrShortBuffer
	}
	b := payload[1+int(payload[0]):]

	var out []*SectionUnit
	for len(b) >= 3 && b[0] != 0xFF {
		l := 3 + (int(b[1]&0x0F)<<8 | int(b[2]))
		if len(b) < l {
			return out, base.ErrShortBuffer
		}
		sec := append([]byte(nil), b[:l]...)
		b = b[l:]

		su := &SectionUnit{
			TableId: sec[0],
			Section: sec,
		}
		if sec[1]&0x80 != 0 {
			// 长格式section带有版本号和CRC_32
			if l < 12 {
				return out, base.ErrShortBuffer
			}
			if !mpegts.CheckSectionCrc(sec) {
				return out, base.ErrSectionCrc
			}
			su.Version = (sec[5] >> 1) & 0x1F
			su.Payload = sec[8 : l-4]
		} else {
			su.Payload = sec[3:]
		}
		out = append(out, su)
	}
	return out, nil
}
