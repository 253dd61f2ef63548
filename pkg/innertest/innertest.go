// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package innertest 构造测试用的ts流，供各个包的单元测试使用
package innertest

import (
	"bytes"

	"github.com/q191201771/tsin/pkg/aac"
	"github.com/q191201771/tsin/pkg/mpegts"
)

type StreamConf struct {
	Pid        uint16
	StreamType uint8
	Mpeg4EsId  uint16 // 不为0时在PMT中写入SL_descriptor
}

type ProgramConf struct {
	Number uint16
	PmtPid uint16
	PcrPid uint16

	// Name 不为空时写入SDT
	Name string

	// Iod 不为nil时写入PMT的program_info
	Iod []byte

	Streams []StreamConf
}

// TsBuilder 按调用顺序把PSI、PCR、PES写入内存
//
// 每个pid的continuity_counter独立维护
//
type TsBuilder struct {
	programs []ProgramConf
	buf      bytes.Buffer
	cc       map[uint16]*uint8
	version  uint8
}

func NewTsBuilder(programs ...ProgramConf) *TsBuilder {
	return &TsBuilder{
		programs: programs,
		cc:       make(map[uint16]*uint8),
	}
}

// WriteTables 写入PAT、每个节目的PMT，有节目名时写入SDT
func (b *TsBuilder) WriteTables() *TsBuilder {
	var pats []mpegts.PatProgram
	var services []mpegts.SdtService
	for _, p := range b.programs {
		pats = append(pats, mpegts.PatProgram{ProgramNumber: p.Number, PmtPid: p.PmtPid})
		if p.Name != "" {
			services = append(services, mpegts.SdtService{
				ServiceId:    p.Number,
				ServiceType:  mpegts.ServiceTypeDigitalTv,
				ProviderName: "tsin",
				ServiceName:  p.Name,
			})
		}
	}
	b.WriteSection(mpegts.PidPat, mpegts.PackPat(1, b.version, pats))

	for _, p := range b.programs {
		var info []mpegts.Descriptor
		if p.Iod != nil {
			info = append(info, mpegts.Descriptor{Tag: mpegts.DescriptorTagIod, Data: p.Iod})
		}
		var streams []mpegts.PmtStream
		for _, s := range p.Streams {
			ps := mpegts.PmtStream{StreamType: s.StreamType, Pid: s.Pid}
			if s.Mpeg4EsId != 0 {
				ps.Descriptors = []mpegts.Descriptor{{
					Tag:  mpegts.DescriptorTagSl,
					Data: []byte{uint8(s.Mpeg4EsId >> 8), uint8(s.Mpeg4EsId)},
				}}
			}
			streams = append(streams, ps)
		}
		b.WriteSection(p.PmtPid, mpegts.PackPmt(p.Number, p.PcrPid, b.version, info, streams))
	}

	if len(services) > 0 {
		b.WriteSection(mpegts.PidSdt, mpegts.PackSdt(1, 1, b.version, services))
	}
	return b
}

// AddStream 给节目追加流，之后调用 WriteTables 时PMT版本号加1
func (b *TsBuilder) AddStream(programNumber uint16, s StreamConf) *TsBuilder {
	for i := range b.programs {
		if b.programs[i].Number == programNumber {
			b.programs[i].Streams = append(b.programs[i].Streams, s)
		}
	}
	b.version = (b.version + 1) & 0x1F
	return b
}

// WriteSection
//
// @param section: mpegts.PsiSection.Pack 的结果，包含pointer_field
//
func (b *TsBuilder) WriteSection(pid uint16, section []byte) *TsBuilder {
	b.buf.Write(mpegts.PacketizeSection(pid, b.counter(pid), section))
	return b
}

// WritePcr 写入只有adaptation field的PCR包
func (b *TsBuilder) WritePcr(pid uint16, pcr uint64, discontinuity bool) *TsBuilder {
	cc := b.counter(pid)
	b.buf.Write(mpegts.PackPcrPacket(pid, *cc, pcr, discontinuity))
	return b
}

// WriteFrame 写入一个PES，pts单位90kHz
func (b *TsBuilder) WriteFrame(pid uint16, pts uint64, key bool, raw []byte) *TsBuilder {
	cc := b.counter(pid)
	frame := mpegts.Frame{
		Pid: pid,
		Sid: mpegts.StreamIdVideo,
		Pts: pts,
		Dts: pts,
		Cc:  *cc,
		Key: key,
		Raw: raw,
	}
	if b.isAudio(pid) {
		frame.Sid = mpegts.StreamIdAudio
	}
	packed := frame.Pack()
	*cc = frame.Cc
	b.buf.Write(packed)
	return b
}

func (b *TsBuilder) Bytes() []byte {
	return b.buf.Bytes()
}

func (b *TsBuilder) Len() int {
	return b.buf.Len()
}

// ---------------------------------------------------------------------------------------------------------------------

const (
	SimpleProgramNumber = uint16(1)
	SimplePmtPid        = uint16(0x1000)
	SimpleVideoPid      = uint16(0x100)
	SimpleAudioPid      = uint16(0x101)
)

// SimpleProgram 单节目，H.264在0x100(同时是PCR pid)，AAC ADTS在0x101，节目名为News
func SimpleProgram() ProgramConf {
	return ProgramConf{
		Number: SimpleProgramNumber,
		PmtPid: SimplePmtPid,
		PcrPid: SimpleVideoPid,
		Name:   "News",
		Streams: []StreamConf{
			{Pid: SimpleVideoPid, StreamType: mpegts.StreamTypeAvc},
			{Pid: SimpleAudioPid, StreamType: mpegts.StreamTypeAacAdts},
		},
	}
}

// GenSimpleTs 每100ms一个视频帧，每个视频帧之前一个PCR包，每秒重复一次PSI
//
// @param durationMs: 最后一个PCR的时间，第一个PCR为0
//
func GenSimpleTs(durationMs int) []byte {
	b := NewTsBuilder(SimpleProgram())
	raw := make([]byte, 300)
	for i := range raw {
		raw[i] = uint8(i)
	}
	adts := AdtsFrame(100)
	for ms := 0; ms <= durationMs; ms += 100 {
		if ms%1000 == 0 {
			b.WriteTables()
		}
		b.WritePcr(SimpleVideoPid, uint64(ms)*27000, false)
		b.WriteFrame(SimpleVideoPid, uint64(ms)*90, ms%1000 == 0, raw)
		b.WriteFrame(SimpleAudioPid, uint64(ms)*90, true, adts)
	}
	return b.Bytes()
}

// AdtsFrame AAC LC 44.1kHz 双声道的ADTS帧，负载全为0
func AdtsFrame(payloadSize int) []byte {
	ascCtx := aac.AscContext{
		AudioObjectType:        2,
		SamplingFrequencyIndex: 4,
		ChannelConfiguration:   2,
	}
	return append(ascCtx.PackAdtsHeader(payloadSize), make([]byte, payloadSize)...)
}

// LoasFrame 带StreamMuxConfig的LOAS帧，配置与AdtsFrame相同
func LoasFrame(payloadSize int) []byte {
	ascCtx := aac.AscContext{
		AudioObjectType:        2,
		SamplingFrequencyIndex: 4,
		ChannelConfiguration:   2,
	}
	return ascCtx.PackLoasFrame(make([]byte, payloadSize))
}

// ----- private -------------------------------------------------------------------------------------------------------

func (b *TsBuilder) counter(pid uint16) *uint8 {
	cc, ok := b.cc[pid]
	if !ok {
		cc = new(uint8)
		b.cc[pid] = cc
	}
	return cc
}

func (b *TsBuilder) isAudio(pid uint16) bool {
	for _, p := range b.programs {
		for _, s := range p.Streams {
			if s.Pid != pid {
				continue
			}
			switch s.StreamType {
			case mpegts.StreamTypeMpeg1Audio, mpegts.StreamTypeMpeg2Audio, mpegts.StreamTypeAacAdts, mpegts.StreamTypeAacLatm:
				return true
			}
		}
	}
	return false
}
