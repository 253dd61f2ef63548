// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/tsin/pkg/base"
)

// SlConfig SLConfigDescriptor中与SL header布局相关的字段
//
// <ISO_IEC_14496-1> <7.3.2.3 SL Packet Header Configuration>
type SlConfig struct {
	UseAccessUnitStartFlag       bool
	UseAccessUnitEndFlag         bool
	UseRandomAccessPointFlag     bool
	HasRandomAccessUnitsOnlyFlag bool
	UsePaddingFlag               bool
	UseTimestampsFlag            bool
	UseIdleFlag                  bool
	DurationFlag                 bool
	TimestampResolution          uint32
	OcrResolution                uint32
	TimestampLength              uint8 // 最大64
	OcrLength                    uint8 // 最大64
	AuLength                     uint8 // 最大32
	InstantBitrateLength         uint8
	DegradationPriorityLength    uint8
	AuSeqNumLength               uint8
	PacketSeqNumLength           uint8
	TimeScale                    uint32
	AccessUnitDuration           uint16
	CompositionUnitDuration      uint16
	StartDecodingTimeStamp       uint64
	StartCompositionTimeStamp    uint64
}

// DefaultSlConfig 声明ts中的PES流时使用的SL配置
//
// 只使用AU起始标志和随机访问点标志，时间戳精度90kHz
//
func DefaultSlConfig() SlConfig {
	return SlConfig{
		UseAccessUnitStartFlag:   true,
		UseRandomAccessPointFlag: true,
		TimestampResolution:      uint32(PtsHz),
	}
}

// SlHeader
//
// 对于由PES或者PCR构造出来的header，只有部分字段有效
type SlHeader struct {
	AccessUnitStartFlag      bool
	AccessUnitEndFlag        bool
	OcrFlag                  bool
	IdleFlag                 bool
	PaddingFlag              bool
	PaddingBits              uint8
	PacketSequenceNumber     uint32
	DegradationPriorityFlag  bool
	DegradationPriority      uint32
	ObjectClockReference     uint64
	RandomAccessPointFlag    bool
	AuSequenceNumber         uint32
	DecodingTimeStampFlag    bool
	CompositionTimeStampFlag bool
	InstantBitrateFlag       bool
	DecodingTimeStamp        uint64
	CompositionTimeStamp     uint64
	AccessUnitLength         uint32
	InstantBitrate           uint32

	// M2tsVersionNumberPlusOne 由section承载时，section的version_number+1，0表示非section
	M2tsVersionNumberPlusOne uint8

	// M2tsPcr 1表示PCR，2表示不连续点之后的PCR，0表示不是PCR
	M2tsPcr uint8
}

// slBitReader 记录已读取的bit数，用于计算SL header长度
type slBitReader struct {
	br    nazabits.BitReader
	nbits uint
	err   error
}

func (r *slBitReader) readFlag() bool {
	return r.read(1) == 1
}

func (r *slBitReader) read(n uint8) uint64 {
	if n == 0 || r.err != nil {
		return 0
	}
	var v uint64
	remain := uint(n)
	for remain > 0 {
		step := remain
		if step > 32 {
			step = 32
		}
		part, err := r.br.ReadBits32(step)
		if err != nil {
			r.err = err
			return 0
		}
		v = v<<step | uint64(part)
		remain -= step
	}
	r.nbits += uint(n)
	return v
}

// Depacketize 按照cfg描述的布局解析SL header
//
// @return headerLen: SL header占用的字节数，负载从 b[headerLen:] 开始
//
func Depacketize(cfg *SlConfig, b []byte) (h SlHeader, headerLen int, err error) {
	r := slBitReader{br: nazabits.NewBitReader(b)}

	if cfg.UseAccessUnitStartFlag {
		h.AccessUnitStartFlag = r.readFlag()
	}
	if cfg.UseAccessUnitEndFlag {
		h.AccessUnitEndFlag = r.readFlag()
	}
	if !cfg.UseAccessUnitStartFlag && !cfg.UseAccessUnitEndFlag {
		h.AccessUnitStartFlag = true
		h.AccessUnitEndFlag = true
	}
	if cfg.OcrLength > 0 {
		h.OcrFlag = r.readFlag()
	}
	if cfg.UseIdleFlag {
		h.IdleFlag = r.readFlag()
	}
	if cfg.UsePaddingFlag {
		h.PaddingFlag = r.readFlag()
		if h.PaddingFlag {
			h.PaddingBits = uint8(r.read(3))
		}
	}

	if !h.IdleFlag && (!h.PaddingFlag || h.PaddingBits != 0) {
		if cfg.PacketSeqNumLength > 0 {
			h.PacketSequenceNumber = uint32(r.read(cfg.PacketSeqNumLength))
		}
		if cfg.DegradationPriorityLength > 0 {
			h.DegradationPriorityFlag = r.readFlag()
			if h.DegradationPriorityFlag {
				h.DegradationPriority = uint32(r.read(cfg.DegradationPriorityLength))
			}
		}
		if h.OcrFlag {
			h.ObjectClockReference = r.read(cfg.OcrLength)
		}
		if h.AccessUnitStartFlag {
			if cfg.UseRandomAccessPointFlag {
				h.RandomAccessPointFlag = r.readFlag()
			}
			if cfg.AuSeqNumLength > 0 {
				h.AuSequenceNumber = uint32(r.read(cfg.AuSeqNumLength))
			}
			if cfg.UseTimestampsFlag {
				h.DecodingTimeStampFlag = r.readFlag()
				h.CompositionTimeStampFlag = r.readFlag()
			}
			if cfg.InstantBitrateLength > 0 {
				h.InstantBitrateFlag = r.readFlag()
			}
			if h.DecodingTimeStampFlag {
				h.DecodingTimeStamp = r.read(cfg.TimestampLength)
			}
			if h.CompositionTimeStampFlag {
				h.CompositionTimeStamp = r.read(cfg.TimestampLength)
			}
			if cfg.AuLength > 0 {
				h.AccessUnitLength = uint32(r.read(cfg.AuLength))
			}
			if h.InstantBitrateFlag {
				h.InstantBitrate = uint32(r.read(cfg.InstantBitrateLength))
			}
		}
	}
	if cfg.HasRandomAccessUnitsOnlyFlag {
		h.RandomAccessPointFlag = true
	}

	if r.err != nil {
		return h, 0, base.NewErrSlHeaderTooLong(int((r.nbits+7)/8), len(b))
	}
	headerLen = int((r.nbits + 7) / 8)
	return h, headerLen, nil
}
