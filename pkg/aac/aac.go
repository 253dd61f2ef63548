// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package aac

import (
	"fmt"

	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsin/pkg/base"
)

// AudioSpecificConfig(asc)
// 作为AAC流的decoder specific info，声明流时原样交给terminal
//
// ADTS(Audio Data Transport Stream)
// e.g. ts中的AAC PES
//

var Log = nazalog.GetGlobalLogger()

const (
	AdtsHeaderLength = 7

	minAscLength = 2
)

var samplingFrequencies = [...]int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}

// <ISO_IEC_14496-3.pdf>
// <1.6.2.1 AudioSpecificConfig>
// --------------------------------------------------------
// audio object type      [5b] 1=AAC MAIN  2=AAC LC
// samplingFrequencyIndex [4b] 3=48000  4=44100  6=24000  5=32000  11=11025
// channelConfiguration   [4b] 1=center front speaker  2=left, right front speakers
type AscContext struct {
	AudioObjectType        uint8 // [5b]
	SamplingFrequencyIndex uint8 // [4b]
	ChannelConfiguration   uint8 // [4b]
}

func (ascCtx *AscContext) Unpack(asc []byte) error {
	if len(asc) < minAscLength {
		return fmt.Errorf("%w. len=%d", base.ErrShortBuffer, len(asc))
	}

	br := nazabits.NewBitReader(asc)
	ascCtx.AudioObjectType, _ = br.ReadBits8(5)
	ascCtx.SamplingFrequencyIndex, _ = br.ReadBits8(4)
	ascCtx.ChannelConfiguration, _ = br.ReadBits8(4)
	return nil
}

// Pack
//
// @return asc: 内存块为独立新申请；函数调用结束后，内部不持有该内存块
//
func (ascCtx *AscContext) Pack() (asc []byte) {
	asc = make([]byte, minAscLength)
	bw := nazabits.NewBitWriter(asc)
	bw.WriteBits8(5, ascCtx.AudioObjectType)
	bw.WriteBits8(4, ascCtx.SamplingFrequencyIndex)
	bw.WriteBits8(4, ascCtx.ChannelConfiguration)
	return
}

// PackAdtsHeader 生成ADTS头，测试和构造ts流时使用
//
// @param frameLength: raw aac frame的大小，不包含ADTS头
//
func (ascCtx *AscContext) PackAdtsHeader(frameLength int) (out []byte) {
	out = make([]byte, AdtsHeaderLength)

	// <ISO_IEC_14496-3.pdf>
	// <1.A.2.2.1 Fixed Header of ADTS>
	// <1.A.2.2.2 Variable Header of ADTS>
	// ----------------------------------------------------
	// Syncword                 [12b] '1111 1111 1111'
	// ID                       [1b]  1=MPEG-2 AAC 0=MPEG-4
	// Layer                    [2b]
	// protection_absent        [1b]  1=no crc check
	// Profile_ObjectType       [2b]
	// sampling_frequency_index [4b]
	// private_bit              [1b]
	// channel_configuration    [3b]
	// origin/copy              [1b]
	// home                     [1b]
	// ------------------------------------
	// copyright_identification_bit   [1b]
	// copyright_identification_start [1b]
	// aac_frame_length               [13b]
	// adts_buffer_fullness           [11b]
	// no_raw_data_blocks_in_frame    [2b]
	bw := nazabits.NewBitWriter(out)
	bw.WriteBits16(12, 0xFFF)
	bw.WriteBits8(4, 0x1)
	bw.WriteBits8(2, ascCtx.AudioObjectType-1)
	bw.WriteBits8(4, ascCtx.SamplingFrequencyIndex)
	bw.WriteBits8(1, 0)
	bw.WriteBits8(3, ascCtx.ChannelConfiguration)
	bw.WriteBits8(4, 0)
	bw.WriteBits16(13, uint16(frameLength+AdtsHeaderLength))
	bw.WriteBits16(11, 0x7FF)
	bw.WriteBits8(2, 0)
	return
}

func (ascCtx *AscContext) GetSamplingFrequency() (int, error) {
	if int(ascCtx.SamplingFrequencyIndex) >= len(samplingFrequencies) {
		return -1, fmt.Errorf("%w. index=%d", base.ErrSamplingFrequencyIndex, ascCtx.SamplingFrequencyIndex)
	}
	return samplingFrequencies[ascCtx.SamplingFrequencyIndex], nil
}

type AdtsHeaderContext struct {
	AscCtx AscContext

	AdtsLength uint16 // 字段中的值，包含了adts header + adts frame
}

// Unpack
//
// @param adtsHeader: 函数调用结束后，内部不持有该内存块
//
func (ctx *AdtsHeaderContext) Unpack(adtsHeader []byte) error {
	if len(adtsHeader) < AdtsHeaderLength {
		return fmt.Errorf("%w. len=%d", base.ErrShortBuffer, len(adtsHeader))
	}
	if adtsHeader[0] != 0xFF || adtsHeader[1]&0xF0 != 0xF0 {
		return base.ErrAdtsSyncword
	}

	br := nazabits.NewBitReader(adtsHeader)
	_ = br.SkipBits(16)
	v, _ := br.ReadBits8(2)
	ctx.AscCtx.AudioObjectType = v + 1
	ctx.AscCtx.SamplingFrequencyIndex, _ = br.ReadBits8(4)
	_ = br.SkipBits(1)
	ctx.AscCtx.ChannelConfiguration, _ = br.ReadBits8(3)
	_ = br.SkipBits(4)
	ctx.AdtsLength, _ = br.ReadBits16(13)

	if _, err := ctx.AscCtx.GetSamplingFrequency(); err != nil {
		return err
	}
	return nil
}

// MakeAscWithAdtsHeader
//
// @return asc: 内存块为独立新申请；函数调用结束后，内部不持有该内存块
//
func MakeAscWithAdtsHeader(adtsHeader []byte) (asc []byte, err error) {
	var ctx AdtsHeaderContext
	if err = ctx.Unpack(adtsHeader); err != nil {
		return nil, err
	}
	return ctx.AscCtx.Pack(), nil
}

// FindAdtsHeader 在PES负载中查找第一个有效的ADTS头
//
// @return 找不到时返回-1
//
func FindAdtsHeader(b []byte) int {
	for i := 0; i+AdtsHeaderLength <= len(b); i++ {
		if b[i] != 0xFF || b[i+1]&0xF6 != 0xF0 {
			continue
		}
		var ctx AdtsHeaderContext
		if ctx.Unpack(b[i:]) == nil && ctx.AdtsLength >= AdtsHeaderLength {
			return i
		}
	}
	return -1
}
