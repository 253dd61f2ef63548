// Copyright 2022, Chef.  All rights reserved.
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
	"github.com/q191201771/tsin/pkg/base"
)

// LATM(Low-overhead MPEG-4 Audio Transport Multiplex)
// ts中stream type为0x11的AAC，PES负载是LOAS AudioSyncStream，配置数据在StreamMuxConfig中
//

const (
	LoasHeaderLength = 3

	loasSyncword = 0x2B7
)

// <ISO_IEC_14496-3.pdf>
// <1.7.2 Low Overhead Audio Stream (LOAS)>
// --------------------------------------------------------
// syncword                  [11b] 0x2B7
// audioMuxLengthBytes       [13b]
// AudioMuxElement(muxConfigPresent=1)
//
// <1.7.3 Low Overhead MPEG-4 Audio Transport Multiplex (LATM)>
// AudioMuxElement:
// useSameStreamMux          [1b]
// StreamMuxConfig           (useSameStreamMux为0时)
//   audioMuxVersion             [1b]
//   audioMuxVersionA            [1b] (audioMuxVersion为1时)
//   taraBufferFullness          LatmGetValue (audioMuxVersion为1时)
//   allStreamsSameTimeFraming   [1b]
//   numSubFrames                [6b]
//   numProgram                  [4b]
//   numLayer                    [3b]
//   ascLen                      LatmGetValue (audioMuxVersion为1时)
//   AudioSpecificConfig         第一个program的第一个layer
//

// MakeAscWithLoas 从LOAS帧的StreamMuxConfig中取出AudioSpecificConfig
//
// @param loas: 从syncword开始。函数调用结束后，内部不持有该内存块
//
// @return asc: 内存块为独立新申请
//
func MakeAscWithLoas(loas []byte) (asc []byte, err error) {
	if len(loas) < LoasHeaderLength {
		return nil, fmt.Errorf("%w. len=%d", base.ErrShortBuffer, len(loas))
	}

	br := nazabits.NewBitReader(loas)
	sync, _ := br.ReadBits16(11)
	if sync != loasSyncword {
		return nil, base.ErrLoasSyncword
	}
	_ = br.SkipBits(13)

	useSameStreamMux, _ := br.ReadBit()
	if useSameStreamMux == 1 {
		return nil, base.ErrLatmNoConfig
	}

	audioMuxVersion, _ := br.ReadBit()
	if audioMuxVersion == 1 {
		audioMuxVersionA, _ := br.ReadBit()
		if audioMuxVersionA == 1 {
			return nil, fmt.Errorf("%w. audioMuxVersionA=1", base.ErrLatmUnsupported)
		}
		_ = latmGetValue(&br) // taraBufferFullness
	}
	_ = br.SkipBits(1 + 6) // allStreamsSameTimeFraming, numSubFrames
	_ = br.SkipBits(4 + 3) // numProgram, numLayer
	if audioMuxVersion == 1 {
		_ = latmGetValue(&br) // ascLen
	}

	var ctx AscContext
	if err = ctx.unpackBits(&br); err != nil {
		return nil, err
	}
	if err = br.Err(); err != nil {
		return nil, fmt.Errorf("%w. len=%d", base.ErrShortBuffer, len(loas))
	}
	if _, err = ctx.GetSamplingFrequency(); err != nil {
		return nil, err
	}
	return ctx.Pack(), nil
}

// FindLoasConfig 在PES负载中查找第一个带配置的LOAS帧
//
// @return 找不到时返回nil
//
func FindLoasConfig(b []byte) []byte {
	for i := 0; i+LoasHeaderLength <= len(b); i++ {
		if b[i] != 0x56 || b[i+1]&0xE0 != 0xE0 {
			continue
		}
		if asc, err := MakeAscWithLoas(b[i:]); err == nil {
			return asc
		}
	}
	return nil
}

// PackLoasFrame 生成带StreamMuxConfig的LOAS帧(audioMuxVersion=0)，测试和构造ts流时使用
//
// @param payload: raw aac frame
//
func (ascCtx *AscContext) PackLoasFrame(payload []byte) (out []byte) {
	// payload之前共45b: useSameStreamMux到numLayer 16b, asc 13b, GASpecificConfig 3b,
	// frameLengthType 3b, latmBufferFullness 8b, otherDataPresent 1b, crcCheckPresent 1b
	nBits := 45 + 8*(len(payload)/255+1) + 8*len(payload)
	n := (nBits + 7) / 8
	out = make([]byte, LoasHeaderLength+n)

	bw := nazabits.NewBitWriter(out)
	bw.WriteBits16(11, loasSyncword)
	bw.WriteBits16(13, uint16(n))

	bw.WriteBit(0) // useSameStreamMux
	bw.WriteBit(0) // audioMuxVersion
	bw.WriteBit(1) // allStreamsSameTimeFraming
	bw.WriteBits8(6, 0)
	bw.WriteBits8(4, 0)
	bw.WriteBits8(3, 0)
	bw.WriteBits8(5, ascCtx.AudioObjectType)
	bw.WriteBits8(4, ascCtx.SamplingFrequencyIndex)
	bw.WriteBits8(4, ascCtx.ChannelConfiguration)
	bw.WriteBits8(3, 0) // frameLengthFlag, dependsOnCoreCoder, extensionFlag
	bw.WriteBits8(3, 0) // frameLengthType
	bw.WriteBits8(8, 0xFF)
	bw.WriteBit(0) // otherDataPresent
	bw.WriteBit(0) // crcCheckPresent

	// PayloadLengthInfo
	for l := len(payload); ; l -= 255 {
		if l < 255 {
			bw.WriteBits8(8, uint8(l))
			break
		}
		bw.WriteBits8(8, 0xFF)
	}
	for _, v := range payload {
		bw.WriteBits8(8, v)
	}
	return
}

// ----- private -------------------------------------------------------------------------------------------------------

func latmGetValue(br *nazabits.BitReader) uint32 {
	bytesForValue, _ := br.ReadBits8(2)
	var v uint32
	for i := uint8(0); i <= bytesForValue; i++ {
		b, _ := br.ReadBits8(8)
		v = v<<8 | uint32(b)
	}
	return v
}

// unpackBits 按位读取AudioSpecificConfig，SBR/PS时取核心编码的object type
func (ascCtx *AscContext) unpackBits(br *nazabits.BitReader) error {
	aot, err := readAudioObjectType(br)
	if err != nil {
		return err
	}
	ascCtx.SamplingFrequencyIndex, _ = br.ReadBits8(4)
	if ascCtx.SamplingFrequencyIndex == 0xF {
		return fmt.Errorf("%w. explicit sampling frequency", base.ErrLatmUnsupported)
	}
	ascCtx.ChannelConfiguration, _ = br.ReadBits8(4)

	// 5=SBR 29=PS
	if aot == 5 || aot == 29 {
		extIndex, _ := br.ReadBits8(4)
		if extIndex == 0xF {
			_ = br.SkipBits(24)
		}
		if aot, err = readAudioObjectType(br); err != nil {
			return err
		}
	}
	ascCtx.AudioObjectType = aot
	return nil
}

func readAudioObjectType(br *nazabits.BitReader) (uint8, error) {
	aot, _ := br.ReadBits8(5)
	if aot == 31 {
		return 0, fmt.Errorf("%w. escaped audio object type", base.ErrLatmUnsupported)
	}
	return aot, nil
}
