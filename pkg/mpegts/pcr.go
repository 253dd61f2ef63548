// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

// PCR
//
// program_clock_reference_base      [33b] 90kHz
// reserved                          [6b]
// program_clock_reference_extension [9b]  27MHz
//
// PCR(i) = PCR_base(i) * 300 + PCR_ext(i)
//

const (
	PcrHz          = uint64(27000000)
	PcrTicksPerMs  = uint64(27000)
	PtsHz          = uint64(90000)
	pcrBaseModulus = uint64(1) << 33
)

// PcrValue 由base和extension计算27MHz的PCR值
func PcrValue(base, ext uint64) uint64 {
	return (base%pcrBaseModulus)*300 + ext%300
}

// PcrToMs 27MHz转毫秒
func PcrToMs(pcr uint64) uint64 {
	return pcr / PcrTicksPerMs
}

// ParsePcr 解析adaptation field中的6字节PCR
func ParsePcr(b []byte) uint64 {
	base := uint64(b[0])<<25 | uint64(b[1])<<17 | uint64(b[2])<<9 | uint64(b[3])<<1 | uint64(b[4])>>7
	ext := uint64(b[4]&0x01)<<8 | uint64(b[5])
	return PcrValue(base, ext)
}

// PackPcr 将27MHz的PCR值写入6字节
func PackPcr(out []byte, pcr uint64) {
	base := (pcr / 300) % pcrBaseModulus
	ext := pcr % 300
	out[0] = uint8(base >> 25)
	out[1] = uint8(base >> 17)
	out[2] = uint8(base >> 9)
	out[3] = uint8(base >> 1)
	out[4] = uint8(base<<7) | 0x7e | uint8(ext>>8)
	out[5] = uint8(ext)
}
