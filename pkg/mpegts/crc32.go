// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

// CRC_32 of ISO/IEC 13818-1 Annex A
//
// 多项式0x04C11DB7，非反射，初始值0xFFFFFFFF，无结果异或
// 注意，标准库hash/crc32只提供反射形式，不能直接使用

const crc32Poly = uint32(0x04C11DB7)

var crc32Table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		c := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if c&0x80000000 != 0 {
				c = c<<1 ^ crc32Poly
			} else {
				c <<= 1
			}
		}
		crc32Table[i] = c
	}
}

// CalcCrc32
//
// @param crc: 首次调用传入0xFFFFFFFF
//
func CalcCrc32(crc uint32, buffer []byte) uint32 {
	for _, b := range buffer {
		crc = crc<<8 ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// CheckSectionCrc 校验包含CRC_32在内的整个section，正确时结果为0
func CheckSectionCrc(section []byte) bool {
	if len(section) < 4 {
		return false
	}
	return CalcCrc32(0xFFFFFFFF, section) == 0
}
