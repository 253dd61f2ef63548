// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsdemux

import (
	"bytes"
	"io"

	"github.com/q191201771/tsin/pkg/mpegts"
)

const syncByte = 0x47

// alignReader 从任意切割的字节流中找出对齐的188字节packet
//
// 输出只包含完整的188字节packet，192(M2TS)和204(带RS校验)字节格式的额外字节以及同步丢失时的垃圾数据都会被丢弃
// 每个输出的packet都会回调onPacket，用于在go-astits缓存数据之前观察PCR
//
type alignReader struct {
	r        io.Reader
	onPacket func(packet []byte)

	readBuf []byte
	in      []byte
	out     []byte
	outPos  int
	err     error

	dropped uint64
}

func newAlignReader(r io.Reader, readBufSize int, onPacket func(packet []byte)) *alignReader {
	if readBufSize < mpegts.PacketSize {
		readBufSize = mpegts.PacketSize
	}
	return &alignReader{
		r:        r,
		onPacket: onPacket,
		readBuf:  make([]byte, readBufSize),
	}
}

func (a *alignReader) Read(p []byte) (int, error) {
	for a.outPos == len(a.out) {
		if a.err != nil {
			return 0, a.err
		}
		a.out = a.out[:0]
		a.outPos = 0

		n, err := a.r.Read(a.readBuf)
		if n > 0 {
			a.in = append(a.in, a.readBuf[:n]...)
		}
		if n > 0 || err != nil {
			a.align(err != nil)
		}
		if err != nil {
			a.err = err
		}
	}
	n := copy(p, a.out[a.outPos:])
	a.outPos += n
	return n, nil
}

// @param final: 后面不会再有数据，不再等待后续字节做同步确认
func (a *alignReader) align(final bool) {
	pos := 0
	for len(a.in)-pos >= mpegts.PacketSize {
		b := a.in[pos:]
		if b[0] != syncByte {
			i := bytes.IndexByte(b, syncByte)
			if i < 0 {
				a.dropped += uint64(len(b))
				pos = len(a.in)
				break
			}
			a.dropped += uint64(i)
			pos += i
			continue
		}
		if !a.confirmSync(b, final) {
			if len(b) < 205 {
				// 等待更多数据再做判断
				break
			}
			a.dropped++
			pos++
			continue
		}

		packet := b[:mpegts.PacketSize]
		if a.onPacket != nil {
			a.onPacket(packet)
		}
		a.out = append(a.out, packet...)
		pos += mpegts.PacketSize
	}
	a.in = append(a.in[:0], a.in[pos:]...)
}

// 下一个sync byte出现在188、192、204偏移处时认为当前位置是对齐的
func (a *alignReader) confirmSync(b []byte, final bool) bool {
	for _, off := range []int{188, 192, 204} {
		if len(b) > off && b[off] == syncByte {
			return true
		}
	}
	// 数据不足以做判断时，只有在流结束后才接受
	return final && len(b) <= 204
}
