// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import "github.com/q191201771/naza/pkg/bele"

// Frame 帧数据，用于打包成mpegts格式的数据
//
type Frame struct {
	Pts uint64 // 90kHz
	Dts uint64
	Cc  uint8 // continuity_counter of TS Header

	// PID of PES Header
	Pid uint16

	// stream_id of PES Header
	// 音频 StreamIdAudio
	// 视频 StreamIdVideo
	Sid uint8

	// 首个packet的adaptation中设置random_access_indicator
	Key bool

	// 首个packet的adaptation中携带PCR，单位27MHz
	WithPcr bool
	Pcr     uint64

	// 首个packet的adaptation中设置discontinuity_indicator
	Discontinuity bool

	Raw []byte
}

// stream_id
const (
	StreamIdAudio = uint8(0xC0)
	StreamIdVideo = uint8(0xE0)
)

// Pack 将一帧数据打包成PES，并切割成mpegts packet
//
// 注意，每输出一个packet, Frame.Cc 的值加1
//
// @return: 内存块为独立申请，调度结束后，内部不再持有
//
func (frame *Frame) Pack() []byte {
	pes := append(frame.packPesHeader(), frame.Raw...)

	out := make([]byte, 0, (len(pes)/(PacketSize-4)+2)*PacketSize)
	first := true
	for len(pes) > 0 {
		var af []byte
		if first && (frame.Key || frame.WithPcr || frame.Discontinuity) {
			af = frame.packAdaptation()
		}
		frame.Cc++
		var n int
		out, n = appendTsPacket(out, frame.Pid, frame.Cc, first, af, pes)
		pes = pes[n:]
		first = false
	}
	return out
}

// PackPcrPacket 只包含adaptation的packet，用于在没有负载的pid上携带PCR
//
// 注意，没有负载时continuity_counter不增加
//
func PackPcrPacket(pid uint16, cc uint8, pcr uint64, discontinuity bool) []byte {
	packet := make([]byte, PacketSize)
	packet[0] = syncByte
	packet[1] = uint8(pid>>8) & 0x1F
	packet[2] = uint8(pid)
	packet[3] = 0x20 | (cc & 0x0F)
	packet[4] = PacketSize - 5
	packet[5] = 0x10
	if discontinuity {
		packet[5] |= 0x80
	}
	PackPcr(packet[6:], pcr)
	for i := 12; i < PacketSize; i++ {
		packet[i] = 0xFF
	}
	return packet
}

// ----- private -------------------------------------------------------------------------------------------------------

// packPesHeader
//
// PTS总是写入，DTS与PTS不同时才写入
//
// -----PES Header------------
// packet_start_code_prefix [24b] 0x000001
// stream_id                [8b]
// PES_packet_length        [16b] 超过0xFFFF时为0
// '10' + 其他标志           [8b]  0x80
// PTS_DTS_flags + 其他标志  [8b]
// PES_header_data_length   [8b]
// ---------------------------
func (frame *Frame) packPesHeader() []byte {
	flags := uint8(0x80)
	headerDataLength := 5
	if frame.Dts != frame.Pts {
		flags |= 0x40
		headerDataLength += 5
	}

	h := make([]byte, 9+headerDataLength)
	h[2] = 0x01
	h[3] = frame.Sid
	pesLength := 3 + headerDataLength + len(frame.Raw)
	if pesLength > 0xFFFF {
		pesLength = 0
	}
	bele.BePutUint16(h[4:], uint16(pesLength))
	h[6] = 0x80
	h[7] = flags
	h[8] = uint8(headerDataLength)
	packPts(h[9:], flags>>6, frame.Pts)
	if flags&0x40 != 0 {
		packPts(h[14:], 0x01, frame.Dts)
	}
	return h
}

// packAdaptation 不包含adaptation_field_length
func (frame *Frame) packAdaptation() []byte {
	af := make([]byte, 1, 7)
	if frame.Discontinuity {
		af[0] |= 0x80
	}
	if frame.Key {
		af[0] |= 0x40
	}
	if frame.WithPcr {
		af[0] |= 0x10
		af = af[:7]
		PackPcr(af[1:], frame.Pcr)
	}
	return af
}

// appendTsPacket 写入一个ts packet，负载不够填满时在adaptation中填充0xFF
//
// @param af: adaptation的内容，不包含长度字段，为nil表示没有adaptation
//
// @return n: 消耗的负载字节数
//
func appendTsPacket(out []byte, pid uint16, cc uint8, pusi bool, af []byte, payload []byte) (ret []byte, n int) {
	room := PacketSize - 4
	if af != nil {
		room -= 1 + len(af)
	}
	n = len(payload)
	if n > room {
		n = room
	}
	stuffing := room - n
	if af == nil && stuffing > 0 {
		// 新增adaptation用于填充，长度字段本身占用1字节
		stuffing--
		af = []byte{}
		if stuffing > 0 {
			af = append(af, 0x00)
			stuffing--
		}
	}

	var header [4]byte
	header[0] = syncByte
	header[1] = uint8(pid>>8) & 0x1F
	if pusi {
		header[1] |= 0x40
	}
	header[2] = uint8(pid)
	header[3] = 0x10 | (cc & 0x0F)
	if af != nil {
		header[3] |= 0x20
	}

	out = append(out, header[:]...)
	if af != nil {
		out = append(out, uint8(len(af)+stuffing))
		out = append(out, af...)
		for i := 0; i < stuffing; i++ {
			out = append(out, 0xFF)
		}
	}
	out = append(out, payload[:n]...)
	return out, n
}

// packPts PTS与DTS都使用这个函数打包
//
// '00xx' + 3b + marker + 15b + marker + 15b + marker
//
func packPts(out []byte, prefix uint8, ts uint64) {
	out[0] = prefix<<4 | uint8(ts>>29)&0x0E | 0x01
	bele.BePutUint16(out[1:], uint16(ts>>14)&0xFFFE|0x01)
	bele.BePutUint16(out[3:], uint16(ts<<1)&0xFFFE|0x01)
}
