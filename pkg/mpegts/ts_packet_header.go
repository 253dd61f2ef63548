// Copyright 2019, Chef.  All rights reserved.
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

// TsPacketHeader
//
// <iso13818-1.pdf> <2.4.3.2 Transport Stream packet layer>
// ----------------------------------------------------
// sync_byte                    [8b]  0x47
// transport_error_indicator    [1b]
// payload_unit_start_indicator [1b]
// transport_priority           [1b]
// PID                          [13b]
// transport_scrambling_control [2b]
// adaptation_field_control     [2b]  1=payload only 2=adaptation only 3=both
// continuity_counter           [4b]
type TsPacketHeader struct {
	Sync             uint8
	Err              uint8
	PayloadUnitStart uint8
	Prio             uint8
	Pid              uint16
	Scra             uint8
	Adaptation       uint8
	Cc               uint8
}

// TsPacketAdaptation
//
// <iso13818-1.pdf> <2.4.3.4 Adaptation field>
type TsPacketAdaptation struct {
	Length        uint8
	Discontinuity bool
	RandomAccess  bool
	PcrFlag       bool
	Pcr           uint64 // 27MHz，PcrFlag为true时有效
}

func ParseTsPacketHeader(b []byte) (h TsPacketHeader, err error) {
	if len(b) < 4 {
		return h, base.ErrShortBuffer
	}
	br := nazabits.NewBitReader(b)
	h.Sync, _ = br.ReadBits8(8)
	h.Err, _ = br.ReadBits8(1)
	h.PayloadUnitStart, _ = br.ReadBits8(1)
	h.Prio, _ = br.ReadBits8(1)
	h.Pid, _ = br.ReadBits16(13)
	h.Scra, _ = br.ReadBits8(2)
	h.Adaptation, _ = br.ReadBits8(2)
	h.Cc, _ = br.ReadBits8(4)
	if h.Sync != syncByte {
		return h, base.ErrSyncByte
	}
	return
}

func (h *TsPacketHeader) HasAdaptation() bool {
	return h.Adaptation&0x2 != 0
}

// ParseTsPacketAdaptation
//
// @param b: 从adaptation_field_length开始
//
func ParseTsPacketAdaptation(b []byte) (f TsPacketAdaptation, err error) {
	if len(b) < 1 {
		return f, base.ErrShortBuffer
	}
	br := nazabits.NewBitReader(b)
	f.Length, _ = br.ReadBits8(8)
	if f.Length == 0 {
		return
	}
	if len(b) < 1+int(f.Length) {
		return f, base.ErrShortBuffer
	}
	v, _ := br.ReadBits8(1)
	f.Discontinuity = v == 1
	v, _ = br.ReadBits8(1)
	f.RandomAccess = v == 1
	_ = br.SkipBits(1) // elementary_stream_priority_indicator
	v, _ = br.ReadBits8(1)
	f.PcrFlag = v == 1
	if f.PcrFlag {
		if f.Length < 7 {
			return f, base.ErrShortBuffer
		}
		f.Pcr = ParsePcr(b[2:8])
	}
	return
}

// ParsePacketPcr 从一个完整的ts packet中取出PCR
//
// @return ok: packet中不携带PCR时为false
//
func ParsePacketPcr(packet []byte) (pid uint16, pcr uint64, discontinuity bool, ok bool) {
	if len(packet) < PacketSize {
		return
	}
	h, err := ParseTsPacketHeader(packet)
	if err != nil || !h.HasAdaptation() {
		return
	}
	f, err := ParseTsPacketAdaptation(packet[4:])
	if err != nil || !f.PcrFlag {
		return
	}
	return h.Pid, f.Pcr, f.Discontinuity, true
}
