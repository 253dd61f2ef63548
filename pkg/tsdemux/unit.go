// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsdemux

import "github.com/q191201771/tsin/pkg/mpegts"

// Unit Demuxer的输出，每个Unit中有且只有一个指针字段非nil
//
// Unit只描述ts流中出现了什么，不包含任何状态，状态由Engine维护
//
type Unit struct {
	Pid uint16

	Pat     *PatUnit
	Pmt     *PmtUnit
	Sdt     *SdtUnit
	Pes     *PesUnit
	Pcr     *PcrUnit
	Section *SectionUnit
}

type PatUnit struct {
	TransportStreamId uint16
	Programs          []PatProgram
}

type PatProgram struct {
	Number uint16
	PmtPid uint16
}

type PmtUnit struct {
	ProgramNumber uint16
	PcrPid        uint16
	Iod           *mpegts.Iod // program_info中没有IOD_descriptor时为nil
	Streams       []PmtStream
}

type PmtStream struct {
	Pid        uint16
	StreamType uint8
	Mpeg4EsId  uint16 // 来自SL_descriptor，没有时为0
}

type SdtUnit struct {
	TransportStreamId uint16
	Services          []Service
}

type Service struct {
	Id       uint16
	Name     string
	Provider string
}

type PesUnit struct {
	Data          []byte
	HasPts        bool
	Pts           uint64 // 90kHz
	HasDts        bool
	Dts           uint64
	Rap           bool
	Discontinuity bool
}

type PcrUnit struct {
	Value         uint64 // 27MHz
	Discontinuity bool
}

// SectionUnit EIT或者以section方式承载的私有流
type SectionUnit struct {
	TableId uint8
	Version uint8

	// Section 完整的section，包含头和CRC_32
	Section []byte

	// Payload 长格式section中位于last_section_number之后、CRC_32之前的部分
	Payload []byte
}

func (u *Unit) String() string {
	switch {
	case u.Pat != nil:
		return "PAT"
	case u.Pmt != nil:
		return "PMT"
	case u.Sdt != nil:
		return "SDT"
	case u.Pes != nil:
		return "PES"
	case u.Pcr != nil:
		return "PCR"
	case u.Section != nil:
		return "SECTION"
	}
	return "EMPTY"
}
