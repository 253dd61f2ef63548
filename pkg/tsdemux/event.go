// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsdemux

import (
	"fmt"

	"github.com/q191201771/tsin/pkg/mpegts"
)

type EventType int

const (
	EventPatFound EventType = iota + 1
	EventPatRepeat
	EventPatUpdate
	EventPmtFound
	EventPmtRepeat
	EventPmtUpdate
	EventSdtFound
	EventSdtRepeat
	EventSdtUpdate
	EventDvbGeneral // EIT等DVB私有表，原样转发
	EventPesPacket
	EventSlPacket
	EventAacConfig
	EventPcr
	EventAitFound
)

func (t EventType) String() string {
	switch t {
	case EventPatFound:
		return "PAT_FOUND"
	case EventPatRepeat:
		return "PAT_REPEAT"
	case EventPatUpdate:
		return "PAT_UPDATE"
	case EventPmtFound:
		return "PMT_FOUND"
	case EventPmtRepeat:
		return "PMT_REPEAT"
	case EventPmtUpdate:
		return "PMT_UPDATE"
	case EventSdtFound:
		return "SDT_FOUND"
	case EventSdtRepeat:
		return "SDT_REPEAT"
	case EventSdtUpdate:
		return "SDT_UPDATE"
	case EventDvbGeneral:
		return "DVB_GENERAL"
	case EventPesPacket:
		return "PES_PACKET"
	case EventSlPacket:
		return "SL_PACKET"
	case EventAacConfig:
		return "AAC_CONFIG"
	case EventPcr:
		return "PCR"
	case EventAitFound:
		return "AIT_FOUND"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event
//
// 根据Type不同，有效的字段不同：
// PAT类      无
// PMT类      Program
// SDT类      无，通过 Engine.Services 获取
// DvbGeneral Section
// PesPacket  Program, Stream, Pes
// SlPacket   Program, Stream, Pes或Section二选一
// AacConfig  Program, Stream, Config
// Pcr        Program, Pcr, Stream(PCR所在pid没有对应流时为nil)
// AitFound   Section, Stream(可能为nil)
//
type Event struct {
	Type    EventType
	Program *Program
	Stream  *Stream
	Pes     *PesUnit
	Section *SectionUnit
	Pcr     *PcrUnit
	Config  []byte
}

// FramingMode PES重组模式
type FramingMode int

const (
	FramingSkip        FramingMode = iota // 丢弃PES
	FramingDefault                        // 重组并输出PES
	FramingSkipNoReset                    // 丢弃PES，但不重置该流的时钟状态
)

func (m FramingMode) String() string {
	switch m {
	case FramingSkip:
		return "SKIP"
	case FramingDefault:
		return "DEFAULT"
	case FramingSkipNoReset:
		return "SKIP_NO_RESET"
	}
	return fmt.Sprintf("FramingMode(%d)", int(m))
}

// AacState AAC流的两步声明
//
// AacAwaitingConfig 第一次声明时没有AudioSpecificConfig，流被切到FramingDefault等待从ADTS头中提取
// AacConfigured     已携带配置完成声明，后续的配置事件不再处理
//
type AacState int

const (
	AacNone AacState = iota
	AacAwaitingConfig
	AacConfigured
)

type Program struct {
	Number uint16
	PmtPid uint16
	PcrPid uint16
	Iod    *mpegts.Iod

	// Streams 只增不减
	Streams []*Stream

	// ClockInitialized 收到PCR或者AAC配置后置为true，此前该Program的数据不向上层输出
	ClockInitialized bool

	pmtSeen bool
}

// HasMpeg4Signaling PMT中的IOD要求同时声明普通流
func (p *Program) HasMpeg4Signaling() bool {
	return p.Iod != nil && p.Iod.IsMpeg4Signaling()
}

func (p *Program) PmtSeen() bool {
	return p.pmtSeen
}

type Stream struct {
	Pid        uint16
	StreamType uint8
	Mpeg4EsId  uint16
	Program    *Program

	// User 绑定该流的channel，nil表示未绑定
	User interface{}

	Framing FramingMode

	IsSection            bool
	SendRepeatedSections bool
	SlConfig             *mpegts.SlConfig

	Declared bool
	Aac      AacState

	hasSectionVersion bool
	sectionVersion    uint8
}

// EsId 声明时使用的ES_ID，有MPEG-4 ES_ID时使用它，否则使用pid
func (s *Stream) EsId() uint32 {
	if s.Mpeg4EsId != 0 {
		return uint32(s.Mpeg4EsId)
	}
	return uint32(s.Pid)
}

func (s *Stream) String() string {
	return fmt.Sprintf("pid=%d type=0x%02x(%s)", s.Pid, s.StreamType, mpegts.StreamTypeString(s.StreamType))
}
