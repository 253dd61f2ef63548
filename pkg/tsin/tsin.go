// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package tsin 把ts流拆成可单独寻址的基本流交给媒体终端，并按PCR恢复的时钟节奏投递
//
// 数据流向：输入源 -> feed -> tsdemux.Demuxer -> tsdemux.Engine -> 事件分发 -> ITerminal
//
package tsin

import (
	"fmt"

	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsin/pkg/mpegts"
)

var Log = nazalog.GetGlobalLogger()

// Channel terminal提供的通道句柄，Session内部只做相等比较
//
// 注意，必须是可比较的类型，一般使用指针
//
type Channel interface{}

// ITerminal 媒体终端
//
// 注意，所有回调都在Session内部的同一个协程中执行，不要在回调中同步调用Session的方法，否则会死锁
//
type ITerminal interface {
	// OnConnect 连接结果，ch为nil时表示service级别的连接
	OnConnect(ch Channel, err error)

	// OnDisconnect ch为nil时表示service关闭
	OnDisconnect(ch Channel, err error)

	// AddMedia 声明一个对象
	//
	// @param od: 为nil时表示请求重新生成场景
	// @param noSceneUpdate: 为true时只声明，不触发场景更新
	//
	AddMedia(od *ObjectDescriptor, noSceneUpdate bool)

	// OnSlPacket 投递数据
	//
	// @param payload: 只在回调期间有效，PCR包的payload为nil
	// @param hdr:     为nil时表示没有SL头，payload需要原样使用(比如EPG)
	//
	OnSlPacket(ch Channel, payload []byte, hdr *mpegts.SlHeader)

	// OnServiceEvent 转发给上层的诊断类事件
	OnServiceEvent(evt ServiceEvent)

	// OnEndOfStream 输入源结束或者中途出错
	OnEndOfStream(ch Channel)

	// BufferOccupancyMs 终端当前的缓冲时长，时钟调节时用于反压
	BufferOccupancyMs() uint32
}

// ----- object descriptor ---------------------------------------------------------------------------------------------

// 终端侧的stream type
const (
	ObjectStreamTypeScene        = uint8(0x03)
	ObjectStreamTypeVisual       = uint8(0x04)
	ObjectStreamTypeAudio        = uint8(0x05)
	ObjectStreamTypePrivateScene = uint8(0x20)
)

// object type indication
const (
	OtiVideoMpeg4Part2   = uint8(0x20)
	OtiVideoAvc          = uint8(0x21)
	OtiAudioAacMpeg4     = uint8(0x40)
	OtiVideoMpeg2_422    = uint8(0x65)
	OtiAudioMpeg2Part3   = uint8(0x69)
	OtiVideoMpeg1        = uint8(0x6A)
	OtiAudioMpeg1        = uint8(0x6B)
	OtiVideoSmpteVc1     = uint8(0xA3)
	OtiPrivateSceneEpg   = uint8(0xC4)
	OtiUnknownStreamType = uint8(0xFF)
)

type EsDescriptor struct {
	EsId                 uint32
	OcrEsId              uint32 // 所在节目的PCR pid
	StreamType           uint8
	ObjectTypeIndication uint8
	DecoderSpecificInfo  []byte
	SlConfig             mpegts.SlConfig
}

// ObjectDescriptor 声明给终端的对象
//
// IsIod为true时是场景级别的InitialObjectDescriptor，Iod不为nil时是PMT中携带的原始IOD
//
type ObjectDescriptor struct {
	ObjectDescriptorId uint16
	ServiceId          uint16 // 节目号
	Esds               []EsDescriptor

	IsIod bool
	Iod   *mpegts.Iod
}

func (od *ObjectDescriptor) String() string {
	if od.IsIod {
		return fmt.Sprintf("IOD(id=%d, pmt=%t)", od.ObjectDescriptorId, od.Iod != nil)
	}
	s := fmt.Sprintf("OD(id=%d, service=%d", od.ObjectDescriptorId, od.ServiceId)
	for _, esd := range od.Esds {
		s += fmt.Sprintf(", es_id=%d st=0x%02x oti=0x%02x dsi=%d", esd.EsId, esd.StreamType, esd.ObjectTypeIndication, len(esd.DecoderSpecificInfo))
	}
	return s + ")"
}

// ExpectType GetServiceDesc期望的描述类型
type ExpectType int

const (
	ExpectUndefined ExpectType = iota
	ExpectScene
	ExpectVideo
	ExpectAudio
	ExpectText
)

// ----- service event -------------------------------------------------------------------------------------------------

type ServiceEventType int

const (
	ServiceEventPatFound ServiceEventType = iota + 1
	ServiceEventAitFound
)

func (t ServiceEventType) String() string {
	switch t {
	case ServiceEventPatFound:
		return "PAT_FOUND"
	case ServiceEventAitFound:
		return "AIT_FOUND"
	}
	return fmt.Sprintf("ServiceEventType(%d)", int(t))
}

// ServiceEvent 原样转发给上层的表事件
type ServiceEvent struct {
	Type ServiceEventType

	// PatFound 时为PAT中的节目数
	ProgramCount int

	// AitFound 时为AIT section
	Pid     uint16
	Section []byte
}

// ----- command -------------------------------------------------------------------------------------------------------

type CommandType int

const (
	CommandHasAudio CommandType = iota + 1
	CommandSetPull
	CommandInteractive
	CommandBuffer
	CommandDuration
	CommandPlay
	CommandStop
	CommandConfig
)

func (t CommandType) String() string {
	switch t {
	case CommandHasAudio:
		return "HAS_AUDIO"
	case CommandSetPull:
		return "SET_PULL"
	case CommandInteractive:
		return "INTERACTIVE"
	case CommandBuffer:
		return "BUFFER"
	case CommandDuration:
		return "DURATION"
	case CommandPlay:
		return "PLAY"
	case CommandStop:
		return "STOP"
	case CommandConfig:
		return "CONFIG"
	}
	return fmt.Sprintf("CommandType(%d)", int(t))
}

// Command ServiceCommand的参数，部分字段用于返回结果
type Command struct {
	Type    CommandType
	Channel Channel

	// HasAudio
	BaseUrl string

	// Play，EndRangeMs为0表示播放到结尾
	StartRangeMs uint64
	EndRangeMs   uint64

	// Config，section承载的流使用的SL头格式
	SlConfig *mpegts.SlConfig

	// ----- 以下为输出 -----

	// Buffer
	BufferMaxMs uint32
	BufferMinMs uint32

	// Duration，直播源为0
	DurationMs uint64

	// Config
	UseM2tsSections bool
}
