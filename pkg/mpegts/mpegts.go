// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import "github.com/q191201771/naza/pkg/nazalog"

var Log = nazalog.GetGlobalLogger()

// MPEG: Moving Picture Experts Group
// TS: transport Stream
// PES: Packetized Elementary Stream
// PSI: Program Specific Information
// PAT: Program Association Table
// PMT: Program Map Table
// SDT: Service Description Table
// EIT: Event Information Table
// PCR: Program Clock Reference
// IOD: Initial Object Descriptor
// SL: Sync Layer(MPEG-4 systems)

const (
	PacketSize = 188
	syncByte   = uint8(0x47)
)

// 保留pid
const (
	PidPat    = uint16(0x0000)
	PidCat    = uint16(0x0001)
	PidSdt    = uint16(0x0011)
	PidEit    = uint16(0x0012)
	PidNull   = uint16(0x1FFF)
	PidMax    = uint16(0x1FFF)
	MaxStream = int(PidMax) + 1
)

// TableId
const (
	TableIdPat       = uint8(0x00)
	TableIdPmt       = uint8(0x02)
	TableIdSceneDesc = uint8(0x04) // ISO_IEC_14496_scene_description_section
	TableIdOd        = uint8(0x05) // ISO_IEC_14496_object_descriptor_section
	TableIdSdt       = uint8(0x42)
	TableIdEitStart  = uint8(0x4E)
	TableIdEitEnd    = uint8(0x6F)
	TableIdAit       = uint8(0x74)
)

// stream_type
//
// <iso13818-1.pdf> <Table 2-29 Stream type assignments>
const (
	StreamTypeMpeg1Video    = uint8(0x01)
	StreamTypeMpeg2Video    = uint8(0x02)
	StreamTypeMpeg1Audio    = uint8(0x03)
	StreamTypeMpeg2Audio    = uint8(0x04)
	StreamTypePrivateSect   = uint8(0x05)
	StreamTypePrivateData   = uint8(0x06)
	StreamTypeAacAdts       = uint8(0x0F)
	StreamTypeMpeg4Video    = uint8(0x10)
	StreamTypeAacLatm       = uint8(0x11)
	StreamTypeMpeg4SlPes    = uint8(0x12) // SL-packetized stream or FlexMux stream carried in PES packets
	StreamTypeMpeg4SlSect   = uint8(0x13) // SL-packetized stream or FlexMux stream carried in ISO_IEC_14496_sections
	StreamTypeMetadata      = uint8(0x15)
	StreamTypeAvc           = uint8(0x1B)
	StreamTypeHevc          = uint8(0x24)
	StreamTypeAc3           = uint8(0x81)
	StreamTypeVc1           = uint8(0xEA)
	StreamTypeUnknownMarker = uint8(0xFF)
)

// IsMpeg4Systems MPEG-4 systems流，由IOD承载，不单独声明
func IsMpeg4Systems(streamType uint8) bool {
	return streamType == StreamTypeMpeg4SlPes || streamType == StreamTypeMpeg4SlSect
}

// IsSectionStream 以section方式而非PES方式承载
func IsSectionStream(streamType uint8) bool {
	return streamType == StreamTypeMpeg4SlSect || streamType == StreamTypePrivateSect
}

func StreamTypeString(streamType uint8) string {
	switch streamType {
	case StreamTypeMpeg1Video:
		return "MPEG-1 Video"
	case StreamTypeMpeg2Video:
		return "MPEG-2 Video"
	case StreamTypeMpeg1Audio:
		return "MPEG-1 Audio"
	case StreamTypeMpeg2Audio:
		return "MPEG-2 Audio"
	case StreamTypePrivateSect:
		return "Private Section"
	case StreamTypePrivateData:
		return "Private Data"
	case StreamTypeAacAdts:
		return "AAC ADTS"
	case StreamTypeMpeg4Video:
		return "MPEG-4 Video"
	case StreamTypeAacLatm:
		return "AAC LATM"
	case StreamTypeMpeg4SlPes:
		return "MPEG-4 SL PES"
	case StreamTypeMpeg4SlSect:
		return "MPEG-4 SL Section"
	case StreamTypeMetadata:
		return "Metadata"
	case StreamTypeAvc:
		return "H.264"
	case StreamTypeHevc:
		return "H.265"
	case StreamTypeAc3:
		return "AC-3"
	case StreamTypeVc1:
		return "VC-1"
	}
	return "Unknown"
}
