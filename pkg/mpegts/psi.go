// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
)

// descriptor_tag
//
// <iso13818-1.pdf> <Table 2-45 Program and program element descriptors>
// <EN 300 468> <Table 12 Possible locations of descriptors>
const (
	DescriptorTagRegistration = uint8(0x05)
	DescriptorTagIod          = uint8(0x1D) // IOD_descriptor
	DescriptorTagSl           = uint8(0x1E) // SL_descriptor
	DescriptorTagFmc          = uint8(0x1F) // FMC_descriptor
	DescriptorTagService      = uint8(0x48)
	DescriptorTagShortEvent   = uint8(0x4D)
	DescriptorTagExtension    = uint8(0x7F)
)

// service_type of service_descriptor
const (
	ServiceTypeDigitalTv    = uint8(0x01)
	ServiceTypeDigitalRadio = uint8(0x02)
)

type Descriptor struct {
	Tag  uint8
	Data []byte
}

type PatProgram struct {
	ProgramNumber uint16
	PmtPid        uint16
}

type PmtStream struct {
	StreamType  uint8
	Pid         uint16
	Descriptors []Descriptor
}

type SdtService struct {
	ServiceId    uint16
	ServiceType  uint8
	ProviderName string
	ServiceName  string
}

// PsiSection 带section_syntax_indicator的长格式section
//
type PsiSection struct {
	TableId          uint8
	TableIdExtension uint16
	Version          uint8

	// PrivateIndicator DVB的表(SDT、EIT)中该bit为reserved_future_use，置1
	PrivateIndicator bool

	// Body 位于last_section_number之后，CRC_32之前的内容
	Body []byte
}

// Pack
//
// @return: 包含pointer_field的完整section，可直接作为PUSI packet的负载
//
func (psi *PsiSection) Pack() []byte {
	sectionLength := 5 + len(psi.Body) + 4
	out := make([]byte, 1+3+sectionLength)
	bw := nazabits.NewBitWriter(out)

	bw.WriteBits8(8, 0) // pointer_field
	bw.WriteBits8(8, psi.TableId)
	bw.WriteBit(1) // section_syntax_indicator
	if psi.PrivateIndicator {
		bw.WriteBit(1)
	} else {
		bw.WriteBit(0)
	}
	bw.WriteBits8(2, 0xFF)
	bw.WriteBits16(12, uint16(sectionLength))
	bw.WriteBits16(16, psi.TableIdExtension)
	bw.WriteBits8(2, 0xFF)
	bw.WriteBits8(5, psi.Version)
	bw.WriteBit(1)      // current_next_indicator
	bw.WriteBits8(8, 0) // section_number
	bw.WriteBits8(8, 0) // last_section_number
	copy(out[9:], psi.Body)

	crc := CalcCrc32(0xFFFFFFFF, out[1:len(out)-4])
	bele.BePutUint32(out[len(out)-4:], crc)
	return out
}

// PackPat
//
// @param tsId: transport_stream_id
//
func PackPat(tsId uint16, version uint8, programs []PatProgram) []byte {
	body := make([]byte, 4*len(programs))
	bw := nazabits.NewBitWriter(body)
	for _, p := range programs {
		bw.WriteBits16(16, p.ProgramNumber)
		bw.WriteBits8(3, 0xFF)
		bw.WriteBits16(13, p.PmtPid)
	}
	psi := PsiSection{
		TableId:          TableIdPat,
		TableIdExtension: tsId,
		Version:          version,
		Body:             body,
	}
	return psi.Pack()
}

// PackPmt
//
// @param programInfo: program_info中的描述符，比如IOD_descriptor
//
func PackPmt(programNumber uint16, pcrPid uint16, version uint8, programInfo []Descriptor, streams []PmtStream) []byte {
	n := 4 + descriptorsLength(programInfo)
	for _, s := range streams {
		n += 5 + descriptorsLength(s.Descriptors)
	}
	body := make([]byte, n)
	bw := nazabits.NewBitWriter(body)
	bw.WriteBits8(3, 0xFF)
	bw.WriteBits16(13, pcrPid)
	writeDescriptorsWithLength(&bw, programInfo)
	for _, s := range streams {
		bw.WriteBits8(8, s.StreamType)
		bw.WriteBits8(3, 0xFF)
		bw.WriteBits16(13, s.Pid)
		writeDescriptorsWithLength(&bw, s.Descriptors)
	}
	psi := PsiSection{
		TableId:          TableIdPmt,
		TableIdExtension: programNumber,
		Version:          version,
		Body:             body,
	}
	return psi.Pack()
}

// PackSdt SDT actual
//
// <EN 300 468> <5.2.3 Service Description Table>
//
func PackSdt(tsId uint16, onId uint16, version uint8, services []SdtService) []byte {
	n := 3
	descs := make([]Descriptor, len(services))
	for i, s := range services {
		data := make([]byte, 0, 3+len(s.ProviderName)+len(s.ServiceName))
		data = append(data, s.ServiceType, uint8(len(s.ProviderName)))
		data = append(data, s.ProviderName...)
		data = append(data, uint8(len(s.ServiceName)))
		data = append(data, s.ServiceName...)
		descs[i] = Descriptor{Tag: DescriptorTagService, Data: data}
		n += 5 + 2 + len(data)
	}
	body := make([]byte, n)
	bw := nazabits.NewBitWriter(body)
	bw.WriteBits16(16, onId)
	bw.WriteBits8(8, 0xFF) // reserved_future_use
	for i, s := range services {
		bw.WriteBits16(16, s.ServiceId)
		bw.WriteBits8(6, 0xFF)
		bw.WriteBit(0) // EIT_schedule_flag
		bw.WriteBit(1) // EIT_present_following_flag
		bw.WriteBits8(3, 4)
		bw.WriteBit(0) // free_CA_mode
		writeDescriptorsWithLength(&bw, descs[i:i+1])
	}
	psi := PsiSection{
		TableId:          TableIdSdt,
		TableIdExtension: tsId,
		Version:          version,
		PrivateIndicator: true,
		Body:             body,
	}
	return psi.Pack()
}

// PacketizeSection 将section切割成ts packet，不足部分用0xFF填充
//
// 注意，内部会增加cc的值
//
func PacketizeSection(pid uint16, cc *uint8, section []byte) []byte {
	const payloadSize = PacketSize - 4
	nPacket := (len(section) + payloadSize - 1) / payloadSize
	out := make([]byte, nPacket*PacketSize)
	for i := 0; i < nPacket; i++ {
		packet := out[i*PacketSize : (i+1)*PacketSize]
		packet[0] = syncByte
		packet[1] = uint8(pid>>8) & 0x1F
		if i == 0 {
			packet[1] |= 0x40
		}
		packet[2] = uint8(pid)
		packet[3] = 0x10 | (*cc & 0x0F)
		*cc++

		n := copy(packet[4:], section[i*payloadSize:])
		for j := 4 + n; j < PacketSize; j++ {
			packet[j] = 0xFF
		}
	}
	return out
}

// ----- private -------------------------------------------------------------------------------------------------------

func descriptorsLength(ds []Descriptor) int {
	n := 0
	for _, d := range ds {
		n += 2 + len(d.Data)
	}
	return n
}

func writeDescriptorsWithLength(bw *nazabits.BitWriter, ds []Descriptor) {
	bw.WriteBits8(4, 0xFF)
	bw.WriteBits16(12, uint16(descriptorsLength(ds)))
	for _, d := range ds {
		bw.WriteBits8(8, d.Tag)
		bw.WriteBits8(8, uint8(len(d.Data)))
		for _, b := range d.Data {
			bw.WriteBits8(8, b)
		}
	}
}
