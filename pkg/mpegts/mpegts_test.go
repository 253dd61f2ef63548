// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/mpegts"
)

var goldenPat = []byte{
	0x00,
	0x00, 0xB0, 0x0D, 0x00, 0x01, 0xC1, 0x00, 0x00,
	0x00, 0x01, 0xF0, 0x00,
	0x2A, 0xB1, 0x04, 0xB2,
}

func TestCrc32(t *testing.T) {
	assert.Equal(t, uint32(0x0376E6E7), mpegts.CalcCrc32(0xFFFFFFFF, []byte("123456789")))
	assert.Equal(t, true, mpegts.CheckSectionCrc(goldenPat[1:]))

	broken := append([]byte(nil), goldenPat[1:]...)
	broken[8] ^= 0x01
	assert.Equal(t, false, mpegts.CheckSectionCrc(broken))
	assert.Equal(t, false, mpegts.CheckSectionCrc([]byte{0x00}))
}

func TestPackPsi(t *testing.T) {
	pat := mpegts.PackPat(1, 0, []mpegts.PatProgram{{ProgramNumber: 1, PmtPid: 0x1000}})
	assert.Equal(t, goldenPat, pat)

	iod := mpegts.PackIodDescriptor(1, 0x10, []uint16{101})
	pmt := mpegts.PackPmt(1, 0x100, 3, []mpegts.Descriptor{{Tag: mpegts.DescriptorTagIod, Data: iod}}, []mpegts.PmtStream{
		{StreamType: mpegts.StreamTypeAvc, Pid: 0x100},
		{StreamType: mpegts.StreamTypeMpeg4SlPes, Pid: 0x101, Descriptors: []mpegts.Descriptor{{Tag: mpegts.DescriptorTagSl, Data: []byte{0x00, 0x65}}}},
	})
	assert.Equal(t, mpegts.TableIdPmt, pmt[1])
	assert.Equal(t, len(pmt)-4, int(pmt[2]&0x0F)<<8|int(pmt[3]))
	assert.Equal(t, uint8(3), (pmt[6]>>1)&0x1F)
	assert.Equal(t, true, mpegts.CheckSectionCrc(pmt[1:]))

	sdt := mpegts.PackSdt(1, 1, 0, []mpegts.SdtService{{ServiceId: 1, ServiceType: mpegts.ServiceTypeDigitalTv, ProviderName: "tsin", ServiceName: "News"}})
	assert.Equal(t, mpegts.TableIdSdt, sdt[1])
	assert.Equal(t, uint8(0xF0), sdt[2]&0xF0)
	assert.Equal(t, true, mpegts.CheckSectionCrc(sdt[1:]))
	assert.Equal(t, true, bytes.Contains(sdt, []byte("News")))
}

func TestPacketizeSection(t *testing.T) {
	var cc uint8
	out := mpegts.PacketizeSection(mpegts.PidPat, &cc, goldenPat)
	assert.Equal(t, mpegts.PacketSize, len(out))
	assert.Equal(t, uint8(1), cc)

	h, err := mpegts.ParseTsPacketHeader(out)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint8(1), h.PayloadUnitStart)
	assert.Equal(t, mpegts.PidPat, h.Pid)
	assert.Equal(t, goldenPat, out[4:4+len(goldenPat)])
	assert.Equal(t, uint8(0xFF), out[mpegts.PacketSize-1])

	long := make([]byte, 300)
	out = mpegts.PacketizeSection(0x20, &cc, long)
	assert.Equal(t, 2*mpegts.PacketSize, len(out))
	assert.Equal(t, uint8(0x00), out[mpegts.PacketSize+1]&0x40)
	assert.Equal(t, uint8(3), cc)
}

func TestPcr(t *testing.T) {
	golden := []uint64{0, 1, 299, 300, 27000000, (uint64(1)<<33-1)*300 + 299}
	for _, pcr := range golden {
		b := make([]byte, 6)
		mpegts.PackPcr(b, pcr)
		assert.Equal(t, pcr, mpegts.ParsePcr(b))
	}
	assert.Equal(t, uint64(1000), mpegts.PcrToMs(27000000))
	assert.Equal(t, uint64(27000000), mpegts.PcrValue(90000, 0))
	assert.Equal(t, uint64(301), mpegts.PcrValue(1, 1))
}

func TestParseTsPacketHeader(t *testing.T) {
	_, err := mpegts.ParseTsPacketHeader([]byte{0x47, 0x00})
	assert.Equal(t, true, errors.Is(err, base.ErrShortBuffer))

	_, err = mpegts.ParseTsPacketHeader([]byte{0x46, 0x40, 0x00, 0x10})
	assert.Equal(t, true, errors.Is(err, base.ErrSyncByte))

	h, err := mpegts.ParseTsPacketHeader([]byte{0x47, 0x41, 0x00, 0x37})
	assert.Equal(t, nil, err)
	assert.Equal(t, uint16(0x100), h.Pid)
	assert.Equal(t, uint8(3), h.Adaptation)
	assert.Equal(t, uint8(7), h.Cc)
	assert.Equal(t, true, h.HasAdaptation())
}

func TestPackPcrPacket(t *testing.T) {
	packet := mpegts.PackPcrPacket(0x100, 5, 27000000*3, true)
	assert.Equal(t, mpegts.PacketSize, len(packet))
	pid, pcr, discontinuity, ok := mpegts.ParsePacketPcr(packet)
	assert.Equal(t, true, ok)
	assert.Equal(t, uint16(0x100), pid)
	assert.Equal(t, uint64(27000000*3), pcr)
	assert.Equal(t, true, discontinuity)

	var cc uint8
	_, _, _, ok = mpegts.ParsePacketPcr(mpegts.PacketizeSection(0, &cc, goldenPat))
	assert.Equal(t, false, ok)
}

func TestFramePack(t *testing.T) {
	raw := make([]byte, 400)
	for i := range raw {
		raw[i] = uint8(i)
	}
	frame := mpegts.Frame{
		Pts:     90000,
		Dts:     90000,
		Pid:     0x100,
		Sid:     mpegts.StreamIdVideo,
		Key:     true,
		WithPcr: true,
		Pcr:     27000000,
		Raw:     raw,
	}
	out := frame.Pack()
	assert.Equal(t, 3*mpegts.PacketSize, len(out))
	assert.Equal(t, uint8(3), frame.Cc)

	pid, pcr, _, ok := mpegts.ParsePacketPcr(out)
	assert.Equal(t, true, ok)
	assert.Equal(t, uint16(0x100), pid)
	assert.Equal(t, uint64(27000000), pcr)

	f, err := mpegts.ParseTsPacketAdaptation(out[4:])
	assert.Equal(t, nil, err)
	assert.Equal(t, true, f.RandomAccess)
	assert.Equal(t, false, f.Discontinuity)

	var payload []byte
	for i := 0; i < len(out); i += mpegts.PacketSize {
		payload = append(payload, packetPayload(t, out[i:i+mpegts.PacketSize])...)
	}
	// 00 00 01 E0 [len 2B] 80 80 05 [PTS 5B]
	assert.Equal(t, []byte{0x00, 0x00, 0x01, mpegts.StreamIdVideo}, payload[:4])
	assert.Equal(t, 400+8, int(payload[4])<<8|int(payload[5]))
	assert.Equal(t, raw, payload[14:])
}

func TestFramePackSmall(t *testing.T) {
	frame := mpegts.Frame{
		Pts:           180000,
		Dts:           90000,
		Pid:           0x101,
		Sid:           mpegts.StreamIdAudio,
		Discontinuity: true,
		Raw:           []byte{1, 2, 3},
	}
	out := frame.Pack()
	assert.Equal(t, mpegts.PacketSize, len(out))
	f, err := mpegts.ParseTsPacketAdaptation(out[4:])
	assert.Equal(t, nil, err)
	assert.Equal(t, true, f.Discontinuity)
	assert.Equal(t, false, f.PcrFlag)

	payload := packetPayload(t, out)
	// PTS和DTS都存在时，PES_header_data_length为10
	assert.Equal(t, uint8(10), payload[8])
	assert.Equal(t, []byte{1, 2, 3}, payload[19:])
}

func TestDepacketize(t *testing.T) {
	cfg := mpegts.DefaultSlConfig()
	h, n, err := mpegts.Depacketize(&cfg, []byte{0xC0, 'x'})
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, true, h.AccessUnitStartFlag)
	assert.Equal(t, true, h.RandomAccessPointFlag)

	empty := mpegts.SlConfig{}
	h, n, err = mpegts.Depacketize(&empty, []byte{'x'})
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, true, h.AccessUnitStartFlag)
	assert.Equal(t, true, h.AccessUnitEndFlag)

	full := mpegts.SlConfig{
		UseAccessUnitStartFlag:   true,
		UseAccessUnitEndFlag:     true,
		UseRandomAccessPointFlag: true,
		UseTimestampsFlag:        true,
		TimestampLength:          33,
		TimestampResolution:      90000,
	}
	// start=1 end=0 rap=1 dts=0 cts=1 CTS[33b] 00
	cts := uint64(0x123456789)
	v := (uint64(0x15)<<33 | cts) << 2
	b := []byte{uint8(v >> 32), uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v), 0xAA, 0xBB}
	h, n, err = mpegts.Depacketize(&full, b)
	assert.Equal(t, nil, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, true, h.AccessUnitStartFlag)
	assert.Equal(t, false, h.AccessUnitEndFlag)
	assert.Equal(t, true, h.RandomAccessPointFlag)
	assert.Equal(t, false, h.DecodingTimeStampFlag)
	assert.Equal(t, true, h.CompositionTimeStampFlag)
	assert.Equal(t, cts, h.CompositionTimeStamp)
	assert.Equal(t, []byte{0xAA, 0xBB}, b[n:])

	_, _, err = mpegts.Depacketize(&full, []byte{0xFF})
	assert.Equal(t, true, errors.Is(err, base.ErrSlHeaderTooLong))
}

func TestIod(t *testing.T) {
	raw := mpegts.PackIodDescriptor(1, mpegts.OdProfileMpeg4Signaling, []uint16{101, 102})
	iod, err := mpegts.ParseIodDescriptor(raw)
	assert.Equal(t, nil, err)
	assert.Equal(t, mpegts.OdTagInitialObjectDescriptor, iod.Tag)
	assert.Equal(t, uint16(1), iod.ObjectDescriptorId)
	assert.Equal(t, false, iod.UrlFlag)
	assert.Equal(t, true, iod.IsMpeg4Signaling())
	assert.Equal(t, []uint16{101, 102}, iod.EsIds)
	assert.Equal(t, raw, iod.Raw)

	iod, err = mpegts.ParseIodDescriptor(mpegts.PackIodDescriptor(2, 0xFF, nil))
	assert.Equal(t, nil, err)
	assert.Equal(t, false, iod.IsMpeg4Signaling())
	assert.Equal(t, 0, len(iod.EsIds))

	_, err = mpegts.ParseIodDescriptor([]byte{0x10, 0x01, 0x02, 0x20, 0x00})
	assert.IsNotNil(t, err)

	esId, err := mpegts.ParseSlDescriptor([]byte{0x00, 0x65})
	assert.Equal(t, nil, err)
	assert.Equal(t, uint16(101), esId)
}

func packetPayload(t *testing.T, packet []byte) []byte {
	h, err := mpegts.ParseTsPacketHeader(packet)
	assert.Equal(t, nil, err)
	if h.HasAdaptation() {
		return packet[5+int(packet[4]):]
	}
	return packet[4:]
}
