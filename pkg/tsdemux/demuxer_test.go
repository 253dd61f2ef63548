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
	"context"
	"io"
	"testing"
	"testing/iotest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsin/pkg/mpegts"
)

// buildTestStream 单节目，H.264视频在0x100(同时是PCR pid)，AAC音频在0x101
func buildTestStream(t *testing.T) (stream []byte, videoRaw []byte) {
	var buf bytes.Buffer
	var patCc, pmtCc, sdtCc, eitCc uint8

	pat := mpegts.PackPat(1, 0, []mpegts.PatProgram{{ProgramNumber: 1, PmtPid: 0x1000}})
	pmt := mpegts.PackPmt(1, 0x100, 0, nil, []mpegts.PmtStream{
		{StreamType: mpegts.StreamTypeAvc, Pid: 0x100},
		{StreamType: mpegts.StreamTypeAacAdts, Pid: 0x101},
	})
	sdt := mpegts.PackSdt(1, 1, 0, []mpegts.SdtService{{ServiceId: 1, ServiceType: mpegts.ServiceTypeDigitalTv, ProviderName: "tsin", ServiceName: "News"}})
	eit := (&mpegts.PsiSection{TableId: mpegts.TableIdEitStart, TableIdExtension: 1, PrivateIndicator: true, Body: []byte{0, 1, 0, 1, 0, 0x4E}}).Pack()

	writeTables := func() {
		buf.Write(mpegts.PacketizeSection(mpegts.PidPat, &patCc, pat))
		buf.Write(mpegts.PacketizeSection(0x1000, &pmtCc, pmt))
		buf.Write(mpegts.PacketizeSection(mpegts.PidSdt, &sdtCc, sdt))
	}

	videoRaw = make([]byte, 500)
	for i := range videoRaw {
		videoRaw[i] = uint8(i)
	}

	writeTables()
	buf.Write(mpegts.PackPcrPacket(0x100, 0, 0, false))
	video := mpegts.Frame{Pid: 0x100, Sid: mpegts.StreamIdVideo, Pts: 90000, Dts: 90000, Key: true, WithPcr: true, Pcr: 27000000, Raw: videoRaw}
	buf.Write(video.Pack())
	writeTables()
	buf.Write(mpegts.PacketizeSection(mpegts.PidEit, &eitCc, eit))
	buf.Write(mpegts.PacketizeSection(mpegts.PidEit, &eitCc, eit))
	for i := 0; i < 2; i++ {
		video.Pts += 3600
		video.Dts += 3600
		video.Key = false
		video.WithPcr = false
		buf.Write(video.Pack())
	}
	return buf.Bytes(), videoRaw
}

func collectUnits(t *testing.T, r io.Reader) []Unit {
	d := NewDemuxer(context.Background(), r, func(option *DemuxerOption) {
		option.ReadBufSize = 1000
	})
	defer d.Dispose()

	var out []Unit
	for {
		units, err := d.Next()
		if err == io.EOF {
			break
		}
		assert.Equal(t, nil, err)
		if err != nil {
			break
		}
		out = append(out, units...)
	}
	return out
}

func TestDemuxer(t *testing.T) {
	stream, videoRaw := buildTestStream(t)
	units := collectUnits(t, bytes.NewReader(stream))

	var (
		pats, pmts, sdts []Unit
		pcrs             []uint64
		pes              []*PesUnit
		eits             []*SectionUnit
	)
	for _, u := range units {
		switch {
		case u.Pat != nil:
			pats = append(pats, u)
		case u.Pmt != nil:
			pmts = append(pmts, u)
		case u.Sdt != nil:
			sdts = append(sdts, u)
		case u.Pcr != nil:
			pcrs = append(pcrs, u.Pcr.Value)
		case u.Pes != nil:
			pes = append(pes, u.Pes)
		case u.Section != nil:
			eits = append(eits, u.Section)
		}
	}

	assert.Equal(t, true, len(pats) >= 1)
	assert.Equal(t, []PatProgram{{Number: 1, PmtPid: 0x1000}}, pats[0].Pat.Programs)

	assert.Equal(t, true, len(pmts) >= 1)
	expectedPmt := &PmtUnit{
		ProgramNumber: 1,
		PcrPid:        0x100,
		Streams: []PmtStream{
			{Pid: 0x100, StreamType: mpegts.StreamTypeAvc},
			{Pid: 0x101, StreamType: mpegts.StreamTypeAacAdts},
		},
	}
	if diff := cmp.Diff(expectedPmt, pmts[0].Pmt); diff != "" {
		t.Errorf("pmt mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, true, len(sdts) >= 1)
	assert.Equal(t, "News", sdts[0].Sdt.Services[0].Name)
	assert.Equal(t, "tsin", sdts[0].Sdt.Services[0].Provider)

	assert.Equal(t, []uint64{0, 27000000}, pcrs)

	assert.Equal(t, true, len(pes) >= 2)
	assert.Equal(t, true, pes[0].HasPts)
	assert.Equal(t, uint64(90000), pes[0].Pts)
	assert.Equal(t, true, pes[0].Rap)
	assert.Equal(t, videoRaw, pes[0].Data)
	assert.Equal(t, uint64(93600), pes[1].Pts)
	assert.Equal(t, false, pes[1].Rap)

	assert.Equal(t, true, len(eits) >= 1)
	assert.Equal(t, mpegts.TableIdEitStart, eits[0].TableId)
	assert.Equal(t, []byte{0, 1, 0, 1, 0, 0x4E}, eits[0].Payload)
}

func TestDemuxerSplitReads(t *testing.T) {
	stream, _ := buildTestStream(t)

	// 前面带有垃圾数据，并且每次只读1字节
	junk := []byte{0x01, 0x47, 0x02, 0x03}
	r := iotest.OneByteReader(io.MultiReader(bytes.NewReader(junk), bytes.NewReader(stream)))
	units := collectUnits(t, r)

	nPcr := 0
	for _, u := range units {
		if u.Pcr != nil {
			nPcr++
		}
	}
	assert.Equal(t, 2, nPcr)
}

func TestAlignReader(t *testing.T) {
	stream, _ := buildTestStream(t)

	// 转换成192字节的M2TS格式
	var m2ts []byte
	for i := 0; i < len(stream); i += mpegts.PacketSize {
		m2ts = append(m2ts, 0x00, 0x00, 0x00, 0x00)
		m2ts = append(m2ts, stream[i:i+mpegts.PacketSize]...)
	}

	n := 0
	ar := newAlignReader(bytes.NewReader(m2ts), 4096, func(packet []byte) {
		n++
	})
	out, err := io.ReadAll(ar)
	assert.Equal(t, nil, err)
	assert.Equal(t, stream, out)
	assert.Equal(t, len(stream)/mpegts.PacketSize, n)
}

func TestEstimateDuration(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(mpegts.PackPcrPacket(0x100, 0, 27000000, false))
	buf.Write(mpegts.PackPcrPacket(0x200, 0, 0, false))
	head := append([]byte(nil), buf.Bytes()...)

	buf.Reset()
	buf.Write(mpegts.PackPcrPacket(0x100, 0, 27000000*5, false))
	buf.Write(mpegts.PackPcrPacket(0x100, 0, 27000000*11, false))
	buf.Write(mpegts.PackPcrPacket(0x200, 0, 27000000*100, false))
	tail := buf.Bytes()

	assert.Equal(t, 10*time.Second, EstimateDuration(head, tail))
	assert.Equal(t, time.Duration(0), EstimateDuration(nil, tail))
	assert.Equal(t, time.Duration(0), EstimateDuration(head, nil))
}
