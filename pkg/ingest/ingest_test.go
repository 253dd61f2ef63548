// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package ingest

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/gots/packet"
	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/innertest"
	"github.com/q191201771/tsin/pkg/mpegts"
)

func readAll(t *testing.T, s ISource) []byte {
	var out []byte
	for {
		b, err := s.Next()
		if err == io.EOF {
			break
		}
		assert.Equal(t, nil, err)
		if err != nil {
			break
		}
		out = append(out, b...)
	}
	return out
}

func writeTempTs(t *testing.T, name string, b []byte) string {
	filename := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(filename, b, 0666)
	assert.Equal(t, nil, err)
	return filename
}

func TestCanHandleUrl(t *testing.T) {
	golden := map[string]bool{
		"/tmp/a.ts":                    true,
		"/tmp/a.TS":                    true,
		"file:///tmp/a.m2t":            true,
		"/tmp/b.dmb#News":              true,
		"http://host/live/a.ts?k=v":    true,
		"udp://239.0.0.1:1234":         true,
		"mpegts-udp://:1234":           true,
		"mpegts-tcp://127.0.0.1:5000":  true,
		"srt://127.0.0.1:9000":         true,
		"dvb://Channel One":            true,
		"/tmp/a.mp4":                   false,
		"http://host/live/a.flv":       false,
		"rtmp://127.0.0.1/live/stream": false,
	}
	for in, expected := range golden {
		assert.Equal(t, expected, CanHandleUrl(in))
	}

	assert.Equal(t, true, CanHandleMime("video/MP2T"))
	assert.Equal(t, true, CanHandleMime("video/mpeg; charset=binary"))
	assert.Equal(t, false, CanHandleMime("video/mp4"))
}

func TestSourceKind(t *testing.T) {
	assert.Equal(t, true, SourceKindFile.IsRegulated())
	assert.Equal(t, true, SourceKindHttp.IsRegulated())
	assert.Equal(t, false, SourceKindUdp.IsRegulated())
	assert.Equal(t, false, SourceKindDvb.IsRegulated())
	assert.Equal(t, "srt", SourceKindSrt.String())
}

func TestFileSource(t *testing.T) {
	ts := innertest.GenSimpleTs(2000)
	filename := writeTempTs(t, "a.ts", ts)

	s, err := Open(context.Background(), filename, func(option *SourceOption) {
		option.ReadBufSize = 1000
	})
	assert.Equal(t, nil, err)
	defer s.Close()
	assert.Equal(t, SourceKindFile, s.Kind())
	assert.Equal(t, 2*time.Second, s.Duration())
	assert.Equal(t, ts, readAll(t, s))

	_, err = Open(context.Background(), filepath.Join(t.TempDir(), "notexist.ts"))
	assert.Equal(t, true, errors.Is(err, base.ErrFileNotExist))
}

func TestFileSourceStart(t *testing.T) {
	ts := innertest.GenSimpleTs(2000)
	filename := writeTempTs(t, "a.ts", ts)

	s, err := Open(context.Background(), "file://"+filename, func(option *SourceOption) {
		option.StartMs = 1000
	})
	assert.Equal(t, nil, err)
	defer s.Close()
	out := readAll(t, s)
	offset := len(ts) - len(out)
	assert.Equal(t, 0, offset%mpegts.PacketSize)
	assert.Equal(t, true, offset > 0 && offset <= len(ts)/2)
	assert.Equal(t, ts[offset:], out)
}

func TestFileSourceSeek(t *testing.T) {
	ts := innertest.GenSimpleTs(2000)
	filename := writeTempTs(t, "a.ts", ts)

	s, err := Open(context.Background(), filename)
	assert.Equal(t, nil, err)
	defer s.Close()
	seekable, ok := s.(ISeekable)
	assert.Equal(t, true, ok)

	// 读完之后跳回中间
	assert.Equal(t, ts, readAll(t, s))
	assert.Equal(t, nil, seekable.SeekMs(1000))
	out := readAll(t, s)
	offset := len(ts) - len(out)
	assert.Equal(t, 0, offset%mpegts.PacketSize)
	assert.Equal(t, true, offset > 0 && offset <= len(ts)/2)
	assert.Equal(t, ts[offset:], out)

	assert.Equal(t, nil, seekable.SeekMs(0))
	assert.Equal(t, ts, readAll(t, s))
}

func TestFileSourceNextFile(t *testing.T) {
	first := innertest.GenSimpleTs(1000)
	second := innertest.GenSimpleTs(500)
	firstName := writeTempTs(t, "first.ts", first)
	secondName := writeTempTs(t, "second.ts", second)

	var queried int
	s, err := Open(context.Background(), firstName, func(option *SourceOption) {
		option.QueryNextFile = func() string {
			queried++
			if queried == 1 {
				return secondName
			}
			return ""
		}
	})
	assert.Equal(t, nil, err)
	defer s.Close()
	assert.Equal(t, time.Second, s.Duration())
	assert.Equal(t, append(append([]byte{}, first...), second...), readAll(t, s))
	assert.Equal(t, 2, queried)
}

func TestHttpSource(t *testing.T) {
	ts := innertest.GenSimpleTs(1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/live/a.ts" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, base.TsinHttpPullSessionUa, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "video/mp2t")
		_, _ = w.Write(ts)
	}))
	defer srv.Close()

	s, err := Open(context.Background(), srv.URL+"/live/a.ts")
	assert.Equal(t, nil, err)
	assert.Equal(t, SourceKindHttp, s.Kind())
	assert.Equal(t, ts, readAll(t, s))
	_ = s.Close()

	_, err = Open(context.Background(), srv.URL+"/live/b.ts")
	assert.Equal(t, true, errors.Is(err, base.ErrHttpStatus))
}

func TestTcpSource(t *testing.T) {
	ts := innertest.GenSimpleTs(1000)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Equal(t, nil, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write(ts)
		_ = conn.Close()
	}()

	s, err := Open(context.Background(), "mpegts-tcp://"+ln.Addr().String())
	assert.Equal(t, nil, err)
	defer s.Close()
	assert.Equal(t, SourceKindTcp, s.Kind())
	assert.Equal(t, ts, readAll(t, s))
}

func TestUdpSource(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	assert.Equal(t, nil, err)
	addr := pc.LocalAddr().String()
	_ = pc.Close()

	s, err := Open(context.Background(), "udp://"+addr, func(option *SourceOption) {
		option.ReadTimeoutMs = 2000
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, SourceKindUdp, s.Kind())

	conn, err := net.Dial("udp", addr)
	assert.Equal(t, nil, err)
	defer conn.Close()
	ts := innertest.GenSimpleTs(0)
	_, err = conn.Write(ts)
	assert.Equal(t, nil, err)

	b, err := s.Next()
	assert.Equal(t, nil, err)
	assert.Equal(t, ts, b)

	_ = s.Close()
	_, err = s.Next()
	assert.Equal(t, true, errors.Is(err, base.ErrSourceClosed))
}

func TestUnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "rtmp://127.0.0.1/live/a")
	assert.IsNotNil(t, err)
}

// ---------------------------------------------------------------------------------------------------------------------

const testChannelsConf = `
# zap channels
Channel One:506000000:INVERSION_AUTO:BANDWIDTH_8_MHZ:FEC_3_4:FEC_AUTO:QAM_16:TRANSMISSION_MODE_2K:GUARD_INTERVAL_1_4:HIERARCHY_NONE:256:257:1
Radio:514000:INVERSION_AUTO:0:258+260:3
`

func TestParseDvbChannels(t *testing.T) {
	channels, err := ParseDvbChannels(strings.NewReader(testChannelsConf))
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(channels))

	ch, ok := LookupDvbChannel(channels, "Channel One")
	assert.Equal(t, true, ok)
	assert.Equal(t, uint32(506000000), ch.Frequency)
	assert.Equal(t, uint16(256), ch.Vpid)
	assert.Equal(t, uint16(257), ch.Apid)
	assert.Equal(t, uint16(1), ch.ServiceId)
	assert.Equal(t, true, strings.HasPrefix(ch.TuneParams, "506000000:INVERSION_AUTO"))
	assert.Equal(t, true, strings.HasSuffix(ch.TuneParams, "HIERARCHY_NONE"))

	ch, ok = LookupDvbChannel(channels, "Radio")
	assert.Equal(t, true, ok)
	assert.Equal(t, uint16(0), ch.Vpid)
	assert.Equal(t, uint16(258), ch.Apid)

	_, ok = LookupDvbChannel(channels, "radio")
	assert.Equal(t, false, ok)

	_, err = ParseDvbChannels(strings.NewReader("bad:line\n"))
	assert.Equal(t, true, errors.Is(err, base.ErrDvbChannel))
}

type fakeTuner struct {
	ch      chan packet.Packet
	tuned   string
	stopped bool
}

func (f *fakeTuner) GetChannel() chan packet.Packet {
	return f.ch
}

func (f *fakeTuner) Tune(params string) bool {
	f.tuned = params
	return !strings.HasPrefix(params, "0")
}

func (f *fakeTuner) Stop() {
	f.stopped = true
}

func TestDvbSource(t *testing.T) {
	conf := filepath.Join(t.TempDir(), "channels.conf")
	assert.Equal(t, nil, os.WriteFile(conf, []byte(testChannelsConf), 0666))

	tuner := &fakeTuner{ch: make(chan packet.Packet, 16)}
	s, err := Open(context.Background(), "dvb://Channel One#News", func(option *SourceOption) {
		option.DvbChannelsFile = conf
		option.TunerFactory = func() (ITuner, error) {
			return tuner, nil
		}
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, SourceKindDvb, s.Kind())
	assert.Equal(t, true, strings.HasPrefix(tuner.tuned, "506000000"))
	vpid, apid := s.(ITunedSource).TunedPids()
	assert.Equal(t, uint16(256), vpid)
	assert.Equal(t, uint16(257), apid)

	ts := innertest.GenSimpleTs(0)
	var expected []byte
	for i := 0; i+mpegts.PacketSize <= len(ts); i += mpegts.PacketSize {
		var pkt packet.Packet
		copy(pkt[:], ts[i:i+mpegts.PacketSize])
		tuner.ch <- pkt
		expected = append(expected, ts[i:i+mpegts.PacketSize]...)
	}
	// 空包被丢弃
	null := mpegts.PackPcrPacket(mpegts.PidNull, 0, 0, false)
	var nullPkt packet.Packet
	copy(nullPkt[:], null)
	tuner.ch <- nullPkt
	close(tuner.ch)

	assert.Equal(t, expected, readAll(t, s))
	_ = s.Close()
	assert.Equal(t, true, tuner.stopped)

	_, err = Open(context.Background(), "dvb://Nope", func(option *SourceOption) {
		option.DvbChannelsFile = conf
		option.TunerFactory = func() (ITuner, error) {
			return &fakeTuner{ch: make(chan packet.Packet)}, nil
		}
	})
	assert.Equal(t, true, errors.Is(err, base.ErrDvbChannel))

	_, err = Open(context.Background(), "dvb://Channel One")
	assert.Equal(t, true, errors.Is(err, base.ErrNoTuner))
}
