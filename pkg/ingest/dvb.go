// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Comcast/gots/packet"
	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/mpegts"
)

// ITuner dvb调谐器，由驱动层实现
type ITuner interface {
	// GetChannel 调谐成功后从这个channel读取ts包，调谐器停止后channel被关闭
	GetChannel() chan packet.Packet

	// Tune 调谐到指定频点，参数为channels.conf中频率及之后的调谐字段
	Tune(params string) bool

	Stop()
}

type TunerFactory func() (ITuner, error)

// DvbChannel channels.conf(zap格式)中的一行
//
// <name>:<frequency>:<调谐参数...>:<vpid>:<apid>:<service id>
//
type DvbChannel struct {
	Name       string
	Frequency  uint32
	TuneParams string
	Vpid       uint16
	Apid       uint16
	ServiceId  uint16
}

// ParseDvbChannels 解析zap格式的channels.conf，空行和'#'开头的行被忽略
func ParseDvbChannels(r io.Reader) ([]DvbChannel, error) {
	var ret []DvbChannel
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		items := strings.Split(line, ":")
		if len(items) < 5 {
			return nil, fmt.Errorf("%w. line=%d, content=%s", base.ErrDvbChannel, lineNo, line)
		}
		n := len(items)
		freq, err := strconv.ParseUint(items[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w. line=%d, frequency=%s", base.ErrDvbChannel, lineNo, items[1])
		}
		ch := DvbChannel{
			Name:       items[0],
			Frequency:  uint32(freq),
			TuneParams: strings.Join(items[1:n-3], ":"),
			Vpid:       parseZapPid(items[n-3]),
			Apid:       parseZapPid(items[n-2]),
			ServiceId:  parseZapPid(items[n-1]),
		}
		ret = append(ret, ch)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// LookupDvbChannel 按名字查找，区分大小写
func LookupDvbChannel(channels []DvbChannel, name string) (DvbChannel, bool) {
	for _, ch := range channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return DvbChannel{}, false
}

// ---------------------------------------------------------------------------------------------------------------------

// dvbSource 从调谐器接收ts包，每次Next把已到达的包拼成一块返回
type dvbSource struct {
	uniqueKey string
	channel   DvbChannel

	tuner  ITuner
	pktCh  chan packet.Packet
	doneCh chan struct{}
	buf    []byte

	closeOnce sync.Once
}

func openDvbSource(u base.UrlContext, option SourceOption) (*dvbSource, error) {
	if option.TunerFactory == nil {
		return nil, base.ErrNoTuner
	}

	fp, err := os.Open(option.DvbChannelsFile)
	if err != nil {
		return nil, base.NewErrTransport(u.Url, err)
	}
	channels, err := ParseDvbChannels(fp)
	_ = fp.Close()
	if err != nil {
		return nil, err
	}
	ch, ok := LookupDvbChannel(channels, u.Host)
	if !ok {
		return nil, fmt.Errorf("%w. name=%s, file=%s", base.ErrDvbChannel, u.Host, option.DvbChannelsFile)
	}

	tuner, err := option.TunerFactory()
	if err != nil {
		return nil, base.NewErrTransport(u.Url, err)
	}
	return newDvbSource(tuner, ch, option)
}

func newDvbSource(tuner ITuner, ch DvbChannel, option SourceOption) (*dvbSource, error) {
	s := &dvbSource{
		uniqueKey: base.GenUkSource(),
		channel:   ch,
		tuner:     tuner,
		doneCh:    make(chan struct{}),
	}
	size := option.ReadBufSize - option.ReadBufSize%packet.PacketSize
	if size < packet.PacketSize {
		size = packet.PacketSize
	}
	s.buf = make([]byte, size)

	if !tuner.Tune(ch.TuneParams) {
		tuner.Stop()
		return nil, base.NewErrTransport("dvb://"+ch.Name, fmt.Errorf("tune failed. params=%s", ch.TuneParams))
	}
	s.pktCh = tuner.GetChannel()
	Log.Infof("[%s] dvb tuned. name=%s, freq=%d, vpid=%d, apid=%d, sid=%d",
		s.uniqueKey, ch.Name, ch.Frequency, ch.Vpid, ch.Apid, ch.ServiceId)
	return s, nil
}

func (s *dvbSource) Next() ([]byte, error) {
	n := 0
	// 阻塞等待第一个有效包
	for n == 0 {
		select {
		case pkt, ok := <-s.pktCh:
			if !ok {
				return nil, io.EOF
			}
			n = s.appendPacket(&pkt, n)
		case <-s.doneCh:
			return nil, base.ErrSourceClosed
		}
	}
	// 把已经到达的包一并取走
	for n+packet.PacketSize <= len(s.buf) {
		select {
		case pkt, ok := <-s.pktCh:
			if !ok {
				return s.buf[:n], nil
			}
			n = s.appendPacket(&pkt, n)
		default:
			return s.buf[:n], nil
		}
	}
	return s.buf[:n], nil
}

func (s *dvbSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.doneCh)
		s.tuner.Stop()
	})
	return nil
}

func (s *dvbSource) Kind() SourceKind {
	return SourceKindDvb
}

func (s *dvbSource) Duration() time.Duration {
	return 0
}

func (s *dvbSource) UniqueKey() string {
	return s.uniqueKey
}

func (s *dvbSource) TunedPids() (vpid uint16, apid uint16) {
	return s.channel.Vpid, s.channel.Apid
}

// ----- private -------------------------------------------------------------------------------------------------------

func (s *dvbSource) appendPacket(pkt *packet.Packet, n int) int {
	if int(pkt.PID()) == int(mpegts.PidNull) {
		return n
	}
	copy(s.buf[n:], pkt[:])
	return n + packet.PacketSize
}

// parseZapPid 取开头的数字，"101+102" 这种写法取第一个
func parseZapPid(s string) uint16 {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, err := strconv.ParseUint(s[:end], 10, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}
