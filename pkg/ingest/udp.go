// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package ingest

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/q191201771/naza/pkg/nazanet"
	"github.com/q191201771/tsin/pkg/base"
)

// udpChanSize 读循环与Next之间缓存的udp包个数
const udpChanSize = 1024

// udpSource 监听本地端口接收ts over udp，地址是组播地址时加入组播
type udpSource struct {
	uniqueKey string
	option    SourceOption

	conn   *nazanet.UdpConnection
	dataCh chan []byte
	doneCh chan struct{}

	closeOnce sync.Once
	loopErr   error
	loopDone  chan struct{}
}

func openUdpSource(u base.UrlContext, option SourceOption) (*udpSource, error) {
	s := &udpSource{
		uniqueKey: base.GenUkSource(),
		option:    option,
		dataCh:    make(chan []byte, udpChanSize),
		doneCh:    make(chan struct{}),
		loopDone:  make(chan struct{}),
	}

	port := u.Port
	if port == 0 {
		port = base.DefaultUdpPort
	}

	var mconn *net.UDPConn
	ip := net.ParseIP(u.Host)
	if ip != nil && ip.IsMulticast() {
		var ifi *net.Interface
		if option.MulticastInterface != "" {
			var err error
			if ifi, err = net.InterfaceByName(option.MulticastInterface); err != nil {
				return nil, base.NewErrTransport(u.Url, err)
			}
		}
		var err error
		mconn, err = net.ListenMulticastUDP("udp", ifi, &net.UDPAddr{IP: ip, Port: port})
		if err != nil {
			return nil, base.NewErrTransport(u.Url, err)
		}
		Log.Infof("[%s] join multicast group. group=%s:%d, ifi=%s", s.uniqueKey, u.Host, port, option.MulticastInterface)
	}

	var err error
	s.conn, err = nazanet.NewUdpConnection(func(opt *nazanet.UdpConnectionOption) {
		if mconn != nil {
			opt.Conn = mconn
		} else {
			opt.LAddr = fmt.Sprintf("%s:%d", u.Host, port)
		}
		opt.MaxReadPacketSize = option.ReadBufSize
	})
	if err != nil {
		if mconn != nil {
			_ = mconn.Close()
		}
		return nil, base.NewErrTransport(u.Url, err)
	}

	go s.runReadLoop()
	return s, nil
}

func (s *udpSource) Next() ([]byte, error) {
	var timeoutCh <-chan time.Time
	if s.option.ReadTimeoutMs > 0 {
		t := time.NewTimer(time.Duration(s.option.ReadTimeoutMs) * time.Millisecond)
		defer t.Stop()
		timeoutCh = t.C
	}

	select {
	case b := <-s.dataCh:
		return b, nil
	case <-s.loopDone:
		// 读循环退出前已经放入的数据仍然要消费完
		select {
		case b := <-s.dataCh:
			return b, nil
		default:
		}
		if s.loopErr != nil {
			return nil, s.loopErr
		}
		return nil, base.ErrSourceClosed
	case <-s.doneCh:
		return nil, base.ErrSourceClosed
	case <-timeoutCh:
		return nil, fmt.Errorf("%w. udp read timeout, ms=%d", base.ErrTransport, s.option.ReadTimeoutMs)
	}
}

func (s *udpSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.doneCh)
		err = s.conn.Dispose()
	})
	return err
}

func (s *udpSource) Kind() SourceKind {
	return SourceKindUdp
}

func (s *udpSource) Duration() time.Duration {
	return 0
}

func (s *udpSource) UniqueKey() string {
	return s.uniqueKey
}

// ----- private -------------------------------------------------------------------------------------------------------

func (s *udpSource) runReadLoop() {
	err := s.conn.RunLoop(func(b []byte, raddr *net.UDPAddr, err error) bool {
		if err != nil {
			return false
		}
		// 读循环复用内存块，需要拷贝
		cb := make([]byte, len(b))
		copy(cb, b)
		select {
		case s.dataCh <- cb:
			return true
		case <-s.doneCh:
			return false
		}
	})
	select {
	case <-s.doneCh:
	default:
		s.loopErr = err
		Log.Warnf("[%s] udp read loop exit. err=%+v", s.uniqueKey, err)
	}
	close(s.loopDone)
}
