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
	"net"
	"time"

	"github.com/q191201771/naza/pkg/connection"
	"github.com/q191201771/tsin/pkg/base"
)

// tcpSource mpegts-tcp://host:port，连接后直接接收ts数据
type tcpSource struct {
	uniqueKey string
	url       string
	conn      connection.Connection
	buf       []byte
}

func openTcpSource(ctx context.Context, u base.UrlContext, option SourceOption) (*tcpSource, error) {
	d := net.Dialer{Timeout: time.Duration(option.ConnectTimeoutMs) * time.Millisecond}
	conn, err := d.DialContext(ctx, "tcp", u.HostWithPort)
	if err != nil {
		return nil, base.NewErrTransport(u.Url, err)
	}
	return &tcpSource{
		uniqueKey: base.GenUkSource(),
		url:       u.Url,
		conn: connection.New(conn, func(opt *connection.Option) {
			opt.ReadBufSize = option.ReadBufSize
			opt.ReadTimeoutMs = option.ReadTimeoutMs
		}),
		buf: make([]byte, option.ReadBufSize),
	}, nil
}

func (s *tcpSource) Next() ([]byte, error) {
	for {
		n, err := s.conn.Read(s.buf)
		if n > 0 {
			return s.buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *tcpSource) Close() error {
	return s.conn.Close()
}

func (s *tcpSource) Kind() SourceKind {
	return SourceKindTcp
}

func (s *tcpSource) Duration() time.Duration {
	return 0
}

func (s *tcpSource) UniqueKey() string {
	return s.uniqueKey
}
