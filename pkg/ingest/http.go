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
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/q191201771/naza/pkg/connection"
	"github.com/q191201771/tsin/pkg/base"
)

// httpSource 以下载的方式读取http上的ts文件
type httpSource struct {
	uniqueKey string
	option    SourceOption

	conn connection.Connection
	resp *http.Response
	buf  []byte

	// 与数据一起返回的错误，在下一次Next时返回
	pendingErr error
}

func openHttpSource(ctx context.Context, u base.UrlContext, option SourceOption) (*httpSource, error) {
	s := &httpSource{
		uniqueKey: base.GenUkSource(),
		option:    option,
		buf:       make([]byte, option.ReadBufSize),
	}

	// # 建立连接
	d := net.Dialer{Timeout: time.Duration(option.ConnectTimeoutMs) * time.Millisecond}
	conn, err := d.DialContext(ctx, "tcp", u.HostWithPort)
	if err != nil {
		return nil, base.NewErrTransport(u.Url, err)
	}
	if u.Scheme == base.SchemeHttps {
		// 不校验服务端证书
		conn = tls.Client(conn, &tls.Config{ServerName: u.Host, InsecureSkipVerify: true})
	}
	s.conn = connection.New(conn, func(opt *connection.Option) {
		opt.ReadBufSize = option.ReadBufSize
		opt.ReadTimeoutMs = option.ReadTimeoutMs
		opt.WriteTimeoutMs = option.ReadTimeoutMs
	})

	// # 发送 http GET 请求
	req := fmt.Sprintf("GET %s HTTP/1.1\r\nAccept: */*\r\nConnection: close\r\nHost: %s\r\nUser-Agent: %s\r\n\r\n",
		u.PathWithRawQuery, u.StdHost, base.TsinHttpPullSessionUa)
	Log.Debugf("[%s] > W http request. GET %s", s.uniqueKey, u.PathWithRawQuery)
	if _, err = s.conn.Write([]byte(req)); err != nil {
		_ = s.conn.Close()
		return nil, base.NewErrTransport(u.Url, err)
	}

	// # 读取响应头
	s.resp, err = http.ReadResponse(bufio.NewReaderSize(s.conn, option.ReadBufSize), nil)
	if err != nil {
		_ = s.conn.Close()
		return nil, base.NewErrTransport(u.Url, err)
	}
	Log.Debugf("[%s] < R http response header. code=%d, content-type=%s, content-length=%d",
		s.uniqueKey, s.resp.StatusCode, s.resp.Header.Get("Content-Type"), s.resp.ContentLength)
	if s.resp.StatusCode != http.StatusOK && s.resp.StatusCode != http.StatusPartialContent {
		_ = s.conn.Close()
		return nil, base.NewErrHttpStatus(s.resp.StatusCode)
	}
	if ct := s.resp.Header.Get("Content-Type"); ct != "" && !CanHandleMime(ct) {
		Log.Warnf("[%s] unexpected content type, try as ts anyway. content-type=%s", s.uniqueKey, ct)
	}
	return s, nil
}

func (s *httpSource) Next() ([]byte, error) {
	if s.pendingErr != nil {
		return nil, s.pendingErr
	}
	for {
		n, err := s.resp.Body.Read(s.buf)
		if n > 0 {
			s.pendingErr = err
			return s.buf[:n], nil
		}
		if err != nil {
			s.pendingErr = err
			return nil, err
		}
	}
}

func (s *httpSource) Close() error {
	if s.pendingErr == nil {
		s.pendingErr = io.ErrClosedPipe
	}
	return s.conn.Close()
}

func (s *httpSource) Kind() SourceKind {
	return SourceKindHttp
}

func (s *httpSource) Duration() time.Duration {
	return 0
}

func (s *httpSource) UniqueKey() string {
	return s.uniqueKey
}
