// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package ingest

import (
	"net/url"
	"strconv"
	"time"

	"github.com/haivision/srtgo"
	"github.com/q191201771/tsin/pkg/base"
)

// srtSource 以caller方式连接srt服务端拉取ts
//
// srt://host:port?streamid=xxx&latency=120
//
type srtSource struct {
	uniqueKey string
	socket    *srtgo.SrtSocket
	buf       []byte
}

func openSrtSource(u base.UrlContext, option SourceOption) (*srtSource, error) {
	port := u.Port
	if port == 0 {
		port = base.DefaultSrtPort
	}

	options := make(map[string]string)
	options["transtype"] = "live"
	options["mode"] = "caller"
	if option.ConnectTimeoutMs > 0 {
		options["conntimeo"] = strconv.Itoa(option.ConnectTimeoutMs)
	}
	if q, err := url.ParseQuery(u.RawQuery); err == nil {
		for _, k := range []string{"streamid", "latency", "passphrase", "pbkeylen"} {
			if v := q.Get(k); v != "" {
				options[k] = v
			}
		}
	}

	s := &srtSource{
		uniqueKey: base.GenUkSource(),
		// srt live模式单个包最大1316字节，按配置的大小读可以一次取多个包
		buf: make([]byte, option.ReadBufSize),
	}
	s.socket = srtgo.NewSrtSocket(u.Host, uint16(port), options)
	if err := s.socket.Connect(); err != nil {
		s.socket.Close()
		return nil, base.NewErrTransport(u.Url, err)
	}
	return s, nil
}

func (s *srtSource) Next() ([]byte, error) {
	for {
		n, err := s.socket.Read(s.buf)
		if err != nil {
			return nil, base.NewErrTransport("srt", err)
		}
		if n > 0 {
			return s.buf[:n], nil
		}
	}
}

func (s *srtSource) Close() error {
	s.socket.Close()
	return nil
}

func (s *srtSource) Kind() SourceKind {
	return SourceKindSrt
}

func (s *srtSource) Duration() time.Duration {
	return 0
}

func (s *srtSource) UniqueKey() string {
	return s.uniqueKey
}
