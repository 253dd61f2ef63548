// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package ingest 各种ts输入源：本地文件、http下载、udp(单播与组播)、tcp、srt、dvb调谐器
package ingest

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsin/pkg/base"
)

var Log = nazalog.GetGlobalLogger()

type SourceKind int

const (
	SourceKindFile SourceKind = iota + 1
	SourceKindHttp
	SourceKindUdp
	SourceKindTcp
	SourceKindSrt
	SourceKindDvb
)

func (k SourceKind) String() string {
	switch k {
	case SourceKindFile:
		return "file"
	case SourceKindHttp:
		return "http"
	case SourceKindUdp:
		return "udp"
	case SourceKindTcp:
		return "tcp"
	case SourceKindSrt:
		return "srt"
	case SourceKindDvb:
		return "dvb"
	}
	return fmt.Sprintf("SourceKind(%d)", int(k))
}

// IsRegulated 文件和下载类的源读取速度远大于播放速度，需要按PCR节奏调节
func (k SourceKind) IsRegulated() bool {
	return k == SourceKindFile || k == SourceKindHttp
}

// ISource 输入源
//
// 注意，Next和Close可以在不同协程调用，Close会让阻塞中的Next返回
//
type ISource interface {
	// Next 阻塞直到读到数据或者出错
	//
	// @return b: 只在下次调用Next之前有效，调用方需要自行拷贝
	// @return err: 数据读完时为io.EOF
	//
	Next() (b []byte, err error)

	Close() error

	Kind() SourceKind

	// Duration 直播源或者未知时为0
	Duration() time.Duration

	UniqueKey() string
}

// ITunedSource dvb源额外提供调谐器选中的音视频pid
type ITunedSource interface {
	ISource
	TunedPids() (vpid uint16, apid uint16)
}

// ISeekable 可以按播放位置跳转的输入源，比如本地文件
//
// 注意，SeekMs和Next不能并发调用
//
type ISeekable interface {
	SeekMs(ms uint64) error
}

type SourceOption struct {
	ReadBufSize      int // 每次读取的最大字节数
	ConnectTimeoutMs int // 建立连接超时，为0则不设置超时
	ReadTimeoutMs    int // 读取数据超时，为0则不设置超时

	// StartMs 文件源的起始播放位置，按时长比例换算成文件偏移
	StartMs uint64

	// QueryNextFile 文件源读完后调用，返回下一个文件的路径，返回空字符串表示结束
	QueryNextFile func() string

	// MulticastInterface 加入组播时使用的网卡名，为空则由系统选择
	MulticastInterface string

	DvbChannelsFile string
	TunerFactory    TunerFactory
}

var defaultSourceOption = SourceOption{
	ReadBufSize:      65536,
	ConnectTimeoutMs: 10000,
	ReadTimeoutMs:    0,
	DvbChannelsFile:  "channels.conf",
}

type ModSourceOption func(option *SourceOption)

// Open 根据url打开输入源
//
// @param ctx: 只作用于建立连接的过程
//
func Open(ctx context.Context, rawUrl string, modOptions ...ModSourceOption) (ISource, error) {
	option := defaultSourceOption
	for _, fn := range modOptions {
		fn(&option)
	}

	u, err := base.ParseSourceUrl(rawUrl)
	if err != nil {
		return nil, err
	}

	var s ISource
	switch u.Scheme {
	case base.SchemeFile:
		s, err = openFileSource(u, option)
	case base.SchemeHttp, base.SchemeHttps:
		s, err = openHttpSource(ctx, u, option)
	case base.SchemeUdp, base.SchemeMpegtsUdp:
		s, err = openUdpSource(u, option)
	case base.SchemeMpegtsTcp:
		s, err = openTcpSource(ctx, u, option)
	case base.SchemeSrt:
		s, err = openSrtSource(u, option)
	case base.SchemeDvb:
		s, err = openDvbSource(u, option)
	default:
		err = fmt.Errorf("%w. scheme=%s", base.ErrUnsupportedScheme, u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	Log.Infof("[%s] open source. kind=%s, url=%s, duration=%v", s.UniqueKey(), s.Kind(), rawUrl, s.Duration())
	return s, nil
}

var (
	liveSchemes = []string{
		base.SchemeUdp + "://",
		base.SchemeMpegtsUdp + "://",
		base.SchemeMpegtsTcp + "://",
		base.SchemeSrt + "://",
		base.SchemeDvb + "://",
	}
	fileExts = []string{"ts", "m2t", "mts", "dmb", "trp"}
	mimes    = []string{"video/mpeg-2", "video/mp2t", "video/mpeg"}
)

// CanHandleUrl 判断是否是能处理的ts地址
func CanHandleUrl(rawUrl string) bool {
	lower := strings.ToLower(rawUrl)
	for _, s := range liveSchemes {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	u, err := base.ParseSourceUrl(rawUrl)
	if err != nil {
		return false
	}
	p := u.Path
	if i := strings.IndexByte(p, '?'); i != -1 {
		p = p[:i]
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	for _, e := range fileExts {
		if ext == e {
			return true
		}
	}
	return false
}

// CanHandleMime 判断http响应的Content-Type
func CanHandleMime(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i != -1 {
		mime = strings.TrimSpace(mime[:i])
	}
	for _, m := range mimes {
		if mime == m {
			return true
		}
	}
	return false
}
