// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultHttpPort  = 80
	DefaultHttpsPort = 443
	DefaultUdpPort   = 1234
	DefaultSrtPort   = 9000
)

const (
	SchemeFile      = "file"
	SchemeHttp      = "http"
	SchemeHttps     = "https"
	SchemeUdp       = "udp"
	SchemeMpegtsUdp = "mpegts-udp"
	SchemeMpegtsTcp = "mpegts-tcp"
	SchemeSrt       = "srt"
	SchemeDvb       = "dvb"
)

// UrlContext 输入源地址解析后的各字段
type UrlContext struct {
	Url string // 原始地址，包含'#'片段

	Scheme       string
	StdHost      string // host or host:port
	HostWithPort string
	Host         string
	Port         int

	PathWithRawQuery string
	Path             string
	LastItemOfPath   string // 注意，没有前面的'/'
	RawQuery         string // 参数
	Fragment         string // '#'之后的内容，不含'#'
}

// ParseUrl
//
// @param defaultPort: 注意，如果rawUrl中显示指定了端口，则该参数不生效
//                     注意，如果设置为-1，内部依然会对常见协议(http, https, udp, srt)设置默认端口
//
func ParseUrl(rawUrl string, defaultPort int) (ctx UrlContext, err error) {
	ctx.Url = rawUrl
	rawUrl, ctx.Fragment = SplitFragment(rawUrl)

	stdUrl, err := url.Parse(rawUrl)
	if err != nil {
		return ctx, err
	}
	if stdUrl.Scheme == "" {
		return ctx, fmt.Errorf("%w. url=%s", ErrInvalidUrl, rawUrl)
	}
	ctx.Scheme = strings.ToLower(stdUrl.Scheme)
	if defaultPort == -1 {
		defaultPort = defaultPortOf(ctx.Scheme)
	}

	ctx.StdHost = stdUrl.Host
	if h, p, err := net.SplitHostPort(stdUrl.Host); err == nil {
		if ctx.Port, err = strconv.Atoi(p); err != nil {
			return ctx, fmt.Errorf("%w. url=%s", ErrInvalidUrl, rawUrl)
		}
		ctx.Host = h
		ctx.HostWithPort = stdUrl.Host
	} else {
		// url中没有端口
		ctx.Host = stdUrl.Host
		ctx.HostWithPort = stdUrl.Host
		if defaultPort != -1 {
			ctx.Port = defaultPort
			ctx.HostWithPort = net.JoinHostPort(stdUrl.Host, strconv.Itoa(defaultPort))
		}
	}

	ctx.Path = stdUrl.Path
	ctx.LastItemOfPath = ctx.Path[strings.LastIndexByte(ctx.Path, '/')+1:]
	ctx.RawQuery = stdUrl.RawQuery
	ctx.PathWithRawQuery = ctx.Path
	if ctx.RawQuery != "" {
		ctx.PathWithRawQuery += "?" + ctx.RawQuery
	}
	return ctx, nil
}

// ParseSourceUrl 解析输入源地址
//
// 没有scheme的地址当作本地文件路径，scheme为 file
//
func ParseSourceUrl(rawUrl string) (ctx UrlContext, err error) {
	if !strings.Contains(rawUrl, "://") {
		ctx.Url = rawUrl
		ctx.Scheme = SchemeFile
		ctx.Path, ctx.Fragment = SplitFragment(rawUrl)
		ctx.LastItemOfPath = ctx.Path[strings.LastIndexByte(ctx.Path, '/')+1:]
		return ctx, nil
	}

	// dvb://<channel name>, channel name中可能有空格等字符，不走url.Parse
	if strings.HasPrefix(strings.ToLower(rawUrl), SchemeDvb+"://") {
		ctx.Url = rawUrl
		ctx.Scheme = SchemeDvb
		ctx.Host, ctx.Fragment = SplitFragment(rawUrl[len(SchemeDvb)+3:])
		return ctx, nil
	}

	ctx, err = ParseUrl(rawUrl, -1)
	if err != nil {
		return
	}
	switch ctx.Scheme {
	case SchemeFile:
		// file:///a/b.ts, Host为空
	case SchemeHttp, SchemeHttps, SchemeUdp, SchemeMpegtsUdp, SchemeMpegtsTcp, SchemeSrt:
		if ctx.Host == "" && ctx.Scheme != SchemeUdp && ctx.Scheme != SchemeMpegtsUdp {
			return ctx, fmt.Errorf("%w. url=%s", ErrInvalidUrl, rawUrl)
		}
	default:
		return ctx, fmt.Errorf("%w. scheme=%s", ErrInvalidUrl, ctx.Scheme)
	}
	return
}

// SplitFragment 按最后一个'#'拆分
func SplitFragment(rawUrl string) (withoutFragment string, fragment string) {
	index := strings.LastIndexByte(rawUrl, '#')
	if index == -1 {
		return rawUrl, ""
	}
	return rawUrl[:index], rawUrl[index+1:]
}

// ----- private -------------------------------------------------------------------------------------------------------

func defaultPortOf(scheme string) int {
	switch scheme {
	case SchemeHttp:
		return DefaultHttpPort
	case SchemeHttps:
		return DefaultHttpsPort
	case SchemeUdp, SchemeMpegtsUdp:
		return DefaultUdpPort
	case SchemeSrt:
		return DefaultSrtPort
	}
	return -1
}
