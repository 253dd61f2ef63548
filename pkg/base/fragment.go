// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"fmt"
	"strconv"
	"strings"
)

type FragmentKind int

const (
	// FragmentAll 空fragment，请求所有pid
	FragmentAll FragmentKind = iota + 1

	// FragmentPid `pid=<number>`
	FragmentPid

	// FragmentEpg `EPG`，大小写不敏感，只比较前3个字符
	FragmentEpg

	// FragmentProgram service name 或者 program number
	FragmentProgram
)

func (k FragmentKind) String() string {
	switch k {
	case FragmentAll:
		return "all"
	case FragmentPid:
		return "pid"
	case FragmentEpg:
		return "epg"
	case FragmentProgram:
		return "program"
	}
	return "unknown"
}

type Fragment struct {
	Kind FragmentKind
	Pid  uint16 // Kind为FragmentPid时有效
	Text string // Kind为FragmentProgram时有效，原样保留，名字匹配区分大小写
}

// ParseFragment
//
// @param frag: 不包含'#'
//
func ParseFragment(frag string) (Fragment, error) {
	if frag == "" {
		return Fragment{Kind: FragmentAll}, nil
	}
	if strings.HasPrefix(frag, "pid=") {
		pid, err := strconv.ParseUint(frag[4:], 10, 16)
		if err != nil || pid > 0x1FFF {
			return Fragment{}, fmt.Errorf("%w. fragment=%s", ErrInvalidFragment, frag)
		}
		return Fragment{Kind: FragmentPid, Pid: uint16(pid)}, nil
	}
	if len(frag) >= 3 && strings.EqualFold(frag[:3], "EPG") {
		return Fragment{Kind: FragmentEpg}, nil
	}
	return Fragment{Kind: FragmentProgram, Text: frag}, nil
}

// FragmentOfSubUrl 从terminal请求的子地址中取出fragment
//
// dvb://<channel> 的 channel 直接作为 fragment 使用
//
func FragmentOfSubUrl(subUrl string) string {
	_, frag := SplitFragment(subUrl)
	if frag != "" {
		return frag
	}
	if len(subUrl) > len(SchemeDvb)+3 && strings.EqualFold(subUrl[:len(SchemeDvb)+3], SchemeDvb+"://") {
		return subUrl[len(SchemeDvb)+3:]
	}
	return ""
}

// ParseEsId 解析channel连接地址中的 `ES_ID=<number>`
func ParseEsId(channelUrl string) (uint32, error) {
	index := strings.Index(channelUrl, "ES_ID=")
	if index == -1 {
		return 0, fmt.Errorf("%w. url=%s", ErrEsIdNotFound, channelUrl)
	}
	s := channelUrl[index+len("ES_ID="):]
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	id, err := strconv.ParseUint(s[:end], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w. url=%s", ErrEsIdNotFound, channelUrl)
	}
	return uint32(id), nil
}
