// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsin

import (
	"strconv"

	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/tsdemux"
)

// addRequest 记录terminal通过子地址发起的选择请求，等表到达后在flush中解析
func (c *controller) addRequest(frag base.Fragment) {
	switch frag.Kind {
	case base.FragmentAll:
		c.requestAll = true
	case base.FragmentPid:
		for _, pid := range c.pidRequests {
			if pid == frag.Pid {
				return
			}
		}
		c.pidRequests = append(c.pidRequests, frag.Pid)
	case base.FragmentEpg:
		c.epgRequested = true
	case base.FragmentProgram:
		for _, r := range c.progRequests {
			if r.fragment == frag.Text {
				return
			}
		}
		c.progRequests = append(c.progRequests, progRequest{fragment: frag.Text})
	}
	Log.Debugf("[%s] add request. kind=%s, pid=%d, text=%s", c.uniqueKey, frag.Kind, frag.Pid, frag.Text)
}

// flush 尝试解析所有未完成的请求，解析成功的请求被移除
func (c *controller) flush() {
	found := false

	remainPids := c.pidRequests[:0]
	for _, pid := range c.pidRequests {
		s := c.engine.StreamByPid(pid)
		if s == nil {
			remainPids = append(remainPids, pid)
			continue
		}
		if !s.IsSection && s.User == nil {
			c.engine.SetFraming(s, tsdemux.FramingSkip)
		}
		// 已经声明过的流同样需要重新生成场景
		c.declare(s, nil)
		found = true
		Log.Debugf("[%s] pid request resolved. pid=%d", c.uniqueKey, pid)
	}
	c.pidRequests = remainPids

	remainProgs := c.progRequests[:0]
	for _, r := range c.progRequests {
		prog := c.resolveFragment(r.fragment)
		if prog == nil || !prog.PmtSeen() {
			remainProgs = append(remainProgs, r)
			continue
		}
		Log.Debugf("[%s] program request resolved. fragment=%s, program=%d", c.uniqueKey, r.fragment, prog.Number)
		c.setupProgram(prog, false, false)
		c.selectedPrograms[prog.Number] = struct{}{}
		found = true
	}
	c.progRequests = remainProgs

	// EPG模式下不整体重新生成场景
	if c.epgRequested {
		if !c.epgDeclared {
			c.epgDeclared = true
			Log.Infof("[%s] declare epg.", c.uniqueKey)
			c.terminal.AddMedia(newEpgObjectDescriptor(), false)
		}
	} else if found {
		c.terminal.AddMedia(nil, false)
	}
}

// resolveFragment 按服务名精确匹配(区分大小写)，否则按数字匹配SDT中的service id
//
// 没有SDT时，数字直接作为节目号
//
func (c *controller) resolveFragment(fragment string) *tsdemux.Program {
	services := c.engine.Services()
	for _, svc := range services {
		if svc.Name == fragment {
			return c.engine.ProgramByNumber(svc.Id)
		}
	}

	id, err := strconv.ParseUint(fragment, 10, 16)
	if err != nil {
		return nil
	}
	if len(services) == 0 {
		return c.engine.ProgramByNumber(uint16(id))
	}
	for _, svc := range services {
		if svc.Id == uint16(id) {
			return c.engine.ProgramByNumber(svc.Id)
		}
	}
	return nil
}
