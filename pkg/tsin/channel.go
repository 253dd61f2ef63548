// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsin

import (
	"strings"

	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/mpegts"
	"github.com/q191201771/tsin/pkg/tsdemux"
)

// getServiceDesc
//
// @param subUrl: 可以携带fragment，见 base.ParseFragment
//
// @return 只有expect为ExpectScene时返回描述，其他情况返回nil，请求在表到达后解析
//
func (c *controller) getServiceDesc(expect ExpectType, subUrl string) (*ObjectDescriptor, error) {
	frag, err := base.ParseFragment(base.FragmentOfSubUrl(subUrl))
	if err != nil {
		return nil, err
	}
	c.addRequest(frag)

	var od *ObjectDescriptor
	if expect == ExpectScene {
		od = c.sceneDescriptor()
	}

	if c.runState == RunStateStopped {
		Log.Debugf("[%s] worker stopped, restart for service desc. sub=%s", c.uniqueKey, subUrl)
		c.restartUnregulated()
	}
	return od, nil
}

func (c *controller) sceneDescriptor() *ObjectDescriptor {
	if prog := c.singleIodProgram(); prog != nil {
		return &ObjectDescriptor{
			ObjectDescriptorId: prog.Iod.ObjectDescriptorId,
			ServiceId:          prog.Number,
			IsIod:              true,
			Iod:                prog.Iod,
		}
	}
	if c.epgRequested {
		c.epgRequested = false
		return newEpgObjectDescriptor()
	}
	return &ObjectDescriptor{ObjectDescriptorId: 1, IsIod: true}
}

// singleIodProgram 流中只有一个节目并且它带有IOD
func (c *controller) singleIodProgram() *tsdemux.Program {
	progs := c.engine.Programs()
	if len(progs) != 1 || progs[0].Iod == nil {
		return nil
	}
	return progs[0]
}

// connectChannel 把channel绑定到ES_ID对应的流上
//
// 无论成功与否，都会通过 ITerminal.OnConnect 回复一次
//
func (c *controller) connectChannel(ch Channel, url string) error {
	err := c.bindChannel(ch, url)
	if err != nil {
		Log.Warnf("[%s] connect channel failed. url=%s, err=%+v", c.uniqueKey, url, err)
	} else {
		Log.Infof("[%s] channel connected. url=%s", c.uniqueKey, url)
	}
	c.terminal.OnConnect(ch, err)
	return err
}

func (c *controller) bindChannel(ch Channel, url string) error {
	esId, err := base.ParseEsId(url)
	if err != nil {
		return base.NewErrStreamNotFound(0)
	}

	if prog := c.singleIodProgram(); prog != nil {
		for _, s := range prog.Streams {
			if uint32(s.Mpeg4EsId) != esId {
				continue
			}
			if s.User != nil {
				return base.NewErrServiceError(s.Pid)
			}
			s.User = ch
			return nil
		}
		return base.NewErrStreamNotFound(esId)
	}

	if esId == base.EpgEsId {
		c.epgChannel = ch
		return nil
	}

	if esId > uint32(mpegts.PidMax) {
		return base.NewErrStreamNotFound(esId)
	}
	s := c.engine.StreamByPid(uint16(esId))
	if s == nil {
		return base.NewErrStreamNotFound(esId)
	}
	if s.User != nil {
		return base.NewErrServiceError(s.Pid)
	}
	s.User = ch
	return nil
}

func (c *controller) disconnectChannel(ch Channel) error {
	var err error
	if s := c.streamOfChannel(ch); s != nil {
		s.User = nil
		c.engine.SetFraming(s, tsdemux.FramingSkip)
	} else if ch == c.epgChannel && ch != nil {
		c.epgChannel = nil
	} else {
		err = base.NewErrStreamNotFound(0)
	}
	c.terminal.OnDisconnect(ch, err)
	return err
}

func (c *controller) streamOfChannel(ch Channel) *tsdemux.Stream {
	if ch == nil {
		return nil
	}
	for _, prog := range c.engine.Programs() {
		for _, s := range prog.Streams {
			if s.User == ch {
				return s
			}
		}
	}
	return nil
}

// serviceCommand
//
// @param done: 必须且只会被调用一次，Stop时可能在读取协程退出后才调用
//
func (c *controller) serviceCommand(cmd *Command, done func(error)) {
	if cmd.Type == CommandHasAudio {
		done(c.hasAudio(cmd))
		return
	}
	if cmd.Channel == nil {
		done(base.NewErrNotSupported(cmd.Type.String()))
		return
	}

	switch cmd.Type {
	case CommandSetPull, CommandInteractive:
		done(base.NewErrNotSupported(cmd.Type.String()))
	case CommandBuffer:
		cmd.BufferMaxMs = c.option.BufferMaxMs
		cmd.BufferMinMs = 0
		done(nil)
	case CommandDuration:
		cmd.DurationMs = c.durationMs
		done(nil)
	case CommandPlay:
		done(c.play(cmd))
	case CommandStop:
		c.stop(cmd, done)
	case CommandConfig:
		done(c.config(cmd))
	default:
		done(base.NewErrNotSupported(cmd.Type.String()))
	}
}

// hasAudio 带有pid的子地址只指向单个流，不能作为音频的附加源
func (c *controller) hasAudio(cmd *Command) error {
	_, frag := base.SplitFragment(cmd.BaseUrl)
	if strings.HasPrefix(frag, "pid=") {
		return base.NewErrNotSupported(cmd.Type.String())
	}
	return nil
}

func (c *controller) play(cmd *Command) error {
	s := c.streamOfChannel(cmd.Channel)
	if s == nil {
		if cmd.Channel == c.epgChannel {
			return nil
		}
		return base.NewErrStreamNotFound(0)
	}

	if s.Pid == s.Program.PcrPid {
		s.Program.ClockInitialized = false
	}
	c.engine.SetFraming(s, tsdemux.FramingDefault)

	if c.playing.Load() == 0 {
		// 结束位置不生效，由终端停止播放
		if cmd.StartRangeMs > 0 && c.worker != nil {
			c.worker.seek(cmd.StartRangeMs)
		}
		if c.runState != RunStateRunning && c.runState != RunStateStopRequested {
			c.startWorker()
		}
	}
	n := c.playing.Increment()
	Log.Infof("[%s] play. %s, range=[%d, %d], playing=%d", c.uniqueKey, s.String(), cmd.StartRangeMs, cmd.EndRangeMs, n)
	return nil
}

func (c *controller) stop(cmd *Command, done func(error)) {
	s := c.streamOfChannel(cmd.Channel)
	if s == nil {
		// EPG通道的Play不计数，Stop同样不计数
		if cmd.Channel == c.epgChannel {
			done(nil)
			return
		}
		done(base.NewErrStreamNotFound(0))
		return
	}
	c.engine.SetFraming(s, tsdemux.FramingSkip)

	n := c.playing.Load()
	if n > 0 {
		n = c.playing.Decrement()
	}
	Log.Infof("[%s] stop. playing=%d, run state=%s", c.uniqueKey, n, c.runState)

	if n != 0 || c.runState != RunStateRunning {
		done(nil)
		return
	}
	c.runState = RunStateStopRequested
	c.stopWaiters = append(c.stopWaiters, done)
	if c.worker != nil {
		c.worker.stop()
	}
}

// config section承载的流使用终端指定的SL头格式，并且每个section都要转发
func (c *controller) config(cmd *Command) error {
	s := c.streamOfChannel(cmd.Channel)
	if s == nil {
		return base.NewErrStreamNotFound(0)
	}
	if !s.IsSection {
		return nil
	}
	if cmd.SlConfig != nil {
		cfg := *cmd.SlConfig
		s.SlConfig = &cfg
	}
	s.SendRepeatedSections = true
	cmd.UseM2tsSections = true
	return nil
}
