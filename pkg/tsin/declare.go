// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsin

import (
	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/mpegts"
	"github.com/q191201771/tsin/pkg/tsdemux"
)

type codecEntry struct {
	streamType uint8
	oti        uint8
}

// codecTable ts stream_type 到终端 stream type + object type indication 的映射
var codecTable = map[uint8]codecEntry{
	mpegts.StreamTypeMpeg1Video: {ObjectStreamTypeVisual, OtiVideoMpeg1},
	mpegts.StreamTypeMpeg2Video: {ObjectStreamTypeVisual, OtiVideoMpeg2_422},
	mpegts.StreamTypeMpeg4Video: {ObjectStreamTypeVisual, OtiVideoMpeg4Part2},
	mpegts.StreamTypeAvc:        {ObjectStreamTypeVisual, OtiVideoAvc},
	mpegts.StreamTypeVc1:        {ObjectStreamTypeVisual, OtiVideoSmpteVc1},
	mpegts.StreamTypeMpeg1Audio: {ObjectStreamTypeAudio, OtiAudioMpeg1},
	mpegts.StreamTypeMpeg2Audio: {ObjectStreamTypeAudio, OtiAudioMpeg2Part3},
	mpegts.StreamTypeAacAdts:    {ObjectStreamTypeAudio, OtiAudioAacMpeg4},
	mpegts.StreamTypeAacLatm:    {ObjectStreamTypeAudio, OtiAudioAacMpeg4},
}

// declare 向终端声明一个流
//
// 重复声明是no-op
// AAC在没有配置数据时不声明，把流切到FramingDefault等待ADTS头或LATM配置，并暂停时钟调节
//
// @param dsi: decoder specific info，可以为nil
//
// @return 未声明时返回nil
//
func (c *controller) declare(s *tsdemux.Stream, dsi []byte) *ObjectDescriptor {
	if s.Declared {
		return nil
	}
	entry, ok := codecTable[s.StreamType]
	if !ok {
		Log.Debugf("[%s] skip declare, unsupported stream type. %s", c.uniqueKey, s.String())
		return nil
	}

	if s.Aac != tsdemux.AacNone && dsi == nil {
		Log.Debugf("[%s] aac stream without config, wait adts header or latm config. %s", c.uniqueKey, s.String())
		c.regulate.Store(false)
		c.engine.SetFraming(s, tsdemux.FramingDefault)
		return nil
	}

	od := c.newObjectDescriptor(s, entry, dsi)
	s.Declared = true
	Log.Infof("[%s] declare. %s", c.uniqueKey, od.String())
	c.terminal.AddMedia(od, true)
	return od
}

func (c *controller) newObjectDescriptor(s *tsdemux.Stream, entry codecEntry, dsi []byte) *ObjectDescriptor {
	prog := s.Program

	sl := mpegts.DefaultSlConfig()
	if s.Pid == prog.PcrPid {
		sl.OcrResolution = uint32(base.PcrHz)
	}

	esd := EsDescriptor{
		EsId:                 s.EsId(),
		OcrEsId:              uint32(prog.PcrPid),
		StreamType:           entry.streamType,
		ObjectTypeIndication: entry.oti,
		SlConfig:             sl,
	}
	if dsi != nil {
		esd.DecoderSpecificInfo = append([]byte(nil), dsi...)
	}
	return &ObjectDescriptor{
		ObjectDescriptorId: uint16(s.EsId()),
		ServiceId:          prog.Number,
		Esds:               []EsDescriptor{esd},
	}
}

// newEpgObjectDescriptor EIT数据以私有场景流的方式声明
func newEpgObjectDescriptor() *ObjectDescriptor {
	return &ObjectDescriptor{
		ObjectDescriptorId: uint16(base.EpgEsId),
		Esds: []EsDescriptor{
			{
				EsId:                 base.EpgEsId,
				OcrEsId:              base.EpgEsId,
				StreamType:           ObjectStreamTypePrivateScene,
				ObjectTypeIndication: OtiPrivateSceneEpg,
				SlConfig:             mpegts.DefaultSlConfig(),
			},
		},
	}
}

// setupProgram 处理一个节目的全部流
//
// @param regenerateScene: 处理完后请求终端重新生成场景
// @param noDeclare:       只设置framing，不声明
//
func (c *controller) setupProgram(prog *tsdemux.Program, regenerateScene bool, noDeclare bool) {
	// 调谐器模式下只处理包含调谐pid的节目
	if c.hasTuner && !c.programHasTunedPid(prog) {
		return
	}

	if c.sourceKind.IsRegulated() {
		c.regulate.Store(!noDeclare)
	}

	forceDeclare := prog.HasMpeg4Signaling()

	for _, s := range prog.Streams {
		if s.Pid == prog.PmtPid {
			continue
		}
		if s.User == nil {
			c.engine.SetFraming(s, tsdemux.FramingSkip)
		}

		if prog.Iod == nil {
			if !noDeclare {
				c.declare(s, nil)
			}
			continue
		}
		if forceDeclare && !mpegts.IsMpeg4Systems(s.StreamType) {
			c.declare(s, nil)
		}
	}

	if prog.Iod == nil && regenerateScene {
		c.terminal.AddMedia(nil, false)
	}
}

func (c *controller) programHasTunedPid(prog *tsdemux.Program) bool {
	for _, s := range prog.Streams {
		if (c.tunerVpid != 0 && s.Pid == c.tunerVpid) || (c.tunerApid != 0 && s.Pid == c.tunerApid) {
			return true
		}
	}
	return false
}
