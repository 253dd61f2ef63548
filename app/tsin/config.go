// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"encoding/json"

	"github.com/q191201771/naza/pkg/nazajson"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/tsin"
)

type Config struct {
	// Url 输入源地址，可以带#片段选择节目，比如 udp://239.1.1.1:1234#News
	Url string `json:"url"`

	Session SessionConfig `json:"session"`

	// StatIntervalSec 定时打印统计信息的间隔，为0则不打印
	StatIntervalSec int `json:"stat_interval_sec"`

	// PlayAll 为true时声明的所有流都绑定并播放，否则只播放首个音频和首个视频
	PlayAll bool `json:"play_all"`

	Log nazalog.Option `json:"log"`
}

type SessionConfig struct {
	BufferMaxMs        uint32 `json:"buffer_max_ms"`
	StopTimeoutMs      int    `json:"stop_timeout_ms"`
	PcrJumpThresholdMs uint32 `json:"pcr_jump_threshold_ms"`
	PcrJumpClampMs     uint32 `json:"pcr_jump_clamp_ms"`
	ReadBufSize        int    `json:"read_buf_size"`
	ConnectTimeoutMs   int    `json:"connect_timeout_ms"`
	ReadTimeoutMs      int    `json:"read_timeout_ms"`
	MulticastInterface string `json:"multicast_interface"`
	DvbChannelsFile    string `json:"dvb_channels_file"`
}

func (sc SessionConfig) apply(option *tsin.SessionOption) {
	option.BufferMaxMs = sc.BufferMaxMs
	option.StopTimeoutMs = sc.StopTimeoutMs
	option.PcrJumpThresholdMs = sc.PcrJumpThresholdMs
	option.PcrJumpClampMs = sc.PcrJumpClampMs
	option.ReadBufSize = sc.ReadBufSize
	option.ConnectTimeoutMs = sc.ConnectTimeoutMs
	option.ReadTimeoutMs = sc.ReadTimeoutMs
	option.MulticastInterface = sc.MulticastInterface
	option.DvbChannelsFile = sc.DvbChannelsFile
}

func LoadConf(rawContent []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(rawContent, &config); err != nil {
		return nil, err
	}

	j, err := nazajson.New(rawContent)
	if err != nil {
		return nil, err
	}

	// 配置不存在时，设置默认值
	if !j.Exist("session.buffer_max_ms") {
		config.Session.BufferMaxMs = base.BufferMaxMs
	}
	if !j.Exist("session.stop_timeout_ms") {
		config.Session.StopTimeoutMs = 5000
	}
	if !j.Exist("session.pcr_jump_threshold_ms") {
		config.Session.PcrJumpThresholdMs = 500
	}
	if !j.Exist("session.pcr_jump_clamp_ms") {
		config.Session.PcrJumpClampMs = 100
	}
	if !j.Exist("session.read_buf_size") {
		config.Session.ReadBufSize = 65536
	}
	if !j.Exist("session.connect_timeout_ms") {
		config.Session.ConnectTimeoutMs = 10000
	}
	if !j.Exist("session.dvb_channels_file") {
		config.Session.DvbChannelsFile = "channels.conf"
	}
	if !j.Exist("log.level") {
		config.Log.Level = nazalog.LevelDebug
	}
	if !j.Exist("log.filename") {
		config.Log.Filename = "./logs/tsin.log"
	}
	if !j.Exist("log.is_to_stdout") {
		config.Log.IsToStdout = true
	}
	if !j.Exist("log.is_rotate_daily") {
		config.Log.IsRotateDaily = true
	}
	if !j.Exist("log.short_file_flag") {
		config.Log.ShortFileFlag = true
	}
	if !j.Exist("log.timestamp_flag") {
		config.Log.TimestampFlag = true
	}
	if !j.Exist("log.timestamp_with_ms_flag") {
		config.Log.TimestampWithMsFlag = true
	}
	if !j.Exist("log.level_flag") {
		config.Log.LevelFlag = true
	}
	if !j.Exist("log.assert_behavior") {
		config.Log.AssertBehavior = nazalog.AssertError
	}

	return &config, nil
}
