// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsdemux

import "github.com/q191201771/naza/pkg/nazalog"

// tsdemux 把ts字节流转换成带状态的表事件
//
// Demuxer 基于go-astits做packet、PSI、PES层面的解析，输出无状态的Unit
// Engine  维护Program、Stream、Service表，处理framing，输出Event
//

var Log = nazalog.GetGlobalLogger()
