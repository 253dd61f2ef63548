// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/nazalog"

var Log = nazalog.GetGlobalLogger()

const (
	// BufferMaxMs 向terminal报告的最大缓冲时长，时钟调节时的反压阈值
	BufferMaxMs uint32 = 1000

	// EpgEsId EIT/EPG的保留ES_ID
	EpgEsId uint32 = 18

	// PcrHz PCR时钟频率
	PcrHz = 27000000
)
