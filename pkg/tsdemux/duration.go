// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsdemux

import (
	"bytes"
	"io"
	"time"

	"github.com/q191201771/tsin/pkg/mpegts"
)

// EstimateDuration 根据文件头部和尾部的PCR估算时长
//
// 使用头部出现的第一个携带PCR的pid，取头部该pid的第一个PCR和尾部该pid的最后一个PCR
//
// @return 找不到PCR时返回0
//
func EstimateDuration(head []byte, tail []byte) time.Duration {
	var (
		pcrPid   uint16
		firstPcr uint64
		found    bool
	)
	scanPackets(head, func(packet []byte) bool {
		pid, pcr, _, ok := mpegts.ParsePacketPcr(packet)
		if !ok {
			return true
		}
		pcrPid, firstPcr, found = pid, pcr, true
		return false
	})
	if !found {
		return 0
	}

	var (
		lastPcr   uint64
		foundLast bool
	)
	scanPackets(tail, func(packet []byte) bool {
		pid, pcr, _, ok := mpegts.ParsePacketPcr(packet)
		if ok && pid == pcrPid {
			lastPcr, foundLast = pcr, true
		}
		return true
	})
	if !foundLast {
		return 0
	}

	if lastPcr < firstPcr {
		// PCR base为33位，回绕
		lastPcr += (uint64(1) << 33) * 300
	}
	return time.Duration(mpegts.PcrToMs(lastPcr-firstPcr)) * time.Millisecond
}

func scanPackets(b []byte, onPacket func(packet []byte) bool) {
	stop := false
	ar := newAlignReader(bytes.NewReader(b), len(b), func(packet []byte) {
		if !stop {
			stop = !onPacket(packet)
		}
	})
	_, _ = io.Copy(io.Discard, ar)
}
