// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/mpegts"
	"github.com/q191201771/tsin/pkg/tsdemux"
)

// 分析本地ts文件：打印节目表、各pid的PES与PCR统计以及估算的时长
//
// Usage:
//   ./bin/tsanalyse -i /tmp/test.ts

const probeSize = 65536

type pidStat struct {
	streamType uint8
	nPes       int
	nByte      int
	nRap       int
	nPcr       int
	firstPts   uint64
	lastPts    uint64
	firstPcr   uint64
	lastPcr    uint64
}

var pid2stat = make(map[uint16]*pidStat)

func getStat(pid uint16) *pidStat {
	s, ok := pid2stat[pid]
	if !ok {
		s = &pidStat{}
		pid2stat[pid] = s
	}
	return s
}

func main() {
	_ = nazalog.Init(func(option *nazalog.Option) {
		option.AssertBehavior = nazalog.AssertFatal
	})
	defer nazalog.Sync()

	filename := parseFlag()
	fp, err := os.Open(filename)
	nazalog.Assert(nil, err)
	defer fp.Close()

	var engine *tsdemux.Engine
	engine = tsdemux.NewEngine(base.GenUkEngine(), func(evt tsdemux.Event) {
		switch evt.Type {
		case tsdemux.EventPatFound, tsdemux.EventPatUpdate:
			for _, prog := range engine.Programs() {
				nazalog.Infof("%s. program=%d, pmt pid=%d", evt.Type, prog.Number, prog.PmtPid)
			}
		case tsdemux.EventPmtFound, tsdemux.EventPmtUpdate:
			prog := evt.Program
			nazalog.Infof("%s. program=%d, pcr pid=%d, iod=%t", evt.Type, prog.Number, prog.PcrPid, prog.Iod != nil)
			for _, s := range prog.Streams {
				nazalog.Infof("  stream. %s", s)
				getStat(s.Pid).streamType = s.StreamType
				if !s.IsSection {
					engine.SetFraming(s, tsdemux.FramingDefault)
				}
			}
		case tsdemux.EventSdtFound, tsdemux.EventSdtUpdate:
			for _, svc := range engine.Services() {
				nazalog.Infof("%s. service=%d, name=%s, provider=%s", evt.Type, svc.Id, svc.Name, svc.Provider)
			}
		case tsdemux.EventPesPacket:
			s := getStat(evt.Stream.Pid)
			s.nPes++
			s.nByte += len(evt.Pes.Data)
			if evt.Pes.Rap {
				s.nRap++
			}
			if evt.Pes.HasPts {
				if s.nPes == 1 {
					s.firstPts = evt.Pes.Pts
				}
				s.lastPts = evt.Pes.Pts
			}
		case tsdemux.EventPcr:
			s := getStat(evt.Program.PcrPid)
			if s.nPcr == 0 {
				s.firstPcr = evt.Pcr.Value
			}
			s.nPcr++
			s.lastPcr = evt.Pcr.Value
			if evt.Pcr.Discontinuity {
				nazalog.Warnf("pcr discontinuity. pid=%d, pcr=%d", evt.Program.PcrPid, evt.Pcr.Value)
			}
		case tsdemux.EventAacConfig:
			nazalog.Infof("aac config. pid=%d, asc=%x", evt.Stream.Pid, evt.Config)
			evt.Stream.Aac = tsdemux.AacConfigured
		case tsdemux.EventDvbGeneral, tsdemux.EventAitFound:
			nazalog.Infof("%s. len=%d", evt.Type, len(evt.Section.Section))
		}
	})

	d := tsdemux.NewDemuxer(context.Background(), fp)
	defer d.Dispose()
	for {
		units, err := d.Next()
		if err == io.EOF {
			break
		}
		nazalog.Assert(nil, err)
		for _, u := range units {
			engine.OnUnit(u)
		}
	}

	var pids []int
	for pid := range pid2stat {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)
	for _, pid := range pids {
		s := pid2stat[uint16(pid)]
		nazalog.Infof("pid=%d, type=%s, pes=%d, bytes=%d, rap=%d, pts=[%d, %d], pcr=%d [%d, %d]",
			pid, mpegts.StreamTypeString(s.streamType), s.nPes, s.nByte, s.nRap, s.firstPts, s.lastPts,
			s.nPcr, s.firstPcr, s.lastPcr)
	}
	nazalog.Infof("duration=%v", probeDuration(fp))
}

func probeDuration(fp *os.File) interface{} {
	fi, err := fp.Stat()
	if err != nil {
		return err
	}
	n := int64(probeSize)
	if n > fi.Size() {
		n = fi.Size()
	}
	head := make([]byte, n)
	tail := make([]byte, n)
	_, _ = fp.ReadAt(head, 0)
	_, _ = fp.ReadAt(tail, fi.Size()-n)
	return tsdemux.EstimateDuration(head, tail)
}

func parseFlag() string {
	i := flag.String("i", "", "specify ts file")
	flag.Parse()
	if *i == "" {
		flag.Usage()
		_, _ = fmt.Fprintf(os.Stderr, `
Example:
  %s -i /tmp/test.ts
`, os.Args[0])
		base.OsExitAndWaitPressIfWindows(1)
	}
	return *i
}
