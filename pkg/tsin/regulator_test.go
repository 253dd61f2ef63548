// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsin

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsin/pkg/ingest"
	"github.com/q191201771/tsin/pkg/innertest"
	"github.com/q191201771/tsin/pkg/mpegts"
)

func newTestRegulator() *clockRegulator {
	return &clockRegulator{
		jumpThresholdMs: defaultSessionOption.PcrJumpThresholdMs,
		jumpClampMs:     defaultSessionOption.PcrJumpClampMs,
	}
}

func TestClockRegulatorJumpClamp(t *testing.T) {
	r := newTestRegulator()
	assert.Equal(t, int64(0), r.update(0, 0))
	assert.Equal(t, int64(100), r.update(100*mpegts.PcrTicksPerMs, 0))
	// 相对参考点600ms，超过500ms按100ms处理，而不是550ms
	assert.Equal(t, int64(100), r.update(700*mpegts.PcrTicksPerMs, 50))
	assert.Equal(t, uint64(0), r.pcrLast)
	assert.Equal(t, uint64(2), r.nbPck)
}

func TestClockRegulatorDrift(t *testing.T) {
	r := newTestRegulator()
	r.update(27000000, 1000)

	// 正好按时
	assert.Equal(t, int64(0), r.update(27000000+40*mpegts.PcrTicksPerMs, 1040))
	// 落后
	assert.Equal(t, int64(-60), r.update(27000000+40*mpegts.PcrTicksPerMs, 1100))
	// 领先
	assert.Equal(t, int64(300), r.update(27000000+400*mpegts.PcrTicksPerMs, 1100))
	// update不移动参考点，由调用方在等待之后reset
	assert.Equal(t, uint64(27000000), r.pcrLast)
	r.reset(27000000+400*mpegts.PcrTicksPerMs, 1400)
	assert.Equal(t, uint64(0), r.nbPck)
	assert.Equal(t, int64(40), r.update(27000000+440*mpegts.PcrTicksPerMs, 1400))
}

func TestClockRegulatorBackward(t *testing.T) {
	r := newTestRegulator()
	r.update(90*mpegts.PcrHz, 0)
	assert.Equal(t, int64(0), r.update(10*mpegts.PcrHz, 20))
	assert.Equal(t, 10*mpegts.PcrHz, r.pcrLast)
	assert.Equal(t, int64(20), r.wallAtLastPcr)
}

func TestRegulationBackpressure(t *testing.T) {
	tc := newTestCtx(t, ingest.SourceKindFile)
	tc.desc(ExpectScene, "a.ts")
	tc.simple()
	tc.c.regulate.Store(true)
	tc.c.option.RegulateSleepMs = 0

	// 终端缓冲一直是满的，直到处理到排队中的Stop
	tc.term.occupancy = 2000
	ch := &testChannel{name: "v"}
	drained := 0
	tc.c.drainCommands = func() {
		drained++
		if drained == 3 {
			tc.command(&Command{Type: CommandStop, Channel: ch})
		}
	}
	assert.Equal(t, nil, tc.c.connectChannel(ch, "ES_ID=256"))
	assert.Equal(t, nil, tc.play(ch))

	tc.pcr(innertest.SimpleVideoPid, 0, false)
	tc.pcr(innertest.SimpleVideoPid, 200*mpegts.PcrTicksPerMs, false)
	assert.Equal(t, 3, drained)
	assert.Equal(t, RunStateStopRequested, tc.c.runState)
	assert.Equal(t, 200*mpegts.PcrTicksPerMs, tc.c.clock.pcrLast)

	// 缓冲低于阈值时不等待
	tc = newTestCtx(t, ingest.SourceKindFile)
	tc.simple()
	tc.c.regulate.Store(true)
	tc.c.drainCommands = func() {
		t.Fatal("should not wait")
	}
	tc.pcr(innertest.SimpleVideoPid, 0, false)
	tc.pcr(innertest.SimpleVideoPid, 200*mpegts.PcrTicksPerMs, false)
}
