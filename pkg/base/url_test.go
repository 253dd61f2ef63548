// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base_test

import (
	"errors"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsin/pkg/base"
)

func TestParseUrl(t *testing.T) {
	_, err := base.ParseUrl("invalidurl", -1)
	assert.IsNotNil(t, err)

	ctx, err := base.ParseUrl("http://127.0.0.1/live/test110.ts#pid=33", -1)
	assert.Equal(t, nil, err)
	assert.Equal(t, "http", ctx.Scheme)
	assert.Equal(t, "127.0.0.1:80", ctx.HostWithPort)
	assert.Equal(t, "/live/test110.ts", ctx.Path)
	assert.Equal(t, "test110.ts", ctx.LastItemOfPath)
	assert.Equal(t, "pid=33", ctx.Fragment)
	assert.Equal(t, "/live/test110.ts", ctx.PathWithRawQuery)

	ctx, err = base.ParseUrl("udp://239.0.0.1:5000", -1)
	assert.Equal(t, nil, err)
	assert.Equal(t, "239.0.0.1", ctx.Host)
	assert.Equal(t, 5000, ctx.Port)
}

func TestParseSourceUrl(t *testing.T) {
	ctx, err := base.ParseSourceUrl("/tmp/a/b.ts#News")
	assert.Equal(t, nil, err)
	assert.Equal(t, base.SchemeFile, ctx.Scheme)
	assert.Equal(t, "/tmp/a/b.ts", ctx.Path)
	assert.Equal(t, "b.ts", ctx.LastItemOfPath)
	assert.Equal(t, "News", ctx.Fragment)

	ctx, err = base.ParseSourceUrl("dvb://Das Erste")
	assert.Equal(t, nil, err)
	assert.Equal(t, base.SchemeDvb, ctx.Scheme)
	assert.Equal(t, "Das Erste", ctx.Host)

	ctx, err = base.ParseSourceUrl("mpegts-udp://:1234")
	assert.Equal(t, nil, err)
	assert.Equal(t, 1234, ctx.Port)

	_, err = base.ParseSourceUrl("rtmp://127.0.0.1/live/a")
	assert.Equal(t, true, errors.Is(err, base.ErrInvalidUrl))
}

func TestParseFragment(t *testing.T) {
	golden := map[string]base.Fragment{
		"":         {Kind: base.FragmentAll},
		"pid=33":   {Kind: base.FragmentPid, Pid: 33},
		"EPG":      {Kind: base.FragmentEpg},
		"epgdata":  {Kind: base.FragmentEpg},
		"News":     {Kind: base.FragmentProgram, Text: "News"},
		"news":     {Kind: base.FragmentProgram, Text: "news"},
		"1001":     {Kind: base.FragmentProgram, Text: "1001"},
		"Ep":       {Kind: base.FragmentProgram, Text: "Ep"},
	}
	for in, out := range golden {
		f, err := base.ParseFragment(in)
		assert.Equal(t, nil, err)
		assert.Equal(t, out, f)
	}

	_, err := base.ParseFragment("pid=abc")
	assert.Equal(t, true, errors.Is(err, base.ErrInvalidFragment))
	_, err = base.ParseFragment("pid=9000")
	assert.Equal(t, true, errors.Is(err, base.ErrInvalidFragment))
}

func TestFragmentOfSubUrl(t *testing.T) {
	assert.Equal(t, "pid=33", base.FragmentOfSubUrl("file.ts#pid=33"))
	assert.Equal(t, "Arte", base.FragmentOfSubUrl("dvb://Arte"))
	assert.Equal(t, "", base.FragmentOfSubUrl("file.ts"))
}

func TestParseEsId(t *testing.T) {
	id, err := base.ParseEsId("ES_ID=33")
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(33), id)

	id, err = base.ParseEsId("mpegts://x.ts#ES_ID=18&foo=1")
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(18), id)

	_, err = base.ParseEsId("mpegts://x.ts")
	assert.Equal(t, true, errors.Is(err, base.ErrEsIdNotFound))
	_, err = base.ParseEsId("ES_ID=")
	assert.Equal(t, true, errors.Is(err, base.ErrEsIdNotFound))
}
