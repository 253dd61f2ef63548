// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/unique"

const (
	UkPreSession = "TSIN"
	UkPreSource  = "SOURCE"
	UkPreEngine  = "DEMUX"
)

func GenUkSession() string {
	return siUkSession.GenUniqueKey()
}

func GenUkSource() string {
	return siUkSource.GenUniqueKey()
}

func GenUkEngine() string {
	return siUkEngine.GenUniqueKey()
}

var (
	siUkSession *unique.SingleGenerator
	siUkSource  *unique.SingleGenerator
	siUkEngine  *unique.SingleGenerator
)

func init() {
	siUkSession = unique.NewSingleGenerator(UkPreSession)
	siUkSource = unique.NewSingleGenerator(UkPreSource)
	siUkEngine = unique.NewSingleGenerator(UkPreEngine)
}
