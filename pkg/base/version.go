// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

// 版本，该变量由外部脚本修改维护
const TsinVersion = "v0.3.0"

var (
	TsinLibraryName = "tsin"
	TsinGithubRepo  = "github.com/q191201771/tsin"
	TsinGithubSite  = "https://github.com/q191201771/tsin"

	// e.g. tsin v0.3.0 (github.com/q191201771/tsin)
	TsinFullInfo = TsinLibraryName + " " + TsinVersion + " (" + TsinGithubRepo + ")"

	// e.g. tsin/0.3.0
	TsinHttpPullSessionUa = TsinLibraryName + "/" + TsinVersion[1:]
)
