// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)


//go:build windows
// +build windows

package base

// RunSignalHandler windows下没有SIGUSR1，不做任何事
func RunSignalHandler(cb func()) {
}
