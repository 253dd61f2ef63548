// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package base 提供被其他多个package依赖的基础内容，自身不依赖任何package
package base

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/q191201771/naza/pkg/bininfo"
)

var startTime = time.Now()

const readableTimeLayout = "2006-01-02 15:04:05.999 Z0700 MST"

func ReadableTime(t time.Time) string {
	return t.Format(readableTimeLayout)
}

// LogoutStartInfo 进程启动时打印运行环境与版本信息
func LogoutStartInfo() {
	wd, _ := os.Getwd()
	Log.Infof("     start: %s", ReadableTime(startTime))
	Log.Infof("        wd: %s", wd)
	Log.Infof("      args: %s", strings.Join(os.Args, " "))
	Log.Infof("   bininfo: %s", bininfo.StringifySingleLine())
	Log.Infof("   version: %s", TsinFullInfo)
	Log.Infof("    github: %s", TsinGithubSite)
}

// ReadConfigFile 读取配置文件
//
// @param confFile: 命令行中指定的配置文件，为空时依次尝试 defaultConfigFiles
//
// @return usedFile: 实际读取的配置文件
//
func ReadConfigFile(confFile string, defaultConfigFiles []string) (rawContent []byte, usedFile string, err error) {
	if confFile == "" {
		for _, dcf := range defaultConfigFiles {
			fi, err := os.Stat(dcf)
			if err == nil && fi.Size() > 0 && !fi.IsDir() {
				confFile = dcf
				break
			}
		}
		if confFile == "" {
			return nil, "", fmt.Errorf("%w. tried=%s", ErrFileNotExist, strings.Join(defaultConfigFiles, ","))
		}
	}

	rawContent, err = os.ReadFile(confFile)
	return rawContent, confFile, err
}

// OsExitAndWaitPressIfWindows windows下双击运行时，退出前等待回车，便于查看错误信息
func OsExitAndWaitPressIfWindows(code int) {
	if runtime.GOOS == "windows" {
		_, _ = fmt.Fprintf(os.Stderr, "Press Enter to exit...")
		_, _ = bufio.NewReader(os.Stdin).ReadByte()
	}
	os.Exit(code)
}
