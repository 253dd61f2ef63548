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
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/q191201771/naza/pkg/bininfo"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/tsin"
)

// 打开一个ts输入源，播放声明出来的音视频流，并把收到的SL包打印到日志中
//
// Usage:
//   ./bin/tsin -c ./conf/tsin.conf.json
//   ./bin/tsin -c ./conf/tsin.conf.json -u /tmp/test.ts#News

func main() {
	defer nazalog.Sync()

	confFile, url := parseFlag()
	rawContent, confFile, err := base.ReadConfigFile(confFile, []string{"./conf/tsin.conf.json", "../conf/tsin.conf.json"})
	if err != nil {
		flag.Usage()
		_, _ = fmt.Fprintf(os.Stderr, "read conf failed. err=%+v\n", err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	config, err := LoadConf(rawContent)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load conf failed. file=%s, err=%+v\n", confFile, err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	initLog(config.Log)
	base.LogoutStartInfo()
	if url != "" {
		config.Url = url
	}
	if config.Url == "" {
		nazalog.Errorf("url not specified.")
		base.OsExitAndWaitPressIfWindows(1)
	}
	nazalog.Infof("load conf succ. file=%s, content=%+v", confFile, config)

	terminal := newLogTerminal(config.PlayAll)
	session := tsin.NewSession(terminal, config.Session.apply)
	terminal.session = session

	// 先请求场景描述，#片段中的节目在PMT到达后才会声明
	od, err := session.GetServiceDesc(tsin.ExpectScene, config.Url)
	if err != nil {
		nazalog.Errorf("[%s] get service desc failed. err=%+v", session.UniqueKey(), err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	nazalog.Infof("[%s] scene. od=%s", session.UniqueKey(), od)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(config.Session.ConnectTimeoutMs)*time.Millisecond)
	err = session.ConnectService(ctx, config.Url)
	cancel()
	if err != nil {
		nazalog.Errorf("[%s] connect service failed. url=%s, err=%+v", session.UniqueKey(), config.Url, err)
		_ = session.CloseService()
		base.OsExitAndWaitPressIfWindows(1)
	}

	dumpStat := func() {
		b, _ := json.Marshal(session.Stat())
		nazalog.Infof("[%s] stat. %s, channels=%s", session.UniqueKey(), string(b), terminal.String())
	}
	go base.RunSignalHandler(dumpStat)
	if config.StatIntervalSec > 0 {
		go func() {
			t := time.NewTicker(time.Duration(config.StatIntervalSec) * time.Second)
			defer t.Stop()
			for range t.C {
				dumpStat()
			}
		}()
	}

	interruptCh := make(chan os.Signal, 1)
	signal.Notify(interruptCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-terminal.Done():
		nazalog.Infof("[%s] all channels reach end of stream.", session.UniqueKey())
	case s := <-interruptCh:
		nazalog.Infof("[%s] recv signal. s=%+v", session.UniqueKey(), s)
	}

	dumpStat()
	if err := session.CloseService(); err != nil {
		nazalog.Warnf("[%s] close service failed. err=%+v", session.UniqueKey(), err)
	}
}

func parseFlag() (string, string) {
	binInfoFlag := flag.Bool("v", false, "show bin info")
	cf := flag.String("c", "", "specify conf file")
	u := flag.String("u", "", "specify input url, override the url in conf file")
	flag.Parse()
	if *binInfoFlag {
		_, _ = fmt.Fprint(os.Stderr, bininfo.StringifyMultiLine())
		_, _ = fmt.Fprintln(os.Stderr, base.TsinFullInfo)
		os.Exit(0)
	}
	return *cf, *u
}

func initLog(opt nazalog.Option) {
	if err := nazalog.Init(func(option *nazalog.Option) {
		*option = opt
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "initial log failed. err=%+v\n", err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	nazalog.Info("initial log succ.")
}
