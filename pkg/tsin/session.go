// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/q191201771/naza/pkg/bitrate"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/ingest"
	"github.com/q191201771/tsin/pkg/tsdemux"
)

// SourceOpener 打开输入源，默认使用 ingest.Open
type SourceOpener func(ctx context.Context, rawUrl string, modOptions ...ingest.ModSourceOption) (ingest.ISource, error)

type SessionOption struct {
	// BufferMaxMs 向终端报告的最大缓冲时长，也是时钟调节时的反压阈值
	BufferMaxMs uint32

	// RegulateSleepMs 时钟调节等待时，每次查询终端缓冲的间隔
	RegulateSleepMs int

	// NoPlaySleepMs 需要调节节奏但还没有通道播放时，feed协程的休眠间隔
	NoPlaySleepMs int

	// StopTimeoutMs Stop以及CloseService等待读取协程退出的最长时间，为0则一直等待
	StopTimeoutMs int

	// PcrJumpThresholdMs PCR跳变超过该值时认为是编码错误，按PcrJumpClampMs处理
	PcrJumpThresholdMs uint32
	PcrJumpClampMs     uint32

	ReadBufSize        int
	ConnectTimeoutMs   int
	ReadTimeoutMs      int
	MulticastInterface string
	QueryNextFile      func() string
	DvbChannelsFile    string
	TunerFactory       ingest.TunerFactory

	SourceOpener SourceOpener
}

var defaultSessionOption = SessionOption{
	BufferMaxMs:        base.BufferMaxMs,
	RegulateSleepMs:    1,
	NoPlaySleepMs:      50,
	StopTimeoutMs:      5000,
	PcrJumpThresholdMs: 500,
	PcrJumpClampMs:     100,
	ReadBufSize:        65536,
	ConnectTimeoutMs:   10000,
	ReadTimeoutMs:      0,
	DvbChannelsFile:    "channels.conf",
	SourceOpener:       ingest.Open,
}

type ModSessionOption func(option *SessionOption)

type command struct {
	fn    func(c *controller, done func(error))
	reply chan error
}

type unitBatch struct {
	gen   uint64
	units []tsdemux.Unit
}

type workerResult struct {
	gen uint64
	err error
}

// Session 一个ts输入源对应一个Session
//
// 所有状态由内部的loop协程持有，对外的方法通过消息投递到loop协程执行并等待结果，可以在任意协程调用
// 注意，不要在 ITerminal 的回调中同步调用这些方法
//
type Session struct {
	uniqueKey string
	option    SessionOption
	terminal  ITerminal

	url       string
	startTime time.Time

	ctrl *controller

	cmdCh        chan *command
	unitCh       chan unitBatch
	workerDoneCh chan workerResult
	closeCh      chan struct{}
	loopDoneCh   chan struct{}

	rootCtx    context.Context
	rootCancel context.CancelFunc

	// 以下只在loop协程中访问
	gen    uint64
	cancel context.CancelFunc

	source ingest.ISource
	pump   *sourcePump
	netBuf []byte // 只在feed协程中访问，feed协程不会同时存在多个

	readBytes nazaatomic.Uint64
	bitrate   bitrate.Bitrate

	disposeOnce sync.Once
}

func NewSession(terminal ITerminal, modOptions ...ModSessionOption) *Session {
	option := defaultSessionOption
	for _, fn := range modOptions {
		fn(&option)
	}

	uk := base.GenUkSession()
	s := &Session{
		uniqueKey:    uk,
		option:       option,
		terminal:     terminal,
		cmdCh:        make(chan *command, 16),
		unitCh:       make(chan unitBatch),
		workerDoneCh: make(chan workerResult, 1),
		closeCh:      make(chan struct{}),
		loopDoneCh:   make(chan struct{}),
		bitrate:      bitrate.New(),
	}
	s.rootCtx, s.rootCancel = context.WithCancel(context.Background())
	s.ctrl = newController(uk, terminal, option)
	s.ctrl.drainCommands = s.drainCommands
	Log.Infof("[%s] lifecycle new tsin.Session. option=%+v", uk, option)

	go s.runLoop()
	return s
}

// ConnectService 打开输入源并开始读取
//
// 结果同时通过返回值和 ITerminal.OnConnect(nil, err) 通知
// 注意，成功打开输入源之后，连接成功的通知要等到解析出PAT或PMT
//
func (s *Session) ConnectService(ctx context.Context, rawUrl string) error {
	source, err := s.option.SourceOpener(ctx, rawUrl, func(option *ingest.SourceOption) {
		option.ReadBufSize = s.option.ReadBufSize
		option.ConnectTimeoutMs = s.option.ConnectTimeoutMs
		option.ReadTimeoutMs = s.option.ReadTimeoutMs
		option.MulticastInterface = s.option.MulticastInterface
		option.QueryNextFile = s.option.QueryNextFile
		option.DvbChannelsFile = s.option.DvbChannelsFile
		option.TunerFactory = s.option.TunerFactory
	})
	if err != nil {
		Log.Errorf("[%s] open source failed. url=%s, err=%+v", s.uniqueKey, rawUrl, err)
		if execErr := s.exec(func(c *controller, done func(error)) {
			c.terminal.OnConnect(nil, err)
			done(nil)
		}, 0); execErr != nil {
			return execErr
		}
		return err
	}

	return s.exec(func(c *controller, done func(error)) {
		if s.source != nil {
			_ = source.Close()
			done(fmt.Errorf("%w. already connected, url=%s", base.ErrNotSupported, s.url))
			return
		}
		s.url = rawUrl
		s.startTime = time.Now()
		s.source = source
		s.pump = newSourcePump(s.uniqueKey, source, s.closeCh)
		go s.pump.run()

		c.setSource(source)
		c.worker = s
		c.startWorker()
		done(nil)
	}, 0)
}

// CloseService 停止读取并关闭输入源，之后Session不可再使用
func (s *Session) CloseService() error {
	err := s.exec(func(c *controller, done func(error)) {
		c.closeService(done)
	}, s.option.StopTimeoutMs)
	// 超时说明loop协程被阻塞，不再等待它退出
	s.dispose(!errors.Is(err, base.ErrStopTimeout))
	return err
}

// GetServiceDesc 见 controller.getServiceDesc
func (s *Session) GetServiceDesc(expect ExpectType, subUrl string) (od *ObjectDescriptor, err error) {
	err = s.exec(func(c *controller, done func(error)) {
		var e error
		od, e = c.getServiceDesc(expect, subUrl)
		done(e)
	}, 0)
	return
}

// ConnectChannel
//
// @param url: 需包含 `ES_ID=<number>`
//
func (s *Session) ConnectChannel(ch Channel, url string) error {
	return s.exec(func(c *controller, done func(error)) {
		done(c.connectChannel(ch, url))
	}, 0)
}

func (s *Session) DisconnectChannel(ch Channel) error {
	return s.exec(func(c *controller, done func(error)) {
		done(c.disconnectChannel(ch))
	}, 0)
}

// ServiceCommand 执行通道命令，Command中的输出字段在返回后可读
//
// Stop会等待读取协程退出，最长 SessionOption.StopTimeoutMs
//
func (s *Session) ServiceCommand(cmd *Command) error {
	timeoutMs := 0
	if cmd.Type == CommandStop {
		timeoutMs = s.option.StopTimeoutMs
	}
	return s.exec(func(c *controller, done func(error)) {
		c.serviceCommand(cmd, done)
	}, timeoutMs)
}

// CanHandleUrlInService 终端切换地址时，判断新地址能否在当前Session中处理
func (s *Session) CanHandleUrlInService(rawUrl string) bool {
	if strings.EqualFold(rawUrl, base.SchemeDvb+"://EPG") {
		return true
	}
	lower := strings.ToLower(rawUrl)
	if strings.HasPrefix(lower, base.SchemeUdp+"://") ||
		strings.HasPrefix(lower, base.SchemeMpegtsUdp+"://") ||
		strings.HasPrefix(lower, base.SchemeMpegtsTcp+"://") {
		return false
	}

	var cur string
	_ = s.exec(func(c *controller, done func(error)) {
		cur = s.url
		done(nil)
	}, 0)
	if cur == "" {
		return false
	}
	a, _ := base.SplitFragment(cur)
	b, _ := base.SplitFragment(rawUrl)
	return a == b
}

func (s *Session) UniqueKey() string {
	return s.uniqueKey
}

// ----- private -------------------------------------------------------------------------------------------------------

// exec 把fn投递到loop协程执行，等待done被调用
//
// @param timeoutMs: 为0则一直等待
//
func (s *Session) exec(fn func(c *controller, done func(error)), timeoutMs int) error {
	select {
	case <-s.closeCh:
		return base.ErrSessionClosed
	default:
	}

	cmd := &command{
		fn:    fn,
		reply: make(chan error, 1),
	}
	select {
	case s.cmdCh <- cmd:
	case <-s.loopDoneCh:
		return base.ErrSessionClosed
	}

	var timeoutCh <-chan time.Time
	if timeoutMs > 0 {
		t := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-timeoutCh:
		Log.Warnf("[%s] wait worker stop timeout. ms=%d", s.uniqueKey, timeoutMs)
		return fmt.Errorf("%w. ms=%d", base.ErrStopTimeout, timeoutMs)
	case <-s.loopDoneCh:
		return base.ErrSessionClosed
	}
}

func (s *Session) runCommand(cmd *command) {
	var once sync.Once
	cmd.fn(s.ctrl, func(err error) {
		once.Do(func() {
			cmd.reply <- err
		})
	})
}

func (s *Session) runLoop() {
	defer close(s.loopDoneCh)
	for {
		select {
		case cmd := <-s.cmdCh:
			s.runCommand(cmd)
		case b := <-s.unitCh:
			if b.gen != s.gen {
				continue
			}
			for _, u := range b.units {
				// 处理一批Unit的过程中可能收到Stop
				if s.ctrl.runState != RunStateRunning {
					break
				}
				s.ctrl.engine.OnUnit(u)
			}
		case r := <-s.workerDoneCh:
			if r.gen != s.gen {
				continue
			}
			s.cancel()
			s.ctrl.onWorkerStopped(r.err)
		case <-s.closeCh:
			return
		}
	}
}

// drainCommands 时钟调节等待期间在loop协程中调用
func (s *Session) drainCommands() {
	for {
		select {
		case cmd := <-s.cmdCh:
			s.runCommand(cmd)
		default:
			return
		}
	}
}

// start 实现 iWorkerControl，在loop协程中调用
func (s *Session) start() {
	s.gen++
	gen := s.gen
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(s.rootCtx)

	var sectionPids []uint16
	for _, prog := range s.ctrl.engine.Programs() {
		for _, st := range prog.Streams {
			if st.IsSection {
				sectionPids = append(sectionPids, st.Pid)
			}
		}
	}

	go func() {
		err := s.runWorker(ctx, gen, sectionPids)
		if err == nil {
			err = base.ErrEndOfStream
		}
		select {
		case s.workerDoneCh <- workerResult{gen: gen, err: err}:
		case <-s.closeCh:
		}
	}()
}

// stop 实现 iWorkerControl，在loop协程中调用
func (s *Session) stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// seek 实现 iWorkerControl，在loop协程中调用
func (s *Session) seek(ms uint64) {
	if s.pump == nil || !s.pump.requestSeek(ms) {
		Log.Debugf("[%s] source not seekable, ignore start range. ms=%d", s.uniqueKey, ms)
	}
}

func (s *Session) dispose(waitLoop bool) {
	s.disposeOnce.Do(func() {
		Log.Infof("[%s] lifecycle dispose tsin.Session. read=%d", s.uniqueKey, s.readBytes.Load())
		s.rootCancel()
		close(s.closeCh)
		if waitLoop {
			<-s.loopDoneCh
		}
		if s.source != nil {
			if err := s.source.Close(); err != nil {
				Log.Warnf("[%s] close source failed. err=%+v", s.uniqueKey, err)
			}
		}
	})
}

var _ iWorkerControl = &Session{}
