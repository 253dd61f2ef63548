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
	"io"
	"time"

	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/tsin/pkg/ingest"
	"github.com/q191201771/tsin/pkg/tsdemux"
	"golang.org/x/sync/errgroup"
)

// sourcePump 在独立协程中从输入源读取数据块
//
// 读取协程重启时pump不重启，读取位置延续
// 每个数据块必须被ack之后才会读取下一块，因为ISource.Next返回的内存只在下次调用前有效
// 输入源可以seek时，读到结尾后pump不退出，每次next都返回io.EOF，直到收到seek请求
//
type sourcePump struct {
	uniqueKey string
	source    ingest.ISource
	seekable  ingest.ISeekable

	chunkCh chan []byte
	ackCh   chan struct{}
	eofCh   chan struct{}
	seekCh  chan uint64
	doneCh  chan struct{}
	closeCh <-chan struct{}

	err error // doneCh关闭后可读
}

func newSourcePump(uniqueKey string, source ingest.ISource, closeCh <-chan struct{}) *sourcePump {
	p := &sourcePump{
		uniqueKey: uniqueKey,
		source:    source,
		chunkCh:   make(chan []byte),
		ackCh:     make(chan struct{}),
		eofCh:     make(chan struct{}),
		seekCh:    make(chan uint64),
		doneCh:    make(chan struct{}),
		closeCh:   closeCh,
	}
	p.seekable, _ = source.(ingest.ISeekable)
	return p
}

func (p *sourcePump) run() {
	defer close(p.doneCh)
	for {
		select {
		case ms := <-p.seekCh:
			p.seek(ms)
		default:
		}

		b, err := p.source.Next()
		if len(b) > 0 {
			select {
			case p.chunkCh <- b:
			case ms := <-p.seekCh:
				// 还没有交付的数据作废
				p.seek(ms)
				continue
			case <-p.closeCh:
				p.err = io.ErrClosedPipe
				return
			}
			select {
			case <-p.ackCh:
			case <-p.closeCh:
				p.err = io.ErrClosedPipe
				return
			}
		}
		if err == nil {
			continue
		}
		if p.seekable != nil && errors.Is(err, io.EOF) {
			if !p.waitSeekAfterEof() {
				p.err = io.ErrClosedPipe
				return
			}
			continue
		}
		Log.Debugf("[%s] source pump exit. err=%v", p.uniqueKey, err)
		p.err = err
		return
	}
}

// requestSeek 只在loop协程中调用，返回时pump已经接收请求，之后next拿到的都是seek之后的数据
//
// 注意，可以seek的输入源读取不会长时间阻塞，所以这里同步等待
//
// @return 输入源不支持seek或者pump已经退出时返回false
//
func (p *sourcePump) requestSeek(ms uint64) bool {
	if p.seekable == nil {
		return false
	}
	select {
	case p.seekCh <- ms:
		return true
	case <-p.doneCh:
	case <-p.closeCh:
	}
	return false
}

// next
//
// @return b: 拷贝后的数据，写入调用方的buf，buf按需增长，不缩小
//
func (p *sourcePump) next(ctx context.Context, buf []byte) ([]byte, error) {
	select {
	case b := <-p.chunkCh:
		if cap(buf) < len(b) {
			buf = make([]byte, len(b))
		}
		buf = buf[:len(b)]
		copy(buf, b)
		select {
		case p.ackCh <- struct{}{}:
		case <-p.closeCh:
		}
		return buf, nil
	case <-p.eofCh:
		return buf[:0], io.EOF
	case <-p.doneCh:
		return buf[:0], p.err
	case <-ctx.Done():
		return buf[:0], ctx.Err()
	}
}

// waitSeekAfterEof 读到结尾后持续报告io.EOF，直到收到seek请求
//
// @return 被关闭时返回false
//
func (p *sourcePump) waitSeekAfterEof() bool {
	for {
		select {
		case p.eofCh <- struct{}{}:
		case ms := <-p.seekCh:
			p.seek(ms)
			return true
		case <-p.closeCh:
			return false
		}
	}
}

func (p *sourcePump) seek(ms uint64) {
	if err := p.seekable.SeekMs(ms); err != nil {
		Log.Warnf("[%s] seek failed. ms=%d, err=%+v", p.uniqueKey, ms, err)
		return
	}
	Log.Infof("[%s] seek. ms=%d", p.uniqueKey, ms)
}

// ----- worker --------------------------------------------------------------------------------------------------------

// runWorker 读取协程，feed和demux两个协程通过io.Pipe连接，任意一个出错两个都退出
//
// @return 数据正常读完时为nil，被stop时为context.Canceled
//
func (s *Session) runWorker(ctx context.Context, gen uint64, sectionPids []uint16) error {
	g, gctx := errgroup.WithContext(ctx)
	pr, pw := io.Pipe()

	g.Go(func() error {
		err := s.feed(gctx, pw)
		if err != nil {
			_ = pw.CloseWithError(err)
		} else {
			_ = pw.Close()
		}
		return err
	})
	g.Go(func() error {
		err := s.demux(gctx, pr, gen, sectionPids)
		if err != nil {
			_ = pr.CloseWithError(err)
		} else {
			_ = pr.Close()
		}
		return err
	})
	return g.Wait()
}

// feed 把输入源的数据写入解析管道
//
// 需要调节节奏但还没有通道播放时，暂停读取，避免无限预读
//
func (s *Session) feed(ctx context.Context, w io.Writer) error {
	c := s.ctrl
	noPlaySleep := time.Duration(s.option.NoPlaySleepMs) * time.Millisecond
	for {
		for c.regulate.Load() && c.playing.Load() == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(noPlaySleep):
			}
		}

		var err error
		s.netBuf, err = s.pump.next(ctx, s.netBuf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				Log.Infof("[%s] source eof. read=%d", s.uniqueKey, s.readBytes.Load())
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nazaerrors.Wrap(err)
		}

		if !c.firstByte.Load() {
			c.firstByte.Store(true)
			Log.Debugf("[%s] first chunk. len=%d", s.uniqueKey, len(s.netBuf))
		}
		s.readBytes.Add(uint64(len(s.netBuf)))
		s.bitrate.Add(len(s.netBuf))

		if _, err = w.Write(s.netBuf); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// demux 解析出的Unit按批次交给loop协程
func (s *Session) demux(ctx context.Context, r io.Reader, gen uint64, sectionPids []uint16) error {
	d := tsdemux.NewDemuxer(ctx, r, func(option *tsdemux.DemuxerOption) {
		option.ReadBufSize = s.option.ReadBufSize
		option.SectionPids = sectionPids
	})
	defer d.Dispose()

	for {
		units, err := d.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		select {
		case s.unitCh <- unitBatch{gen: gen, units: units}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
