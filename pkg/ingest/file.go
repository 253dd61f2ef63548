// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package ingest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/q191201771/tsin/pkg/base"
	"github.com/q191201771/tsin/pkg/mpegts"
	"github.com/q191201771/tsin/pkg/tsdemux"
)

// durationProbeSize 估算时长时读取文件头尾各多少字节
const durationProbeSize = 65536

type fileSource struct {
	uniqueKey string
	option    SourceOption

	fp       *os.File
	buf      []byte
	duration time.Duration
	nFile    int
}

func openFileSource(u base.UrlContext, option SourceOption) (*fileSource, error) {
	s := &fileSource{
		uniqueKey: base.GenUkSource(),
		option:    option,
		buf:       make([]byte, option.ReadBufSize),
	}
	if err := s.open(u.Path); err != nil {
		return nil, err
	}

	if option.StartMs > 0 && s.duration > 0 {
		if err := s.seek(option.StartMs); err != nil {
			_ = s.fp.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *fileSource) Next() ([]byte, error) {
	for {
		if s.fp == nil {
			return nil, base.ErrSourceClosed
		}
		n, err := s.fp.Read(s.buf)
		if n > 0 {
			return s.buf[:n], nil
		}
		if err == nil {
			continue
		}
		if err != io.EOF {
			return nil, err
		}

		// 当前文件读完，尝试下一个文件
		if s.option.QueryNextFile == nil {
			return nil, io.EOF
		}
		next := s.option.QueryNextFile()
		if next == "" {
			return nil, io.EOF
		}
		_ = s.fp.Close()
		s.fp = nil
		if err := s.open(strings.TrimPrefix(next, base.SchemeFile+"://")); err != nil {
			return nil, err
		}
		Log.Infof("[%s] switch to next file. path=%s, n=%d", s.uniqueKey, next, s.nFile)
	}
}

// SeekMs 按时长比例跳转，时长未知时不跳转
func (s *fileSource) SeekMs(ms uint64) error {
	if s.fp == nil {
		return base.ErrSourceClosed
	}
	return s.seek(ms)
}

func (s *fileSource) Close() error {
	if s.fp == nil {
		return nil
	}
	err := s.fp.Close()
	s.fp = nil
	return err
}

func (s *fileSource) Kind() SourceKind {
	return SourceKindFile
}

func (s *fileSource) Duration() time.Duration {
	return s.duration
}

func (s *fileSource) UniqueKey() string {
	return s.uniqueKey
}

// ----- private -------------------------------------------------------------------------------------------------------

func (s *fileSource) open(filename string) error {
	fp, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w. path=%s", base.ErrFileNotExist, filename)
		}
		return err
	}
	s.fp = fp
	s.nFile++
	if s.nFile == 1 {
		s.duration = probeDuration(fp)
	}
	return nil
}

// seek 按时长比例换算成字节偏移，对齐到ts包
func (s *fileSource) seek(startMs uint64) error {
	fi, err := s.fp.Stat()
	if err != nil {
		return err
	}
	durationMs := uint64(s.duration / time.Millisecond)
	if durationMs == 0 {
		return nil
	}
	if startMs >= durationMs {
		startMs = durationMs
	}
	offset := int64(uint64(fi.Size()) * startMs / durationMs)
	offset -= offset % mpegts.PacketSize
	Log.Debugf("[%s] seek. start=%dms, duration=%dms, offset=%d", s.uniqueKey, startMs, durationMs, offset)
	_, err = s.fp.Seek(offset, io.SeekStart)
	return err
}

func probeDuration(fp *os.File) time.Duration {
	fi, err := fp.Stat()
	if err != nil {
		return 0
	}
	size := fi.Size()
	n := int64(durationProbeSize)
	if n > size {
		n = size
	}
	head := make([]byte, n)
	if _, err := fp.ReadAt(head, 0); err != nil && err != io.EOF {
		return 0
	}
	tail := make([]byte, n)
	if _, err := fp.ReadAt(tail, size-n); err != nil && err != io.EOF {
		return 0
	}
	return tsdemux.EstimateDuration(head, tail)
}

var _ ISeekable = &fileSource{}
