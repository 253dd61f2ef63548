// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"errors"
	"fmt"
)

// ----- 通用的 ---------------------------------------------------------------------------------------------------------

var (
	ErrShortBuffer  = errors.New("tsin: buffer too short")
	ErrFileNotExist = errors.New("tsin: file not exist")
)

// ----- pkg/aac -------------------------------------------------------------------------------------------------------

var (
	ErrSamplingFrequencyIndex = errors.New("tsin.aac: invalid sampling frequency index")
	ErrAdtsSyncword           = errors.New("tsin.aac: adts syncword mismatch")
	ErrLoasSyncword           = errors.New("tsin.aac: loas syncword mismatch")
	ErrLatmNoConfig           = errors.New("tsin.aac: latm frame without stream mux config")
	ErrLatmUnsupported        = errors.New("tsin.aac: latm config not supported")
)

// ----- pkg/base ------------------------------------------------------------------------------------------------------

var (
	ErrInvalidUrl      = errors.New("tsin.base: invalid url")
	ErrInvalidFragment = errors.New("tsin.base: invalid url fragment")
	ErrEsIdNotFound    = errors.New("tsin.base: ES_ID not found in url")
)

// ----- pkg/mpegts ----------------------------------------------------------------------------------------------------

var (
	ErrSlHeaderTooLong = errors.New("tsin.mpegts: sl header longer than packet")
	ErrIodMalformed    = errors.New("tsin.mpegts: malformed initial object descriptor")
	ErrSyncByte        = errors.New("tsin.mpegts: sync byte mismatch")
	ErrSectionCrc      = errors.New("tsin.mpegts: section crc mismatch")
)

func NewErrSlHeaderTooLong(headerLen, packetLen int) error {
	return fmt.Errorf("%w. header=%d, packet=%d", ErrSlHeaderTooLong, headerLen, packetLen)
}

// ----- pkg/tsdemux ---------------------------------------------------------------------------------------------------

var ErrDemuxClosed = errors.New("tsin.tsdemux: demuxer closed")

// ----- pkg/ingest ----------------------------------------------------------------------------------------------------

var (
	ErrTransport         = errors.New("tsin.ingest: transport failure")
	ErrUnsupportedScheme = errors.New("tsin.ingest: unsupported url scheme")
	ErrHttpStatus        = errors.New("tsin.ingest: unexpected http status")
	ErrDvbChannel        = errors.New("tsin.ingest: dvb channel not found")
	ErrNoTuner           = errors.New("tsin.ingest: no dvb tuner registered")
	ErrSourceClosed      = errors.New("tsin.ingest: source closed")
)

func NewErrTransport(url string, err error) error {
	return fmt.Errorf("%w. url=%s, err=%v", ErrTransport, url, err)
}

func NewErrHttpStatus(code int) error {
	return fmt.Errorf("%w. code=%d", ErrHttpStatus, code)
}

// ----- pkg/tsin ------------------------------------------------------------------------------------------------------

var (
	// ErrStreamNotFound unknown pid, fragment or ES_ID
	ErrStreamNotFound = errors.New("tsin.tsin: stream not found")

	// ErrServiceError the stream is already bound to another channel
	ErrServiceError = errors.New("tsin.tsin: service error")

	ErrNotSupported  = errors.New("tsin.tsin: not supported")
	ErrEndOfStream   = errors.New("tsin.tsin: end of stream")
	ErrStopTimeout   = errors.New("tsin.tsin: stop timeout")
	ErrSessionClosed = errors.New("tsin.tsin: session closed")
	ErrMalformedPcr  = errors.New("tsin.tsin: malformed pcr")
)

func NewErrStreamNotFound(esId uint32) error {
	return fmt.Errorf("%w. es_id=%d", ErrStreamNotFound, esId)
}

func NewErrServiceError(pid uint16) error {
	return fmt.Errorf("%w. pid=%d already bound", ErrServiceError, pid)
}

func NewErrNotSupported(what string) error {
	return fmt.Errorf("%w. command=%s", ErrNotSupported, what)
}

// ---------------------------------------------------------------------------------------------------------------------
