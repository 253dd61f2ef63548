// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)


package base

const (
	// StatSession.Protocol
	ProtocolFile   = "FILE"
	ProtocolHttp   = "HTTP"
	ProtocolUdp    = "UDP"
	ProtocolTcp    = "TCP"
	ProtocolSrt    = "SRT"
	ProtocolDvb    = "DVB"
	ProtocolUnknow = "UNKNOWN"
)

// StatSession 一个输入源Session的统计快照
type StatSession struct {
	SessionId    string `json:"session_id"`
	Url          string `json:"url"`
	Protocol     string `json:"protocol"`
	StartTime    string `json:"start_time"`
	ReadBytesSum uint64 `json:"read_bytes_sum"`
	Bitrate      int    `json:"bitrate"` // kbit/s
	DurationMs   uint64 `json:"duration_ms"`

	RunState string `json:"run_state"`
	Playing  int    `json:"playing"`
	Regulate bool   `json:"regulate"`

	PendingPids      []uint16 `json:"pending_pids"`
	PendingFragments []string `json:"pending_fragments"`
	EpgRequested     bool     `json:"epg_requested"`

	HasClockReference bool   `json:"has_clock_reference"`
	PcrLast           uint64 `json:"pcr_last"`

	Programs []StatProgram `json:"programs"`
}

type StatProgram struct {
	Number           uint16       `json:"number"`
	Name             string       `json:"name"`
	PmtPid           uint16       `json:"pmt_pid"`
	PcrPid           uint16       `json:"pcr_pid"`
	HasIod           bool         `json:"has_iod"`
	ClockInitialized bool         `json:"clock_initialized"`
	Streams          []StatStream `json:"streams"`
}

type StatStream struct {
	Pid        uint16 `json:"pid"`
	EsId       uint32 `json:"es_id"`
	StreamType string `json:"stream_type"`
	Framing    string `json:"framing"`
	Declared   bool   `json:"declared"`
	Bound      bool   `json:"bound"`
}
