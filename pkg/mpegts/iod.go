// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/tsin/pkg/base"
)

// <ISO_IEC_14496-1> <7.2.2.1 Class tags for descriptors>
const (
	OdTagObjectDescriptor        = uint8(0x01)
	OdTagInitialObjectDescriptor = uint8(0x02)
	OdTagEsDescriptor            = uint8(0x03)
	OdTagDecoderConfig           = uint8(0x04)
	OdTagDecoderSpecificInfo     = uint8(0x05)
	OdTagSlConfig                = uint8(0x06)
)

// OdProfileMpeg4Signaling PMT中的IOD使用该OD profile时，表示ts中的普通流也需要声明
const OdProfileMpeg4Signaling = uint8(0x10)

// Iod InitialObjectDescriptor
//
// 只解析调度需要的字段，原始数据保存在Raw中
//
type Iod struct {
	Tag                           uint8
	ObjectDescriptorId            uint16 // 10 bits
	UrlFlag                       bool
	Url                           string
	IncludeInlineProfileLevelFlag bool
	OdProfileLevel                uint8
	SceneProfileLevel             uint8
	AudioProfileLevel             uint8
	VisualProfileLevel            uint8
	GraphicsProfileLevel          uint8

	// EsIds 内嵌的ES_Descriptor的ES_ID
	EsIds []uint16

	// Raw IOD_descriptor的完整内容，不包含descriptor_tag和descriptor_length
	Raw []byte
}

// IsMpeg4Signaling
func (iod *Iod) IsMpeg4Signaling() bool {
	return iod.Tag == OdTagInitialObjectDescriptor && iod.OdProfileLevel == OdProfileMpeg4Signaling
}

// ParseIodDescriptor 解析PMT program_info中的IOD_descriptor
//
// <iso13818-1.pdf> <2.6.40 IOD descriptor>
//
// Scope_of_IOD_label [8b]
// IOD_label          [8b]
// InitialObjectDescriptor()
//
// @param b: descriptor_length之后的内容
//
func ParseIodDescriptor(b []byte) (*Iod, error) {
	if len(b) < 2 {
		return nil, nazaerrors.Wrap(base.ErrIodMalformed)
	}
	iod, err := parseInitialObjectDescriptor(b[2:])
	if err != nil {
		return nil, err
	}
	iod.Raw = append([]byte(nil), b...)
	return iod, nil
}

// ParseSlDescriptor 解析PMT中ES级别的SL_descriptor
//
// @return ES_ID
//
func ParseSlDescriptor(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, nazaerrors.Wrap(base.ErrIodMalformed)
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// PackIodDescriptor 构造IOD_descriptor的内容，与 ParseIodDescriptor 对应
//
// 注意，只支持非URL形式，ES_Descriptor只写入ES_ID和flags
//
func PackIodDescriptor(od uint16, odProfileLevel uint8, esIds []uint16) []byte {
	var body []byte
	body = append(body, uint8(od>>2), uint8(od<<6)|0x0F)
	body = append(body, odProfileLevel, 0xFF, 0xFF, 0xFF, 0xFF)
	for _, id := range esIds {
		body = append(body, OdTagEsDescriptor, 3, uint8(id>>8), uint8(id), 0)
	}
	out := []byte{0x10, 0x01, OdTagInitialObjectDescriptor}
	out = append(out, packExpandableSize(len(body))...)
	return append(out, body...)
}

// ----- private -------------------------------------------------------------------------------------------------------

func parseInitialObjectDescriptor(b []byte) (*Iod, error) {
	if len(b) < 2 {
		return nil, nazaerrors.Wrap(base.ErrIodMalformed)
	}
	iod := &Iod{
		Tag: b[0],
	}
	size, n, err := readExpandableSize(b[1:])
	if err != nil {
		return nil, err
	}
	body := b[1+n:]
	if len(body) < size {
		return nil, nazaerrors.Wrap(base.ErrIodMalformed)
	}
	body = body[:size]

	br := nazabits.NewBitReader(body)
	if iod.ObjectDescriptorId, err = br.ReadBits16(10); err != nil {
		return nil, nazaerrors.Wrap(base.ErrIodMalformed)
	}
	flag, _ := br.ReadBits8(1)
	iod.UrlFlag = flag == 1
	flag, _ = br.ReadBits8(1)
	iod.IncludeInlineProfileLevelFlag = flag == 1
	if err = br.SkipBits(4); err != nil {
		return nil, nazaerrors.Wrap(base.ErrIodMalformed)
	}
	pos := 2

	if iod.UrlFlag {
		if len(body) < pos+1 || len(body) < pos+1+int(body[pos]) {
			return nil, nazaerrors.Wrap(base.ErrIodMalformed)
		}
		l := int(body[pos])
		iod.Url = string(body[pos+1 : pos+1+l])
		return iod, nil
	}

	if len(body) < pos+5 {
		return nil, nazaerrors.Wrap(base.ErrIodMalformed)
	}
	iod.OdProfileLevel = body[pos]
	iod.SceneProfileLevel = body[pos+1]
	iod.AudioProfileLevel = body[pos+2]
	iod.VisualProfileLevel = body[pos+3]
	iod.GraphicsProfileLevel = body[pos+4]
	pos += 5

	for pos+2 <= len(body) {
		tag := body[pos]
		sz, n, err := readExpandableSize(body[pos+1:])
		if err != nil {
			return nil, err
		}
		start := pos + 1 + n
		if start+sz > len(body) {
			return nil, nazaerrors.Wrap(base.ErrIodMalformed)
		}
		if tag == OdTagEsDescriptor && sz >= 2 {
			iod.EsIds = append(iod.EsIds, uint16(body[start])<<8|uint16(body[start+1]))
		}
		pos = start + sz
	}
	return iod, nil
}

// 最多4字节，每字节低7位有效，最高位为1表示后续还有
func readExpandableSize(b []byte) (size int, n int, err error) {
	for n < 4 {
		if n >= len(b) {
			return 0, 0, nazaerrors.Wrap(base.ErrIodMalformed)
		}
		v := b[n]
		n++
		size = size<<7 | int(v&0x7F)
		if v&0x80 == 0 {
			return size, n, nil
		}
	}
	return 0, 0, nazaerrors.Wrap(base.ErrIodMalformed)
}

func packExpandableSize(size int) []byte {
	if size < 0x80 {
		return []byte{uint8(size)}
	}
	var out []byte
	for size > 0 {
		out = append([]byte{uint8(size & 0x7F)}, out...)
		size >>= 7
	}
	for i := 0; i < len(out)-1; i++ {
		out[i] |= 0x80
	}
	return out
}
