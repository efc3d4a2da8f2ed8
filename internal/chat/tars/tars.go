// Package tars implements the subset of the TARS binary codec that
// BroadcastLive type C (Huya-equivalent) needs: a tag+type header byte (or
// 2 bytes for tag>=15) in front of every field, skip-to-tag lookups that let
// optional/unknown fields be ignored, and the handful of wire types the
// protocol actually uses (ints, strings, byte blobs, nested structs, lists
// of strings). Ported from original_source/tars-stream/src/{tars_encoder,
// tars_decoder,tars_type}.rs, trimmed to what C1 exercises.
package tars

import (
	"encoding/binary"
	"errors"
)

// Type marks, in TarsTypeMark's original numeric order.
const (
	typeInt8        = 0
	typeInt16       = 1
	typeInt32       = 2
	typeInt64       = 3
	typeFloat       = 4
	typeDouble      = 5
	typeString1     = 6
	typeString4     = 7
	typeMaps        = 8
	typeList        = 9
	typeStructBegin = 10
	typeStructEnd   = 11
	typeZero        = 12
	typeSimpleList  = 13
)

// ErrTagNotFound is returned by decode reads when skip-to-tag exhausts the
// buffer without finding the requested tag; callers treat it as "use the
// default" for optional fields.
var ErrTagNotFound = errors.New("tars: tag not found")

// ErrTypeMismatch is returned when a found tag's wire type doesn't match
// what the reader expected.
var ErrTypeMismatch = errors.New("tars: type mismatch")

// Encoder builds a TARS byte stream by appending tag-headed fields in order.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the accumulated wire bytes.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) putHead(tag uint8, mark byte) {
	if tag < 15 {
		e.buf = append(e.buf, (tag<<4)|mark)
		return
	}
	e.buf = append(e.buf, 0xf0|mark, tag)
}

// WriteInt32 writes an integer, picking the narrowest wire type that holds
// it, matching the original's int8/int16/int32 collapsing chain.
func (e *Encoder) WriteInt32(tag uint8, v int32) {
	switch {
	case v == 0:
		e.putHead(tag, typeZero)
	case v >= -128 && v <= 127:
		e.putHead(tag, typeInt8)
		e.buf = append(e.buf, byte(int8(v)))
	case v >= -32768 && v <= 32767:
		e.putHead(tag, typeInt16)
		e.buf = appendU16(e.buf, uint16(int16(v)))
	default:
		e.putHead(tag, typeInt32)
		e.buf = appendU32(e.buf, uint32(v))
	}
}

// WriteString writes a string using the 1-byte-length form when it fits.
func (e *Encoder) WriteString(tag uint8, s string) {
	if len(s) <= 0xff {
		e.putHead(tag, typeString1)
		e.buf = append(e.buf, byte(len(s)))
		e.buf = append(e.buf, s...)
		return
	}
	e.putHead(tag, typeString4)
	e.buf = appendU32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteStringList writes a homogeneous list of strings (the only list shape
// C1 needs, for the subscription-topic registration message).
func (e *Encoder) WriteStringList(tag uint8, items []string) {
	e.putHead(tag, typeList)
	e.WriteInt32(0, int32(len(items)))
	for _, s := range items {
		e.WriteString(0, s)
	}
}

// WriteBytes writes a raw byte blob as a TARS simple list of int8.
func (e *Encoder) WriteBytes(tag uint8, data []byte) {
	e.putHead(tag, typeSimpleList)
	e.putHead(0, typeInt8)
	e.WriteInt32(0, int32(len(data)))
	e.buf = append(e.buf, data...)
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

// head is one decoded tag header.
type head struct {
	tag  uint8
	mark byte
}

// Decoder reads tag-headed fields out of a TARS byte stream, in any order,
// by scanning from the current position and skipping fields that don't
// match the requested tag — mirroring skip_to_tag's "search forward, never
// backward within one pass" behavior.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for reading.
func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

func (d *Decoder) remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) takeHead() (head, error) {
	if d.remaining() < 1 {
		return head{}, errShortBuffer
	}
	b := d.buf[d.pos]
	d.pos++
	mark := b & 0x0f
	tag := (b & 0xf0) >> 4
	if tag == 15 {
		if d.remaining() < 1 {
			return head{}, errShortBuffer
		}
		tag = d.buf[d.pos]
		d.pos++
	}
	return head{tag: tag, mark: mark}, nil
}

var errShortBuffer = errors.New("tars: short buffer")

func (d *Decoder) take(n int) ([]byte, error) {
	if d.remaining() < n {
		return nil, errShortBuffer
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// skipToTag scans forward from the current position for the given tag,
// skipping every other field it passes over. If the tag isn't found before
// the buffer runs out, the position is restored and ErrTagNotFound returned.
func (d *Decoder) skipToTag(tag uint8) (head, error) {
	start := d.pos
	for d.remaining() > 0 {
		h, err := d.takeHead()
		if err != nil {
			d.pos = start
			return head{}, ErrTagNotFound
		}
		if h.tag == tag && h.mark != typeStructEnd {
			return h, nil
		}
		if err := d.skipField(h.mark); err != nil {
			d.pos = start
			return head{}, ErrTagNotFound
		}
	}
	d.pos = start
	return head{}, ErrTagNotFound
}

func (d *Decoder) skipField(mark byte) error {
	switch mark {
	case typeInt8:
		_, err := d.take(1)
		return err
	case typeInt16:
		_, err := d.take(2)
		return err
	case typeInt32:
		_, err := d.take(4)
		return err
	case typeInt64:
		_, err := d.take(8)
		return err
	case typeFloat:
		_, err := d.take(4)
		return err
	case typeDouble:
		_, err := d.take(8)
		return err
	case typeString1:
		b, err := d.take(1)
		if err != nil {
			return err
		}
		_, err = d.take(int(b[0]))
		return err
	case typeString4:
		b, err := d.take(4)
		if err != nil {
			return err
		}
		_, err = d.take(int(binary.BigEndian.Uint32(b)))
		return err
	case typeMaps:
		n, err := d.readRawInt32()
		if err != nil {
			return err
		}
		for i := 0; i < n*2; i++ {
			h, err := d.takeHead()
			if err != nil {
				return err
			}
			if err := d.skipField(h.mark); err != nil {
				return err
			}
		}
		return nil
	case typeList:
		n, err := d.readRawInt32()
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			h, err := d.takeHead()
			if err != nil {
				return err
			}
			if err := d.skipField(h.mark); err != nil {
				return err
			}
		}
		return nil
	case typeStructBegin:
		for {
			h, err := d.takeHead()
			if err != nil {
				return err
			}
			if h.mark == typeStructEnd {
				return nil
			}
			if err := d.skipField(h.mark); err != nil {
				return err
			}
		}
	case typeStructEnd, typeZero:
		return nil
	case typeSimpleList:
		if _, err := d.takeHead(); err != nil {
			return err
		}
		n, err := d.readRawInt32()
		if err != nil {
			return err
		}
		_, err = d.take(n)
		return err
	default:
		return ErrTypeMismatch
	}
}

// readRawInt32 reads an int32 field with no tag header of its own (used for
// list/map/simple-list length prefixes, which are always tag 0 but whose
// header has already been consumed by the caller in the original — here we
// read the header too, since our skip/read paths always see one).
func (d *Decoder) readRawInt32() (int, error) {
	v, err := d.ReadInt32(0, true, 0)
	return int(v), err
}

// ReadInt32 reads an integer field, widening int8/int16 encodings as the
// wire type demands. If the tag is absent and isRequired is false, def is
// returned instead of an error.
func (d *Decoder) ReadInt32(tag uint8, isRequired bool, def int32) (int32, error) {
	h, err := d.skipToTag(tag)
	if err != nil {
		return optionalDefault(err, isRequired, def)
	}
	switch h.mark {
	case typeZero:
		return 0, nil
	case typeInt8:
		b, err := d.take(1)
		if err != nil {
			return 0, err
		}
		return int32(int8(b[0])), nil
	case typeInt16:
		b, err := d.take(2)
		if err != nil {
			return 0, err
		}
		return int32(int16(binary.BigEndian.Uint16(b))), nil
	case typeInt32:
		b, err := d.take(4)
		if err != nil {
			return 0, err
		}
		return int32(binary.BigEndian.Uint32(b)), nil
	default:
		return 0, ErrTypeMismatch
	}
}

// ReadInt64 reads an integer field of any width up to 64 bits.
func (d *Decoder) ReadInt64(tag uint8, isRequired bool, def int64) (int64, error) {
	h, err := d.skipToTag(tag)
	if err != nil {
		return optionalDefault(err, isRequired, def)
	}
	switch h.mark {
	case typeZero:
		return 0, nil
	case typeInt8:
		b, err := d.take(1)
		if err != nil {
			return 0, err
		}
		return int64(int8(b[0])), nil
	case typeInt16:
		b, err := d.take(2)
		if err != nil {
			return 0, err
		}
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case typeInt32:
		b, err := d.take(4)
		if err != nil {
			return 0, err
		}
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	case typeInt64:
		b, err := d.take(8)
		if err != nil {
			return 0, err
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	default:
		return 0, ErrTypeMismatch
	}
}

// ReadString reads a string field.
func (d *Decoder) ReadString(tag uint8, isRequired bool, def string) (string, error) {
	h, err := d.skipToTag(tag)
	if err != nil {
		return optionalDefault(err, isRequired, def)
	}
	switch h.mark {
	case typeString1:
		b, err := d.take(1)
		if err != nil {
			return "", err
		}
		s, err := d.take(int(b[0]))
		if err != nil {
			return "", err
		}
		return string(s), nil
	case typeString4:
		b, err := d.take(4)
		if err != nil {
			return "", err
		}
		s, err := d.take(int(binary.BigEndian.Uint32(b)))
		if err != nil {
			return "", err
		}
		return string(s), nil
	default:
		return "", ErrTypeMismatch
	}
}

// ReadBytes reads a raw byte blob encoded as a TARS simple list of int8.
func (d *Decoder) ReadBytes(tag uint8, isRequired bool, def []byte) ([]byte, error) {
	h, err := d.skipToTag(tag)
	if err != nil {
		return optionalDefault(err, isRequired, def)
	}
	if h.mark != typeSimpleList {
		return nil, ErrTypeMismatch
	}
	if _, err := d.takeHead(); err != nil {
		return nil, err
	}
	n, err := d.readRawInt32()
	if err != nil {
		return nil, err
	}
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// ReadStruct locates tag as a nested struct and hands a sub-decoder scoped
// to exactly that struct's body to fn, matching read_struct/_decode_from.
func (d *Decoder) ReadStruct(tag uint8, isRequired bool, fn func(*Decoder) error) error {
	h, err := d.skipToTag(tag)
	if err != nil {
		if !isRequired && errors.Is(err, ErrTagNotFound) {
			return ErrTagNotFound
		}
		return err
	}
	if h.mark != typeStructBegin {
		return ErrTypeMismatch
	}
	return fn(d)
}

func optionalDefault[T any](err error, isRequired bool, def T) (T, error) {
	if errors.Is(err, ErrTagNotFound) && !isRequired {
		return def, nil
	}
	return def, err
}
