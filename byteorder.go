package emcore

import (
	"encoding/binary"
	"unsafe"
)

// ByteOrder is the byte order of multi-byte values in a file or buffer.
// The zero value means "unknown" and behaves as the native order.
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota + 1
	BigEndian
)

var nativeOrder = func() ByteOrder {
	x := uint16(1)
	if *(*byte)(unsafe.Pointer(&x)) == 1 {
		return LittleEndian
	}
	return BigEndian
}()

// NativeOrder returns the byte order of the host.
func NativeOrder() ByteOrder { return nativeOrder }

// IsLittleEndian reports whether the host is little-endian.
func IsLittleEndian() bool { return nativeOrder == LittleEndian }

// Resolve returns o, or the native order when o is zero.
func (o ByteOrder) Resolve() ByteOrder {
	if o == 0 {
		return nativeOrder
	}
	return o
}

// Binary returns the encoding/binary implementation of o.
func (o ByteOrder) Binary() binary.ByteOrder {
	if o.Resolve() == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Swapped returns the opposite byte order.
func (o ByteOrder) Swapped() ByteOrder {
	if o.Resolve() == BigEndian {
		return LittleEndian
	}
	return BigEndian
}

// NeedsSwap reports whether data stored in order o must be byte swapped
// to be used on this host.
func (o ByteOrder) NeedsSwap() bool { return o.Resolve() != nativeOrder }

func (o ByteOrder) String() string {
	switch o {
	case LittleEndian:
		return "little-endian"
	case BigEndian:
		return "big-endian"
	}
	return "native"
}

// SwapBytes reverses the byte order of each elemSize wide value in mem.
// Trailing bytes that do not fill a whole value are left untouched.
func SwapBytes(mem []byte, elemSize int) {
	switch elemSize {
	case 0, 1:
		return
	case 2:
		for i := 0; i+1 < len(mem); i += 2 {
			mem[i], mem[i+1] = mem[i+1], mem[i]
		}
	case 4:
		for i := 0; i+3 < len(mem); i += 4 {
			mem[i], mem[i+1], mem[i+2], mem[i+3] = mem[i+3], mem[i+2], mem[i+1], mem[i]
		}
	default:
		for i := 0; i+elemSize <= len(mem); i += elemSize {
			v := mem[i : i+elemSize]
			for a, b := 0, elemSize-1; a < b; a, b = a+1, b-1 {
				v[a], v[b] = v[b], v[a]
			}
		}
	}
}
