package emcore

import (
	"cmp"
	"math"
	"math/cmplx"
	"strconv"
	"strings"
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/x448/float16"
)

// Op is an element-wise operation applied by Type kernels.
type Op uint8

const (
	OpCast Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpLog
	OpSqrt
)

var opNames = [...]string{"cast", "add", "sub", "mul", "div", "log", "sqrt"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// span is a window of typed memory: POD elements live in b, strings in s.
type span struct {
	b []byte
	s []string
}

// kernel holds the per-kind generic operations of a descriptor.
type kernel interface {
	// operate writes n elements into dst. src holds n elements of srcType,
	// or a single broadcast element when single is set.
	operate(op Op, dst, src span, srcType Type, n int, single bool) error
	format(s span, i int) string
	parse(s span, i int, text string) error
	compare(a span, i int, b span, j int) int
	// typed returns the first n elements of s as a Go slice ([]float32, ...).
	typed(s span, n int) any
}

type realNumber interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

type complexNumber interface {
	~complex64 | ~complex128
}

func elems[T any](b []byte) []T {
	if len(b) == 0 {
		return nil
	}
	var z T
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/int(unsafe.Sizeof(z)))
}

func asBytes[T any](v []T) []byte {
	if len(v) == 0 {
		return nil
	}
	var z T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(v))), len(v)*int(unsafe.Sizeof(z)))
}

func unsupported(op Op, t Type) error {
	return Errorf(op.String(), ErrUnsupportedOperation, "%s elements do not support %s", t, op)
}

func convertReal[D, S realNumber](dst []D, src []S) {
	for i := range dst {
		dst[i] = D(src[i])
	}
}

// parseReal reads text as a D. Integer destinations reject values outside
// their range instead of wrapping.
func parseReal[D realNumber](text string) (D, error) {
	text = strings.TrimSpace(text)
	half := 0.5
	integer := D(half) == 0
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		d := D(i)
		if !integer || (int64(d) == i && (i < 0) == (d < 0)) {
			return d, nil
		}
		return 0, outOfRange[D](text)
	}
	if integer {
		if u, err := strconv.ParseUint(text, 10, 64); err == nil {
			if d := D(u); uint64(d) == u && d >= 0 {
				return d, nil
			}
			return 0, outOfRange[D](text)
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, Errorf("parse", ErrInvalidFormat, "%q is not a number", text)
	}
	d := D(f)
	if integer && float64(d) != math.Trunc(f) {
		return 0, outOfRange[D](text)
	}
	return d, nil
}

func outOfRange[D realNumber](text string) error {
	var z D
	return Errorf("parse", ErrInvalidFormat, "%q is out of range for %T", text, z)
}

// castReal converts len(dst) elements of any supported typed slice into dst.
func castReal[D realNumber](dst []D, src any) error {
	switch s := src.(type) {
	case []int8:
		convertReal(dst, s)
	case []uint8:
		convertReal(dst, s)
	case []int16:
		convertReal(dst, s)
	case []uint16:
		convertReal(dst, s)
	case []int32:
		convertReal(dst, s)
	case []uint32:
		convertReal(dst, s)
	case []int64:
		convertReal(dst, s)
	case []uint64:
		convertReal(dst, s)
	case []float32:
		convertReal(dst, s)
	case []float64:
		convertReal(dst, s)
	case []float16.Float16:
		for i := range dst {
			dst[i] = D(s[i].Float32())
		}
	case []complex64:
		for i := range dst {
			dst[i] = D(real(s[i]))
		}
	case []complex128:
		for i := range dst {
			dst[i] = D(real(s[i]))
		}
	case []bool:
		for i := range dst {
			if s[i] {
				dst[i] = 1
			} else {
				dst[i] = 0
			}
		}
	case []string:
		for i := range dst {
			v, err := parseReal[D](s[i])
			if err != nil {
				return err
			}
			dst[i] = v
		}
	default:
		return Errorf("cast", ErrUnsupportedType, "cannot cast from %T", src)
	}
	return nil
}

func castComplex[D complexNumber](dst []D, src any) error {
	switch s := src.(type) {
	case []complex64:
		for i := range dst {
			dst[i] = D(s[i])
		}
	case []complex128:
		for i := range dst {
			dst[i] = D(s[i])
		}
	case []string:
		for i := range dst {
			c, err := strconv.ParseComplex(strings.TrimSpace(s[i]), 128)
			if err != nil {
				return Errorf("parse", ErrInvalidFormat, "%q is not a complex number", s[i])
			}
			dst[i] = D(c)
		}
	default:
		tmp := make([]float64, len(dst))
		if err := castReal(tmp, src); err != nil {
			return err
		}
		for i := range dst {
			dst[i] = D(complex(tmp[i], 0))
		}
	}
	return nil
}

// input returns m elements of src as a []T, casting when srcType differs
// from the receiving kind.
func input[T any](kind Kind, src span, srcType Type, m int, cast func([]T, any) error) ([]T, error) {
	if srcType.Kind() == kind {
		return elems[T](src.b)[:m], nil
	}
	if srcType.IsNull() {
		return nil, Errorf("cast", ErrUnsupportedType, "source has no type")
	}
	in := make([]T, m)
	if err := cast(in, srcType.desc().k.typed(src, m)); err != nil {
		return nil, err
	}
	return in, nil
}

type realKernel[T realNumber] struct {
	kind Kind
}

func (k realKernel[T]) operate(op Op, dst, src span, srcType Type, n int, single bool) error {
	out := elems[T](dst.b)[:n]
	m, stride := n, 1
	if single {
		m, stride = 1, 0
	}
	in, err := input(k.kind, src, srcType, m, castReal[T])
	if err != nil {
		return err
	}
	switch op {
	case OpCast:
		for i := range out {
			out[i] = in[i*stride]
		}
	case OpAdd:
		for i := range out {
			out[i] += in[i*stride]
		}
	case OpSub:
		for i := range out {
			out[i] -= in[i*stride]
		}
	case OpMul:
		for i := range out {
			out[i] *= in[i*stride]
		}
	case OpDiv:
		if k.kind != KindFloat32 && k.kind != KindFloat64 {
			for _, v := range in {
				if v == 0 {
					return Errorf("div", ErrInvalidOperation, "integer division by zero")
				}
			}
		}
		for i := range out {
			out[i] /= in[i*stride]
		}
	case OpLog, OpSqrt:
		if o, ok := any(out).([]float32); ok {
			f := math32.Log
			if op == OpSqrt {
				f = math32.Sqrt
			}
			src32 := any(in).([]float32)
			for i := range o {
				o[i] = f(src32[i*stride])
			}
			return nil
		}
		f := math.Log
		if op == OpSqrt {
			f = math.Sqrt
		}
		for i := range out {
			out[i] = T(f(float64(in[i*stride])))
		}
	default:
		return Errorf(op.String(), ErrUnsupportedOperation, "unknown operation")
	}
	return nil
}

func (k realKernel[T]) format(s span, i int) string {
	switch v := any(elems[T](s.b)[i]).(type) {
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case uint8, uint16, uint32, uint64:
		return strconv.FormatUint(uint64(elems[T](s.b)[i]), 10)
	}
	return strconv.FormatInt(int64(elems[T](s.b)[i]), 10)
}

func (k realKernel[T]) parse(s span, i int, text string) error {
	v, err := parseReal[T](text)
	if err != nil {
		return err
	}
	elems[T](s.b)[i] = v
	return nil
}

func (k realKernel[T]) compare(a span, i int, b span, j int) int {
	return cmp.Compare(elems[T](a.b)[i], elems[T](b.b)[j])
}

func (k realKernel[T]) typed(s span, n int) any { return elems[T](s.b)[:n] }

type complexKernel[T complexNumber] struct {
	kind Kind
}

func (k complexKernel[T]) operate(op Op, dst, src span, srcType Type, n int, single bool) error {
	out := elems[T](dst.b)[:n]
	m, stride := n, 1
	if single {
		m, stride = 1, 0
	}
	in, err := input(k.kind, src, srcType, m, castComplex[T])
	if err != nil {
		return err
	}
	switch op {
	case OpCast:
		for i := range out {
			out[i] = in[i*stride]
		}
	case OpAdd:
		for i := range out {
			out[i] += in[i*stride]
		}
	case OpSub:
		for i := range out {
			out[i] -= in[i*stride]
		}
	case OpMul:
		for i := range out {
			out[i] *= in[i*stride]
		}
	case OpDiv:
		for i := range out {
			out[i] /= in[i*stride]
		}
	case OpLog:
		for i := range out {
			out[i] = T(cmplx.Log(complex128(in[i*stride])))
		}
	case OpSqrt:
		for i := range out {
			out[i] = T(cmplx.Sqrt(complex128(in[i*stride])))
		}
	default:
		return Errorf(op.String(), ErrUnsupportedOperation, "unknown operation")
	}
	return nil
}

func (k complexKernel[T]) format(s span, i int) string {
	bits := 128
	if k.kind == KindComplex64 {
		bits = 64
	}
	return strconv.FormatComplex(complex128(elems[T](s.b)[i]), 'g', -1, bits)
}

func (k complexKernel[T]) parse(s span, i int, text string) error {
	c, err := strconv.ParseComplex(strings.TrimSpace(text), 128)
	if err != nil {
		return Errorf("parse", ErrInvalidFormat, "%q is not a complex number", text)
	}
	elems[T](s.b)[i] = T(c)
	return nil
}

func (k complexKernel[T]) compare(a span, i int, b span, j int) int {
	x, y := complex128(elems[T](a.b)[i]), complex128(elems[T](b.b)[j])
	if c := cmp.Compare(real(x), real(y)); c != 0 {
		return c
	}
	return cmp.Compare(imag(x), imag(y))
}

func (k complexKernel[T]) typed(s span, n int) any { return elems[T](s.b)[:n] }

// halfKernel computes in float32 and rounds the result to half precision.
type halfKernel struct{}

func (halfKernel) operate(op Op, dst, src span, srcType Type, n int, single bool) error {
	out := elems[float16.Float16](dst.b)[:n]
	tmp := make([]float32, n)
	for i, v := range out {
		tmp[i] = v.Float32()
	}
	if srcType.Kind() == KindFloat16 {
		m := n
		if single {
			m = 1
		}
		in := elems[float16.Float16](src.b)[:m]
		wide := make([]float32, m)
		for i, v := range in {
			wide[i] = v.Float32()
		}
		src, srcType = span{b: asBytes(wide)}, Float32
	}
	if err := (realKernel[float32]{KindFloat32}).operate(op, span{b: asBytes(tmp)}, src, srcType, n, single); err != nil {
		return err
	}
	for i, v := range tmp {
		out[i] = float16.Fromfloat32(v)
	}
	return nil
}

func (halfKernel) format(s span, i int) string {
	return strconv.FormatFloat(float64(elems[float16.Float16](s.b)[i].Float32()), 'g', -1, 32)
}

func (halfKernel) parse(s span, i int, text string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 32)
	if err != nil {
		return Errorf("parse", ErrInvalidFormat, "%q is not a number", text)
	}
	elems[float16.Float16](s.b)[i] = float16.Fromfloat32(float32(f))
	return nil
}

func (halfKernel) compare(a span, i int, b span, j int) int {
	return cmp.Compare(elems[float16.Float16](a.b)[i].Float32(), elems[float16.Float16](b.b)[j].Float32())
}

func (halfKernel) typed(s span, n int) any { return elems[float16.Float16](s.b)[:n] }

type boolKernel struct{}

func (boolKernel) operate(op Op, dst, src span, srcType Type, n int, single bool) error {
	if op != OpCast {
		return unsupported(op, Bool)
	}
	out := elems[bool](dst.b)[:n]
	m, stride := n, 1
	if single {
		m, stride = 1, 0
	}
	var in []bool
	switch {
	case srcType.Kind() == KindBool:
		in = elems[bool](src.b)[:m]
	case srcType.Kind() == KindString:
		in = make([]bool, m)
		for i, s := range src.s[:m] {
			v, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return Errorf("parse", ErrInvalidFormat, "%q is not a boolean", s)
			}
			in[i] = v
		}
	case srcType.IsComplex():
		c := make([]complex128, m)
		if err := castComplex(c, srcType.desc().k.typed(src, m)); err != nil {
			return err
		}
		in = make([]bool, m)
		for i, v := range c {
			in[i] = v != 0
		}
	default:
		if srcType.IsNull() {
			return Errorf("cast", ErrUnsupportedType, "source has no type")
		}
		f := make([]float64, m)
		if err := castReal(f, srcType.desc().k.typed(src, m)); err != nil {
			return err
		}
		in = make([]bool, m)
		for i, v := range f {
			in[i] = v != 0
		}
	}
	for i := range out {
		out[i] = in[i*stride]
	}
	return nil
}

func (boolKernel) format(s span, i int) string {
	return strconv.FormatBool(elems[bool](s.b)[i])
}

func (boolKernel) parse(s span, i int, text string) error {
	v, err := strconv.ParseBool(strings.TrimSpace(text))
	if err != nil {
		return Errorf("parse", ErrInvalidFormat, "%q is not a boolean", text)
	}
	elems[bool](s.b)[i] = v
	return nil
}

func (boolKernel) compare(a span, i int, b span, j int) int {
	x, y := elems[bool](a.b)[i], elems[bool](b.b)[j]
	switch {
	case x == y:
		return 0
	case !x:
		return -1
	}
	return 1
}

func (boolKernel) typed(s span, n int) any { return elems[bool](s.b)[:n] }

type stringKernel struct{}

func (stringKernel) operate(op Op, dst, src span, srcType Type, n int, single bool) error {
	if op != OpCast {
		return unsupported(op, String)
	}
	out := dst.s[:n]
	if srcType.Kind() == KindString {
		if single {
			for i := range out {
				out[i] = src.s[0]
			}
		} else {
			copy(out, src.s[:n])
		}
		return nil
	}
	if srcType.IsNull() {
		return Errorf("cast", ErrUnsupportedType, "source has no type")
	}
	k := srcType.desc().k
	for i := range out {
		j := i
		if single {
			j = 0
		}
		out[i] = k.format(src, j)
	}
	return nil
}

func (stringKernel) format(s span, i int) string { return s.s[i] }

func (stringKernel) parse(s span, i int, text string) error {
	s.s[i] = text
	return nil
}

func (stringKernel) compare(a span, i int, b span, j int) int {
	return strings.Compare(a.s[i], b.s[j])
}

func (stringKernel) typed(s span, n int) any { return s.s[:n] }

// operate dispatches to the kernel of t, the type of dst.
func operate(op Op, t Type, dst, src span, srcType Type, n int, single bool) error {
	if n == 0 {
		return nil
	}
	if t.IsNull() {
		return Errorf(op.String(), ErrUnsupportedType, "destination has no type")
	}
	if op != OpCast && (!t.IsArithmetic() || (!srcType.IsArithmetic() && srcType.Kind() != KindBool)) {
		if !t.IsArithmetic() {
			return unsupported(op, t)
		}
		return unsupported(op, srcType)
	}
	return t.desc().k.operate(op, dst, src, srcType, n, single)
}

func formatElem(t Type, s span, i int) string {
	if t.IsNull() {
		return ""
	}
	return t.desc().k.format(s, i)
}

func parseElem(t Type, s span, i int, text string) error {
	if t.IsNull() {
		return Errorf("parse", ErrUnsupportedType, "no type set")
	}
	return t.desc().k.parse(s, i, text)
}

func compareElem(t Type, a span, i int, b span, j int) int {
	if t.IsNull() {
		return 0
	}
	return t.desc().k.compare(a, i, b, j)
}

func spanString(t Type, s span, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(formatElem(t, s, i))
	}
	return sb.String()
}

