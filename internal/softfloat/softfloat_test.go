package softfloat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdd32Basic(t *testing.T) {
	r := Add32(1.5, 2.5, RNE)
	assert.Equal(t, float32(4), r.V)
	assert.Zero(t, r.Flags)
}

func TestAdd32InfMinusInfIsInvalid(t *testing.T) {
	r := Add32(float32(math.Inf(1)), float32(math.Inf(-1)), RNE)
	assert.NotZero(t, r.Flags&FlagNV)
	assert.True(t, math.IsNaN(float64(r.V)))
}

func TestDiv32ByZeroSignalsDZ(t *testing.T) {
	r := Div32(1, 0, RNE)
	assert.NotZero(t, r.Flags&FlagDZ)
}

func TestDiv32ZeroOverZeroIsInvalid(t *testing.T) {
	r := Div32(0, 0, RNE)
	assert.NotZero(t, r.Flags&FlagNV)
}

func TestSqrt32NegativeIsInvalid(t *testing.T) {
	r := Sqrt32(-4)
	assert.NotZero(t, r.Flags&FlagNV)
}

func TestSqrt64Positive(t *testing.T) {
	r := Sqrt64(16)
	assert.Equal(t, float64(4), r.V)
	assert.Zero(t, r.Flags)
}

func TestFMA64(t *testing.T) {
	r := FMA64(2, 3, 1)
	assert.Equal(t, float64(7), r.V)
}

func TestMin32PrefersNonNaN(t *testing.T) {
	r := Min32(float32(math.NaN()), 3)
	assert.Equal(t, float32(3), r.V)
}

func TestMin32BothNaNYieldsNaN(t *testing.T) {
	r := Min32(float32(math.NaN()), float32(math.NaN()))
	assert.True(t, math.IsNaN(float64(r.V)))
}

func TestLt64SignalsInvalidOnNaN(t *testing.T) {
	lt, flags := Lt64(math.NaN(), 1)
	assert.False(t, lt)
	assert.NotZero(t, flags&FlagNV)
}

func TestEq64OrdinaryValues(t *testing.T) {
	eq, flags := Eq64(1, 1)
	assert.True(t, eq)
	assert.Zero(t, flags)
}

func TestClassMask64Zero(t *testing.T) {
	assert.Equal(t, uint64(1<<4), ClassMask64(0))
	assert.Equal(t, uint64(1<<3), ClassMask64(math.Copysign(0, -1)))
}

func TestClassMask64Infinities(t *testing.T) {
	assert.Equal(t, uint64(1<<7), ClassMask64(math.Inf(1)))
	assert.Equal(t, uint64(1<<0), ClassMask64(math.Inf(-1)))
}

func TestClassMask32QuietNaN(t *testing.T) {
	qnan := math.Float32frombits(0x7fc00000)
	assert.Equal(t, uint64(1<<9), ClassMask32(qnan))
}

func TestToInt32RoundsAndSaturates(t *testing.T) {
	v, f := ToInt32(3.5, RNE)
	assert.Equal(t, int32(4), v)
	assert.Equal(t, FlagNX, f)

	v, f = ToInt32(1e30, RNE)
	assert.Equal(t, int32(math.MaxInt32), v)
	assert.NotZero(t, f&FlagNV)
}

func TestToUint32RejectsNegative(t *testing.T) {
	_, f := ToUint32(-1, RNE)
	assert.NotZero(t, f&FlagNV)
}

func TestRoundToIntModes(t *testing.T) {
	assert.Equal(t, float64(1), roundToInt(1.5, RTZ))
	assert.Equal(t, float64(1), roundToInt(1.5, RDN))
	assert.Equal(t, float64(2), roundToInt(1.5, RUP))
	assert.Equal(t, float64(2), roundToInt(1.5, RMM))
	assert.Equal(t, float64(2), roundToInt(1.5, RNE))
}
