// backend_floats.go - bit-level float helpers the closure backend needs
// for packed 3DNow lanes and x87 memory loads/stores.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "math"

func unpackF32(v uint64) (lo, hi float32) {
	return math.Float32frombits(uint32(v)), math.Float32frombits(uint32(v >> 32))
}

func packF32(lo, hi float32) uint64 {
	return uint64(math.Float32bits(lo)) | uint64(math.Float32bits(hi))<<32
}

func float32FromBits(b uint32) float32 { return math.Float32frombits(b) }

func sqrtFloat64(v float64) float64 { return math.Sqrt(v) }

func float32FromBits32(b uint32) float32 { return math.Float32frombits(b) }
func float32Bits32(v float32) uint32     { return math.Float32bits(v) }
func float64FromBits64(b uint64) float64 { return math.Float64frombits(b) }
func float64Bits64(v float64) uint64     { return math.Float64bits(v) }
