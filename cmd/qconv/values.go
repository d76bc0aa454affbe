package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseFloats parses a comma or whitespace separated list.
func parseFloats(s string) ([]float32, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("no values given")
	}
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

// parseInts parses exactly n comma separated positive integers.
func parseInts(s string, n int) ([]int, error) {
	fields := strings.Split(s, ",")
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d comma-separated values, got %q", n, s)
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("value %d: %d is negative", i, v)
		}
		out[i] = v
	}
	return out, nil
}

// parsePair accepts either "a" (used for both axes) or "a,b".
func parsePair(s string) ([2]int, error) {
	if !strings.Contains(s, ",") {
		v, err := parseInts(s, 1)
		if err != nil {
			return [2]int{}, err
		}
		return [2]int{v[0], v[0]}, nil
	}
	v, err := parseInts(s, 2)
	if err != nil {
		return [2]int{}, err
	}
	return [2]int{v[0], v[1]}, nil
}

// zeroPointArg narrows a --zero-point flag value, rejecting anything int32
// cannot hold instead of wrapping it.
func zeroPointArg(v int64) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("zero point %d out of int32 range", v)
	}
	return int32(v), nil
}
