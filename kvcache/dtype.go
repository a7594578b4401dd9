package kvcache

import (
	"fmt"
	"sort"
)

// Dtype names an element data type for model weights or KV cache entries.
type Dtype string

const (
	DtypeFP32 Dtype = "fp32"
	DtypeFP16 Dtype = "fp16"
	DtypeBF16 Dtype = "bf16"
	DtypeFP8  Dtype = "fp8"
	DtypeINT8 Dtype = "int8"
	DtypeINT4 Dtype = "int4"
)

// modelDtypeBytes maps weight dtypes to bytes per element. Read-only.
var modelDtypeBytes = map[Dtype]float64{
	DtypeFP32: 4,
	DtypeFP16: 2,
	DtypeBF16: 2,
	DtypeFP8:  1,
	DtypeINT8: 1,
	DtypeINT4: 0.5,
}

// kvCacheDtypeBytes maps KV cache dtypes to bytes per element.
// int4 is not a supported KV cache format.
var kvCacheDtypeBytes = map[Dtype]float64{
	DtypeFP32: 4,
	DtypeFP16: 2,
	DtypeBF16: 2,
	DtypeFP8:  1,
	DtypeINT8: 1,
}

// ModelDtypeBytes returns the bytes per element of a model weight dtype.
func ModelDtypeBytes(d Dtype) (float64, error) {
	b, ok := modelDtypeBytes[d]
	if !ok {
		return 0, fmt.Errorf("%w: unknown model dtype %q (valid: %v)", ErrInvalidConfig, d, ValidModelDtypes())
	}
	return b, nil
}

// KVCacheDtypeBytes returns the bytes per element of a KV cache dtype.
func KVCacheDtypeBytes(d Dtype) (float64, error) {
	b, ok := kvCacheDtypeBytes[d]
	if !ok {
		return 0, fmt.Errorf("%w: unknown kvcache dtype %q (valid: %v)", ErrInvalidConfig, d, ValidKVCacheDtypes())
	}
	return b, nil
}

// ValidModelDtypes lists the accepted model dtypes in sorted order.
func ValidModelDtypes() []Dtype {
	return sortedDtypes(modelDtypeBytes)
}

// ValidKVCacheDtypes lists the accepted KV cache dtypes in sorted order.
func ValidKVCacheDtypes() []Dtype {
	return sortedDtypes(kvCacheDtypeBytes)
}

func sortedDtypes(table map[Dtype]float64) []Dtype {
	out := make([]Dtype, 0, len(table))
	for d := range table {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
