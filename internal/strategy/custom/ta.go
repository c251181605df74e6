package custom

import (
	"github.com/d5/tengo/v2"
)

// taModule exposes indicator helpers to scripts. Both functions take an array
// of numbers and an integer window and return an array of the same length;
// positions before the window fills hold 0.
var taModule = map[string]tengo.Object{
	"sma": &tengo.UserFunction{Name: "sma", Value: taSMA},
	"ema": &tengo.UserFunction{Name: "ema", Value: taEMA},
}

func taSMA(args ...tengo.Object) (tengo.Object, error) {
	values, window, err := indicatorArgs(args)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return floatArray(out), nil
}

func taEMA(args ...tengo.Object) (tengo.Object, error) {
	values, window, err := indicatorArgs(args)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(values))
	if len(values) < window {
		return floatArray(out), nil
	}

	// Seed with the SMA of the first window, then smooth.
	var seed float64
	for _, v := range values[:window] {
		seed += v
	}
	seed /= float64(window)
	out[window-1] = seed

	alpha := 2 / float64(window+1)
	prev := seed
	for i := window; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return floatArray(out), nil
}

func indicatorArgs(args []tengo.Object) ([]float64, int, error) {
	if len(args) != 2 {
		return nil, 0, tengo.ErrWrongNumArguments
	}

	arr, ok := tengo.ToInterface(args[0]).([]interface{})
	if !ok {
		return nil, 0, tengo.ErrInvalidArgumentType{Name: "values", Expected: "array", Found: args[0].TypeName()}
	}
	values := make([]float64, len(arr))
	for i, raw := range arr {
		v, ok := toFloat(raw)
		if !ok {
			return nil, 0, tengo.ErrInvalidArgumentType{Name: "values", Expected: "number", Found: args[0].TypeName()}
		}
		values[i] = v
	}

	window, ok := tengo.ToInt(args[1])
	if !ok || window <= 0 {
		return nil, 0, tengo.ErrInvalidArgumentType{Name: "window", Expected: "positive int", Found: args[1].TypeName()}
	}
	return values, window, nil
}

func floatArray(values []float64) *tengo.Array {
	arr := &tengo.Array{Value: make([]tengo.Object, len(values))}
	for i, v := range values {
		arr.Value[i] = &tengo.Float{Value: v}
	}
	return arr
}
