package agents

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/aristath/aegis/internal/domain"
)

// Input is the loosely typed payload handed to an agent. Values may be native
// Go types or the shapes produced by decoding JSON; the accessors accept both.
type Input map[string]interface{}

// Has reports whether key is present with a non-nil value.
func (in Input) Has(key string) bool {
	v, ok := in[key]
	return ok && v != nil
}

// Require fails with ErrInputValidation naming the first missing key.
func (in Input) Require(keys ...string) error {
	for _, k := range keys {
		if !in.Has(k) {
			return fmt.Errorf("missing required input %q: %w", k, domain.ErrInputValidation)
		}
	}
	return nil
}

// Float reads a required numeric value.
func (in Input) Float(key string) (float64, error) {
	v, ok, err := in.OptionalFloat(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("missing required input %q: %w", key, domain.ErrInputValidation)
	}
	return v, nil
}

// OptionalFloat reads a numeric value that may be absent.
func (in Input) OptionalFloat(key string) (float64, bool, error) {
	if !in.Has(key) {
		return 0, false, nil
	}
	f, ok := toFloat(in[key])
	if !ok {
		return 0, false, fmt.Errorf("input %q must be numeric, got %T: %w", key, in[key], domain.ErrInputValidation)
	}
	return f, true, nil
}

// String reads a string value; absent or non-string yields false.
func (in Input) String(key string) (string, bool) {
	s, ok := in[key].(string)
	return s, ok
}

// Strings reads a list of strings.
func (in Input) Strings(key string) ([]string, error) {
	return Get[[]string](in, key)
}

// Floats reads a list of numbers.
func (in Input) Floats(key string) ([]float64, error) {
	return Get[[]float64](in, key)
}

// Frame reads a return table.
func (in Input) Frame(key string) (*domain.ReturnFrame, error) {
	if f, ok := in[key].(domain.ReturnFrame); ok {
		return &f, nil
	}
	return Get[*domain.ReturnFrame](in, key)
}

// Signals reads analyst signals.
func (in Input) Signals(key string) ([]domain.Signal, error) {
	return Get[[]domain.Signal](in, key)
}

// Trades reads trade instructions.
func (in Input) Trades(key string) ([]domain.TradeInstruction, error) {
	return Get[[]domain.TradeInstruction](in, key)
}

// Positions reads holdings keyed by symbol. Plain symbol to value maps are
// accepted too.
func (in Input) Positions(key string) (map[string]domain.Position, error) {
	if flat, ok := in[key].(map[string]float64); ok {
		out := make(map[string]domain.Position, len(flat))
		for s, v := range flat {
			out[s] = domain.Position{Value: v}
		}
		return out, nil
	}
	if generic, ok := in[key].(map[string]interface{}); ok && len(generic) > 0 {
		out := make(map[string]domain.Position, len(generic))
		for s, v := range generic {
			f, numeric := toFloat(v)
			if !numeric {
				out = nil
				break
			}
			out[s] = domain.Position{Value: f}
		}
		if out != nil {
			return out, nil
		}
	}
	return Get[map[string]domain.Position](in, key)
}

// FloatSeries reads per-symbol numeric series.
func (in Input) FloatSeries(key string) (map[string][]float64, error) {
	return Get[map[string][]float64](in, key)
}

// Get reads key as T. Values already of type T (or *T) are returned as is;
// anything else is converted through its JSON form.
func Get[T any](in Input, key string) (T, error) {
	var zero T
	v, ok := in[key]
	if !ok || v == nil {
		return zero, fmt.Errorf("missing required input %q: %w", key, domain.ErrInputValidation)
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	if p, ok := v.(*T); ok && p != nil {
		return *p, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("input %q is not encodable: %v: %w", key, err, domain.ErrInputValidation)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("input %q has the wrong shape: %v: %w", key, err, domain.ErrInputValidation)
	}
	return out, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return math.NaN(), false
	}
}
