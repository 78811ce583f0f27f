package realtimesvc

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/storyhaven/ripple/internal/broker"
)

// celFilter wraps a compiled CEL program evaluated per delivered event. When
// disabled, Eval always returns true. Control events (connected, heartbeat)
// bypass filtering entirely.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("channel", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		// Parsed JSON payload for field filtering.
		cel.Variable("json", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, fmt.Errorf("%w: %v", ErrBadFilter, iss.Err())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, fmt.Errorf("%w: %v", ErrBadFilter, iss2.Err())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against an event. Evaluation errors
// suppress the event rather than failing the stream.
func (f celFilter) Eval(ev broker.Event) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(ev.Payload, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"channel": ev.Channel,
		"type":    ev.Type,
		"ts_ms":   ev.TimestampMs,
		"size":    int64(len(ev.Payload)),
		"json":    jsonObj,
		"now_ms":  time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
