package eventgate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventgate/pkg/eventgate"
)

func tag(trace *[]string, name string) eventgate.Middleware {
	return func(next eventgate.Handler) eventgate.Handler {
		return func(ctx context.Context, inv eventgate.Invocation) (any, error) {
			*trace = append(*trace, name+">")
			out, err := next(ctx, inv)
			*trace = append(*trace, "<"+name)
			return out, err
		}
	}
}

func TestChainOrder(t *testing.T) {
	var trace []string
	h := eventgate.Chain(func(context.Context, eventgate.Invocation) (any, error) {
		trace = append(trace, "handler")
		return "done", nil
	}, tag(&trace, "outer"), nil, tag(&trace, "inner"))

	out, err := h(context.Background(), eventgate.Invocation{Operation: "op"})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, []string{"outer>", "inner>", "handler", "<inner", "<outer"}, trace)
}

func TestWhen(t *testing.T) {
	var trace []string
	h := eventgate.Chain(func(context.Context, eventgate.Invocation) (any, error) {
		return nil, nil
	}, eventgate.When(eventgate.Operations("Place"), tag(&trace, "boundary")))

	_, _ = h(context.Background(), eventgate.Invocation{Operation: "Find"})
	assert.Empty(t, trace)

	_, _ = h(context.Background(), eventgate.Invocation{Operation: "Place"})
	assert.Equal(t, []string{"boundary>", "<boundary"}, trace)
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    eventgate.Strategy
		wantErr bool
	}{
		{"", eventgate.StrategyCooperative, false},
		{"cooperative", eventgate.StrategyCooperative, false},
		{"direct", eventgate.StrategyDirect, false},
		{"diff", eventgate.StrategyDiff, false},
		{"parameters", eventgate.StrategyParameters, false},
		{"deep", eventgate.StrategyCooperative, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := eventgate.ParseStrategy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, eventgate.ErrUnknownStrategy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.in != "" {
				assert.Equal(t, tt.in, got.String())
			}
		})
	}
	assert.Equal(t, "unknown", eventgate.Strategy(42).String())
}
