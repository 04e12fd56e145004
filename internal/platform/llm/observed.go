package llm

import (
	"context"
	"time"
)

// Observer is told about every call made through an Observed client.
type Observer func(model string, err error, dur time.Duration, usage Usage)

type observed struct {
	Client
	obs Observer
}

// Observed wraps base so obs sees each Generate call. A nil obs returns base.
func Observed(base Client, obs Observer) Client {
	if base == nil || obs == nil {
		return base
	}
	return &observed{Client: base, obs: obs}
}

func (o *observed) Generate(ctx context.Context, req Request) (Completion, error) {
	start := time.Now()
	out, err := o.Client.Generate(ctx, req)
	model := out.Model
	if model == "" {
		model = o.Client.Model()
	}
	o.obs(model, err, time.Since(start), out.Usage)
	return out, err
}
