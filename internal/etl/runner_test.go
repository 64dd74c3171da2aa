package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRunRequiredFailureAborts(t *testing.T) {
	r := NewRunner(zerolog.Nop())
	boom := errors.New("upstream down")

	var ran []string
	err := r.Run(context.Background(), []Step{
		{Name: "first", Required: true, Fn: func(ctx context.Context) error {
			ran = append(ran, "first")
			return nil
		}},
		{Name: "second", Required: true, Fn: func(ctx context.Context) error {
			ran = append(ran, "second")
			return boom
		}},
		{Name: "third", Required: true, Fn: func(ctx context.Context) error {
			ran = append(ran, "third")
			return nil
		}},
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"first", "second"}, ran, "steps after a required failure must not run")
}

func TestRunBestEffortFailureContinues(t *testing.T) {
	r := NewRunner(zerolog.Nop())

	var ran []string
	err := r.Run(context.Background(), []Step{
		{Name: "flaky", Required: false, Fn: func(ctx context.Context) error {
			ran = append(ran, "flaky")
			return errors.New("report timeout")
		}},
		{Name: "recompute", Required: true, Fn: func(ctx context.Context) error {
			ran = append(ran, "recompute")
			return nil
		}},
	})

	require.NoError(t, err)
	require.Equal(t, []string{"flaky", "recompute"}, ran)
}

func TestRunEmptySteps(t *testing.T) {
	r := NewRunner(zerolog.Nop())
	require.NoError(t, r.Run(context.Background(), nil))
}
