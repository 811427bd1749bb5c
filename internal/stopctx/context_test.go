package stopctx_test

import (
	"context"
	"testing"
	"time"

	"github.com/carbonadodb/carbonado/internal/stopctx"
	"github.com/stretchr/testify/require"
)

func TestStopDrains(t *testing.T) {
	r := require.New(t)
	ctx := stopctx.WithContext(context.Background())

	var ran bool
	ctx.Go(func() error {
		<-ctx.Stopping()
		ran = true
		return nil
	})

	r.NoError(ctx.Stop(time.Second))
	r.True(ran)
}

func TestStopTimesOut(t *testing.T) {
	r := require.New(t)
	ctx := stopctx.WithContext(context.Background())

	block := make(chan struct{})
	ctx.Go(func() error {
		<-block
		return nil
	})
	defer close(block)

	err := ctx.Stop(20 * time.Millisecond)
	r.Error(err)
}
