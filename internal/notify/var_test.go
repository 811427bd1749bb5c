package notify_test

import (
	"testing"
	"time"

	"github.com/carbonadodb/carbonado/internal/notify"
	"github.com/stretchr/testify/require"
)

func TestVar(t *testing.T) {
	r := require.New(t)

	v := notify.New(0)
	val, ch := v.Get()
	r.Equal(0, val)

	go func() {
		time.Sleep(10 * time.Millisecond)
		v.Set(42)
	}()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}

	val, _ = v.Get()
	r.Equal(42, val)
}
