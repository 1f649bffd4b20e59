package container

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeDriver_ExitCodePropagates(t *testing.T) {
	d := NewFakeDriver()
	h, err := d.Run(context.Background(), RunSpec{Image: "busybox", Command: "exit 3"})
	require.NoError(t, err)
	code, err := d.Wait(h)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestFakeDriver_StopInterruptsSleep(t *testing.T) {
	d := NewFakeDriver()
	h, err := d.Run(context.Background(), RunSpec{Image: "busybox", Command: "sleep 30"})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, d.Stop(context.Background(), h, 1))

	code, err := d.Wait(h)
	require.NoError(t, err)
	assert.Equal(t, 143, code)
}

func TestFakeDriver_PullRecordsImage(t *testing.T) {
	d := NewFakeDriver()
	require.NoError(t, d.Pull(context.Background(), "busybox:latest"))
	assert.Contains(t, d.Pulled(), "busybox:latest")
}
