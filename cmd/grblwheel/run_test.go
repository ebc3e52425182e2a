package main

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/grblwheel/machine/grbl"
)

func TestWaitBanner(t *testing.T) {
	port := &simPort{}
	link := grbl.NewLink(grbl.Options{
		Open: func(string, int) (io.ReadWriteCloser, error) { return port, nil },
	})
	require.NoError(t, link.Connect("/dev/sim", 0))
	defer link.Disconnect()

	assert.False(t, waitBanner(link, 20*time.Millisecond))

	go func() {
		time.Sleep(30 * time.Millisecond)
		port.push("\r\n")
		time.Sleep(30 * time.Millisecond)
		port.push("Grbl 1.1h ['$' for help]\r\n")
	}()
	start := time.Now()
	assert.True(t, waitBanner(link, 5*time.Second))
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, "Grbl 1.1h ['$' for help]", link.State().LastResponse)
}
