package searchindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMeiliWaitForSkipsInvalidTask(t *testing.T) {
	// Unroutable host: any actual poll would error, so a nil return proves
	// the invalid handle short-circuits before touching the network.
	w := NewMeiliWriter(Config{Host: "http://127.0.0.1:1", PollInterval: time.Millisecond})

	assert.NoError(t, w.WaitFor(context.Background(), Task{}))
	assert.NoError(t, w.WaitFor(context.Background(), Task{UID: 7}),
		"a uid without validity is not a handle")
}
