// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package ringbuffer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

type lostCounter struct {
	lost map[model.EventType]uint64
}

func (c *lostCounter) CountLostEvent(count uint64, eventType model.EventType) {
	c.lost[eventType] += count
}

func TestRingBuffer(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	rb, err := New(2)
	require.NoError(t, err)

	counter := &lostCounter{lost: make(map[model.EventType]uint64)}
	rb.SetMonitor(counter)

	assert.True(t, rb.Enqueue(model.FileRenameEventType, []byte{1}))
	assert.True(t, rb.Enqueue(model.FileRenameEventType, []byte{2}))
	assert.False(t, rb.Enqueue(model.FileRenameEventType, []byte{3}))
	assert.Equal(t, uint64(1), rb.Lost())
	assert.Equal(t, uint64(1), counter.lost[model.FileRenameEventType])
	assert.Equal(t, 2, rb.Len())

	data, ok := rb.Poll()
	assert.True(t, ok)
	assert.Equal(t, []byte{1}, data)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var read [][]byte
	err = rb.Read(ctx, func(data []byte) {
		read = append(read, data)
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, [][]byte{{2}}, read)

	_, ok = rb.Poll()
	assert.False(t, ok)
}
