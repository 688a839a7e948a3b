// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dns

import (
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPacket(t *testing.T, id uint16, response bool, answers int) []byte {
	msg := new(dns.Msg)
	msg.SetQuestion("datadoghq.com.", dns.TypeA)
	msg.Id = id
	msg.Response = response
	for i := 0; i < answers; i++ {
		rr, err := dns.NewRR("datadoghq.com. 300 IN A 10.0.0.1")
		require.NoError(t, err)
		msg.Answer = append(msg.Answer, rr)
	}

	packet, err := msg.Pack()
	require.NoError(t, err)
	return packet
}

func TestDeduplicator(t *testing.T) {
	clk := clock.NewMock()
	dedup, err := NewDeduplicator(16, time.Second, clk, &statsd.NoOpClient{})
	require.NoError(t, err)

	response := newPacket(t, 1, true, 1)

	forward, err := dedup.ShouldForward(response)
	require.NoError(t, err)
	assert.True(t, forward)

	// duplicate within the window
	forward, err = dedup.ShouldForward(response)
	require.NoError(t, err)
	assert.False(t, forward)

	// same id, different size
	forward, err = dedup.ShouldForward(newPacket(t, 1, true, 2))
	require.NoError(t, err)
	assert.True(t, forward)

	// queries are never filtered
	query := newPacket(t, 2, false, 0)
	for i := 0; i < 2; i++ {
		forward, err = dedup.ShouldForward(query)
		require.NoError(t, err)
		assert.True(t, forward)
	}

	// out of the window
	clk.Add(2 * time.Second)
	forward, err = dedup.ShouldForward(newPacket(t, 1, true, 2))
	require.NoError(t, err)
	assert.True(t, forward)

	stats := dedup.ReceiverStats()
	assert.Equal(t, uint32(1), stats.FilteredDNSPackets)
	assert.Equal(t, uint32(1), stats.SameIDDifferentSize)

	assert.NoError(t, dedup.SendStats())
	assert.Equal(t, uint32(0), dedup.ReceiverStats().FilteredDNSPackets)

	_, err = dedup.ShouldForward([]byte{1, 2})
	assert.Error(t, err)
}
