// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package model

import (
	"strings"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDNSHeaderBits(t *testing.T) {
	msg := new(dns.Msg)
	msg.SetQuestion("datadoghq.com.", dns.TypeA)
	msg.Id = 0xbeef
	msg.Response = true
	msg.Opcode = dns.OpcodeNotify
	msg.Authoritative = true
	msg.Truncated = false
	msg.RecursionDesired = true
	msg.RecursionAvailable = true
	msg.Zero = true
	msg.AuthenticatedData = false
	msg.CheckingDisabled = true
	msg.Rcode = dns.RcodeNameError

	packet, err := msg.Pack()
	require.NoError(t, err)

	var h DNSHeader
	n, err := h.UnmarshalBinary(packet)
	require.NoError(t, err)
	assert.Equal(t, DNSHeaderSize, n)

	assert.Equal(t, msg.Id, h.ID)
	assert.Equal(t, msg.Response, h.QR())
	assert.Equal(t, uint8(msg.Opcode), h.Opcode())
	assert.Equal(t, msg.Authoritative, h.AA())
	assert.Equal(t, msg.Truncated, h.TC())
	assert.Equal(t, msg.RecursionDesired, h.RD())
	assert.Equal(t, msg.RecursionAvailable, h.RA())
	assert.Equal(t, msg.Zero, h.Z())
	assert.Equal(t, msg.AuthenticatedData, h.AD())
	assert.Equal(t, msg.CheckingDisabled, h.CD())
	assert.Equal(t, uint8(msg.Rcode), h.RCode())
	assert.Equal(t, uint16(1), h.QDCount)
	assert.Equal(t, uint16(0), h.ANCount)

	_, err = h.UnmarshalBinary(packet[:5])
	assert.ErrorIs(t, err, ErrDNSPacketTooShort)
}

func TestDecodeDNSQuestion(t *testing.T) {
	msg := new(dns.Msg)
	msg.SetQuestion("app.datadoghq.com.", dns.TypeAAAA)
	packet, err := msg.Pack()
	require.NoError(t, err)

	header, question, err := DecodeDNSQuestion(packet)
	require.NoError(t, err)
	assert.Equal(t, msg.Id, header.ID)
	assert.Equal(t, "app.datadoghq.com", question.Name)
	assert.Equal(t, dns.TypeAAAA, question.Type)
	assert.Equal(t, uint16(dns.ClassINET), question.Class)
	assert.Equal(t, uint16(len(packet)), question.Size)
}

func TestDecodeDNSName(t *testing.T) {
	name, size, err := decodeDNSName([]byte{3, 'w', 'w', 'w', 2, 'i', 'o', 0, 0xff})
	assert.NoError(t, err)
	assert.Equal(t, "www.io", name)
	assert.Equal(t, 8, size)

	name, size, err = decodeDNSName([]byte{0})
	assert.NoError(t, err)
	assert.Empty(t, name)
	assert.Equal(t, 1, size)

	_, _, err = decodeDNSName([]byte{0xc0, 0x0c})
	assert.ErrorIs(t, err, ErrDNSNamePointerNotSupported)

	_, _, err = decodeDNSName([]byte{10, 'a'})
	assert.ErrorIs(t, err, ErrDNSNameOutOfBounds)

	// no root label
	_, _, err = decodeDNSName([]byte{1, 'a'})
	assert.ErrorIs(t, err, ErrDNSNameOutOfBounds)

	_, _, err = decodeDNSName([]byte{1, 0x01, 0})
	assert.ErrorIs(t, err, ErrDNSNameNonPrintableASCII)

	_, _, err = decodeDNSName(append([]byte{DNSMaxLabelLength + 1}, make([]byte, 70)...))
	assert.ErrorIs(t, err, ErrDNSLabelTooLong)
}

func TestDecodeDNSNameTooLong(t *testing.T) {
	label := append([]byte{DNSMaxLabelLength}, []byte(strings.Repeat("a", DNSMaxLabelLength))...)

	// 4 labels of 64 octets go past the limit
	var raw []byte
	for i := 0; i < 4; i++ {
		raw = append(raw, label...)
	}
	raw = append(raw, 0)
	_, _, err := decodeDNSName(raw)
	assert.ErrorIs(t, err, ErrDNSNameTooLong)

	// 3 labels of 64 octets and a root label fit
	raw = append(append(append([]byte{}, label...), label...), label...)
	raw = append(raw, 0)
	name, size, err := decodeDNSName(raw)
	require.NoError(t, err)
	assert.Equal(t, 3*DNSMaxLabelLength+2, len(name))
	assert.Equal(t, 3*(DNSMaxLabelLength+1)+1, size)
}

func TestDNSStructs(t *testing.T) {
	stats := DNSReceiverStats{FilteredDNSPackets: 3, SameIDDifferentSize: 1}
	data, err := stats.MarshalBinary()
	require.NoError(t, err)

	var decodedStats DNSReceiverStats
	_, err = decodedStats.UnmarshalBinary(data)
	require.NoError(t, err)
	assert.Equal(t, stats, decodedStats)

	entry := DNSResponseLRUEntry{Timestamp: 99, PacketSize: 512}
	data, err = entry.MarshalBinary()
	require.NoError(t, err)

	var decodedEntry DNSResponseLRUEntry
	_, err = decodedEntry.UnmarshalBinary(data)
	require.NoError(t, err)
	assert.Equal(t, entry, decodedEntry)

	_, err = decodedEntry.UnmarshalBinary(data[:8])
	assert.ErrorIs(t, err, ErrNotEnoughData)
}
