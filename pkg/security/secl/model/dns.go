// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package model

import (
	"encoding/binary"
	"errors"
)

// DNSHeaderSize is the size of a DNS header on the wire
const DNSHeaderSize = 12

// ErrDNSPacketTooShort is returned when a packet can't hold a DNS header
var ErrDNSPacketTooShort = errors.New("dns packet too short")

// DNSHeader is the fixed header of a DNS packet. Flags holds the two flag
// bytes in network order: qr(1) opcode(4) aa(1) tc(1) rd(1) | ra(1) z(1) ad(1) cd(1) rcode(4)
type DNSHeader struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// UnmarshalBinary decodes a header from the start of a DNS packet
func (h *DNSHeader) UnmarshalBinary(data []byte) (int, error) {
	if len(data) < DNSHeaderSize {
		return 0, ErrDNSPacketTooShort
	}
	h.ID = binary.BigEndian.Uint16(data[0:2])
	h.Flags = binary.BigEndian.Uint16(data[2:4])
	h.QDCount = binary.BigEndian.Uint16(data[4:6])
	h.ANCount = binary.BigEndian.Uint16(data[6:8])
	h.NSCount = binary.BigEndian.Uint16(data[8:10])
	h.ARCount = binary.BigEndian.Uint16(data[10:12])
	return DNSHeaderSize, nil
}

func (h *DNSHeader) bit(shift uint) bool {
	return h.Flags>>shift&1 == 1
}

// RD recursion desired
func (h *DNSHeader) RD() bool { return h.bit(8) }

// TC truncated response
func (h *DNSHeader) TC() bool { return h.bit(9) }

// AA authoritative answer
func (h *DNSHeader) AA() bool { return h.bit(10) }

// Opcode of the query
func (h *DNSHeader) Opcode() uint8 { return uint8(h.Flags >> 11 & 0xf) }

// QR set on responses
func (h *DNSHeader) QR() bool { return h.bit(15) }

// RCode response code
func (h *DNSHeader) RCode() uint8 { return uint8(h.Flags & 0xf) }

// CD checking disabled
func (h *DNSHeader) CD() bool { return h.bit(4) }

// AD authenticated data
func (h *DNSHeader) AD() bool { return h.bit(5) }

// Z reserved bit
func (h *DNSHeader) Z() bool { return h.bit(6) }

// RA recursion available
func (h *DNSHeader) RA() bool { return h.bit(7) }

// DNSReceiverStatsSize is the size of DNSReceiverStats
const DNSReceiverStatsSize = 8

// DNSReceiverStats counters of the DNS response receiver
type DNSReceiverStats struct {
	FilteredDNSPackets  uint32 `json:"filtered_dns_packets"`
	SameIDDifferentSize uint32 `json:"same_id_different_size"`
}

// MarshalBinary returns the binary representation of the stats
func (s *DNSReceiverStats) MarshalBinary() ([]byte, error) {
	data := make([]byte, DNSReceiverStatsSize)
	ByteOrder.PutUint32(data[0:4], s.FilteredDNSPackets)
	ByteOrder.PutUint32(data[4:8], s.SameIDDifferentSize)
	return data, nil
}

// UnmarshalBinary unmarshalls a binary representation of itself
func (s *DNSReceiverStats) UnmarshalBinary(data []byte) (int, error) {
	if len(data) < DNSReceiverStatsSize {
		return 0, ErrNotEnoughData
	}
	s.FilteredDNSPackets = ByteOrder.Uint32(data[0:4])
	s.SameIDDifferentSize = ByteOrder.Uint32(data[4:8])
	return DNSReceiverStatsSize, nil
}

// DNSResponseLRUEntrySize is the size of DNSResponseLRUEntry
const DNSResponseLRUEntrySize = 16

// DNSResponseLRUEntry remembers a response already sent to user space
type DNSResponseLRUEntry struct {
	Timestamp  uint64
	PacketSize uint64
}

// MarshalBinary returns the binary representation of the entry
func (e *DNSResponseLRUEntry) MarshalBinary() ([]byte, error) {
	data := make([]byte, DNSResponseLRUEntrySize)
	ByteOrder.PutUint64(data[0:8], e.Timestamp)
	ByteOrder.PutUint64(data[8:16], e.PacketSize)
	return data, nil
}

// UnmarshalBinary unmarshalls a binary representation of itself
func (e *DNSResponseLRUEntry) UnmarshalBinary(data []byte) (int, error) {
	if len(data) < DNSResponseLRUEntrySize {
		return 0, ErrNotEnoughData
	}
	e.Timestamp = ByteOrder.Uint64(data[0:8])
	e.PacketSize = ByteOrder.Uint64(data[8:16])
	return DNSResponseLRUEntrySize, nil
}

// DNSQuestion is the first question of a DNS packet
type DNSQuestion struct {
	Name  string
	Type  uint16
	Class uint16
	Size  uint16
}

// DecodeDNSQuestion decodes the header and the first question of a DNS packet
func DecodeDNSQuestion(packet []byte) (DNSHeader, DNSQuestion, error) {
	var (
		header   DNSHeader
		question DNSQuestion
	)

	if _, err := header.UnmarshalBinary(packet); err != nil {
		return header, question, err
	}
	if header.QDCount == 0 {
		return header, question, nil
	}

	raw := packet[DNSHeaderSize:]
	name, offset, err := decodeDNSName(raw)
	if err != nil {
		return header, question, err
	}
	question.Name = name

	if len(raw) < offset+4 {
		return header, question, ErrDNSNameOutOfBounds
	}
	question.Type = binary.BigEndian.Uint16(raw[offset : offset+2])
	question.Class = binary.BigEndian.Uint16(raw[offset+2 : offset+4])
	question.Size = uint16(len(packet))

	return header, question, nil
}
