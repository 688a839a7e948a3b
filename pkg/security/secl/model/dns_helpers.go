// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package model

import (
	"errors"
	"strings"
)

const (
	// DNSMaxNameLength is the maximum length of an encoded name, length octets included
	DNSMaxNameLength = 255
	// DNSMaxLabelLength is the maximum length of a label
	DNSMaxLabelLength = 63

	dnsPointerMask = 0xC0
)

var (
	// ErrDNSNamePointerNotSupported reported because pointer compression is not supported
	ErrDNSNamePointerNotSupported = errors.New("dns name pointer compression is not supported")
	// ErrDNSNameOutOfBounds reported because name out of bound
	ErrDNSNameOutOfBounds = errors.New("dns name out of bound")
	// ErrDNSNameNonPrintableASCII reported because name non-printable ascii
	ErrDNSNameNonPrintableASCII = errors.New("dns name non-printable ascii")
	// ErrDNSLabelTooLong reported because a label uses the reserved length bits
	ErrDNSLabelTooLong = errors.New("dns label too long")
	// ErrDNSNameTooLong reported because the encoded name is longer than DNSMaxNameLength
	ErrDNSNameTooLong = errors.New("dns name too long")
)

// decodeDNSName decodes an uncompressed name and returns it along with the
// number of octets it spans, root label included.
func decodeDNSName(raw []byte) (string, int, error) {
	var (
		labels []string
		offset int
	)

	for {
		if offset >= len(raw) {
			return strings.Join(labels, "."), offset, ErrDNSNameOutOfBounds
		}
		if offset >= DNSMaxNameLength {
			return strings.Join(labels, "."), offset, ErrDNSNameTooLong
		}

		size := int(raw[offset])
		offset++

		switch {
		case size == 0:
			return strings.Join(labels, "."), offset, nil
		case size&dnsPointerMask == dnsPointerMask:
			return strings.Join(labels, "."), offset, ErrDNSNamePointerNotSupported
		case size > DNSMaxLabelLength:
			return strings.Join(labels, "."), offset, ErrDNSLabelTooLong
		case offset+size > len(raw):
			return strings.Join(labels, "."), offset, ErrDNSNameOutOfBounds
		}

		label := raw[offset : offset+size]
		for _, c := range label {
			if c < ' ' || '~' < c {
				return strings.Join(labels, "."), offset, ErrDNSNameNonPrintableASCII
			}
		}
		labels = append(labels, string(label))
		offset += size
	}
}
