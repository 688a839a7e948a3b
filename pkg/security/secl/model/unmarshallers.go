// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package model

const (
	// ProcessContextSize size of the binary representation of ProcessContext
	ProcessContextSize = 24 + TaskCommLen
	// ContainerContextSize size of the binary representation of ContainerContext
	ContainerContextSize = ContainerIDLen
	// SpanContextSize size of the binary representation of SpanContext
	SpanContextSize = 24
	// RenameEventSize size of the binary representation of a rename event
	RenameEventSize = 24 + 2*FileFieldsSize + ProcessContextSize + ContainerContextSize + SpanContextSize
)

// UnmarshalBinary unmarshalls a binary representation of itself
func (p *PathKey) UnmarshalBinary(data []byte) (int, error) {
	if len(data) < PathKeySize {
		return 0, ErrNotEnoughData
	}
	p.Inode = ByteOrder.Uint64(data[0:8])
	p.MountID = ByteOrder.Uint32(data[8:12])
	p.PathID = ByteOrder.Uint32(data[12:16])
	return PathKeySize, nil
}

// MarshalBinaryTo writes the binary representation of itself into data
func (f *FileFields) MarshalBinaryTo(data []byte) (int, error) {
	if len(data) < FileFieldsSize {
		return 0, ErrNotEnoughSpace
	}
	f.PathKey.Write(data)
	ByteOrder.PutUint32(data[16:20], f.Device)
	ByteOrder.PutUint32(data[20:24], uint32(f.Flags))
	ByteOrder.PutUint32(data[24:28], f.UID)
	ByteOrder.PutUint32(data[28:32], f.GID)
	ByteOrder.PutUint32(data[32:36], f.NLink)
	ByteOrder.PutUint16(data[36:38], f.Mode)
	ByteOrder.PutUint16(data[38:40], 0)
	ByteOrder.PutUint64(data[40:48], f.CTime)
	ByteOrder.PutUint64(data[48:56], f.MTime)
	return FileFieldsSize, nil
}

// UnmarshalBinary unmarshalls a binary representation of itself
func (f *FileFields) UnmarshalBinary(data []byte) (int, error) {
	if len(data) < FileFieldsSize {
		return 0, ErrNotEnoughData
	}
	if _, err := f.PathKey.UnmarshalBinary(data); err != nil {
		return 0, err
	}
	f.Device = ByteOrder.Uint32(data[16:20])
	f.Flags = int32(ByteOrder.Uint32(data[20:24]))
	f.UID = ByteOrder.Uint32(data[24:28])
	f.GID = ByteOrder.Uint32(data[28:32])
	f.NLink = ByteOrder.Uint32(data[32:36])
	f.Mode = ByteOrder.Uint16(data[36:38])
	f.CTime = ByteOrder.Uint64(data[40:48])
	f.MTime = ByteOrder.Uint64(data[48:56])
	return FileFieldsSize, nil
}

// MarshalBinaryTo writes the binary representation of itself into data
func (p *ProcessContext) MarshalBinaryTo(data []byte) (int, error) {
	if len(data) < ProcessContextSize {
		return 0, ErrNotEnoughSpace
	}
	ByteOrder.PutUint32(data[0:4], p.Pid)
	ByteOrder.PutUint32(data[4:8], p.Tid)
	ByteOrder.PutUint32(data[8:12], p.PPid)
	ByteOrder.PutUint32(data[12:16], p.UID)
	ByteOrder.PutUint32(data[16:20], p.GID)
	ByteOrder.PutUint32(data[20:24], 0)
	writeFixedString(data[24:24+TaskCommLen], p.Comm)
	return ProcessContextSize, nil
}

// UnmarshalBinary unmarshalls a binary representation of itself
func (p *ProcessContext) UnmarshalBinary(data []byte) (int, error) {
	if len(data) < ProcessContextSize {
		return 0, ErrNotEnoughData
	}
	p.Pid = ByteOrder.Uint32(data[0:4])
	p.Tid = ByteOrder.Uint32(data[4:8])
	p.PPid = ByteOrder.Uint32(data[8:12])
	p.UID = ByteOrder.Uint32(data[12:16])
	p.GID = ByteOrder.Uint32(data[16:20])
	p.Comm = NullTerminatedString(data[24 : 24+TaskCommLen])
	return ProcessContextSize, nil
}

// MarshalBinaryTo writes the binary representation of itself into data
func (c *ContainerContext) MarshalBinaryTo(data []byte) (int, error) {
	if len(data) < ContainerContextSize {
		return 0, ErrNotEnoughSpace
	}
	writeFixedString(data[:ContainerIDLen], c.ID)
	return ContainerContextSize, nil
}

// UnmarshalBinary unmarshalls a binary representation of itself
func (c *ContainerContext) UnmarshalBinary(data []byte) (int, error) {
	if len(data) < ContainerContextSize {
		return 0, ErrNotEnoughData
	}
	c.ID = NullTerminatedString(data[:ContainerIDLen])
	return ContainerContextSize, nil
}

// MarshalBinaryTo writes the binary representation of itself into data
func (s *SpanContext) MarshalBinaryTo(data []byte) (int, error) {
	if len(data) < SpanContextSize {
		return 0, ErrNotEnoughSpace
	}
	ByteOrder.PutUint64(data[0:8], s.SpanID)
	ByteOrder.PutUint64(data[8:16], s.TraceIDHi)
	ByteOrder.PutUint64(data[16:24], s.TraceIDLo)
	return SpanContextSize, nil
}

// UnmarshalBinary unmarshalls a binary representation of itself
func (s *SpanContext) UnmarshalBinary(data []byte) (int, error) {
	if len(data) < SpanContextSize {
		return 0, ErrNotEnoughData
	}
	s.SpanID = ByteOrder.Uint64(data[0:8])
	s.TraceIDHi = ByteOrder.Uint64(data[8:16])
	s.TraceIDLo = ByteOrder.Uint64(data[16:24])
	return SpanContextSize, nil
}

// MarshalBinary returns the binary representation of a rename event
//
//	retval i64 | ctx_id u64 | flags u32 | type u32 | old | new | process | container | span
func (ev *Event) MarshalBinary() ([]byte, error) {
	data := make([]byte, RenameEventSize)

	ByteOrder.PutUint64(data[0:8], uint64(ev.Rename.Retval))
	ByteOrder.PutUint64(data[8:16], ev.Rename.SyscallContext.ID)
	ByteOrder.PutUint32(data[16:20], uint32(ev.Flags))
	ByteOrder.PutUint32(data[20:24], uint32(ev.Type))

	cursor := 24
	for _, m := range []interface {
		MarshalBinaryTo([]byte) (int, error)
	}{&ev.Rename.Old.FileFields, &ev.Rename.New.FileFields, &ev.ProcessContext, &ev.ContainerContext, &ev.SpanContext} {
		n, err := m.MarshalBinaryTo(data[cursor:])
		if err != nil {
			return nil, err
		}
		cursor += n
	}

	return data, nil
}

// UnmarshalBinary unmarshalls a binary representation of a rename event
func (ev *Event) UnmarshalBinary(data []byte) (int, error) {
	if len(data) < RenameEventSize {
		return 0, ErrNotEnoughData
	}

	ev.Rename.Retval = int64(ByteOrder.Uint64(data[0:8]))
	ev.Rename.SyscallContext.ID = ByteOrder.Uint64(data[8:16])
	ev.Flags = EventFlags(ByteOrder.Uint32(data[16:20]))
	ev.Type = EventType(ByteOrder.Uint32(data[20:24]))

	cursor := 24
	for _, u := range []interface {
		UnmarshalBinary([]byte) (int, error)
	}{&ev.Rename.Old.FileFields, &ev.Rename.New.FileFields, &ev.ProcessContext, &ev.ContainerContext, &ev.SpanContext} {
		n, err := u.UnmarshalBinary(data[cursor:])
		if err != nil {
			return 0, err
		}
		cursor += n
	}

	return cursor, nil
}

func writeFixedString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	// keep the trailing NUL
	copy(dst[:len(dst)-1], s)
}
