// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package vfs implements an in-memory filesystem firing the rename probes in
// the order a linux kernel does: syscall entry, do_renameat2 entry, vfs_rename,
// the namespace mutation, do_renameat2 return and syscall exit
package vfs

import (
	"path"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"golang.org/x/sys/unix"

	"github.com/DataDog/cws-rename-probe/pkg/util/kernel"
)

const (
	sIFMT  = unix.S_IFMT
	sIFDIR = unix.S_IFDIR
	sIFREG = unix.S_IFREG

	// AtFDCWD is the only directory file descriptor supported
	AtFDCWD = unix.AT_FDCWD

	rootIno     = 2
	rootMountID = 1
)

// Options of the filesystem
type Options struct {
	// KernelVersion selects the vfs_rename calling convention
	KernelVersion kernel.Version
	// RenameDataOffsets overrides the offsets of old_dentry and new_dentry in struct renamedata
	RenameDataOffsets *[2]uint64
	// RootFSType filesystem type of the root mount
	RootFSType string
	// Clock used for the inode timestamps
	Clock clock.Clock
}

// FS is an in-memory filesystem
type FS struct {
	mu       sync.RWMutex
	renameMu sync.Mutex

	opts        Options
	root        *dentry
	mounts      map[uint32]*Mount
	nextMountID uint32
	nextIno     uint64
	freeInos    []uint64
	faults      map[*dentry]unix.Errno
	hooks       RenameHooks
}

// New returns a new filesystem holding only its root directory
func New(opts Options) *FS {
	if opts.KernelVersion == 0 {
		opts.KernelVersion = kernel.VersionCode(5, 15, 0)
	}
	if opts.RootFSType == "" {
		opts.RootFSType = "ext4"
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	fs := &FS{
		opts:        opts,
		mounts:      make(map[uint32]*Mount),
		nextMountID: rootMountID,
		nextIno:     rootIno,
		faults:      make(map[*dentry]unix.Errno),
	}

	mount := fs.newMount(opts.RootFSType)
	fs.root = &dentry{
		fs:       fs,
		name:     "/",
		inode:    fs.newInode(sIFDIR|0o755, 0, 0),
		mount:    mount,
		children: make(map[string]*dentry),
	}
	fs.root.parent = fs.root
	mount.root = fs.root

	return fs
}

// Attach attaches the rename probes
func (fs *FS) Attach(hooks RenameHooks) {
	fs.mu.Lock()
	fs.hooks = hooks
	fs.mu.Unlock()
}

func (fs *FS) getHooks() RenameHooks {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.hooks
}

// KernelVersion returns the version of the simulated kernel
func (fs *FS) KernelVersion() kernel.Version {
	return fs.opts.KernelVersion
}

func (fs *FS) newMount(fsType string) *Mount {
	m := &Mount{
		ID:     fs.nextMountID,
		FSType: fsType,
		Device: fs.nextMountID << 8,
	}
	fs.mounts[m.ID] = m
	fs.nextMountID++
	return m
}

func (fs *FS) newInode(mode uint16, uid, gid uint32) *inode {
	var ino uint64
	if n := len(fs.freeInos); n > 0 {
		ino, fs.freeInos = fs.freeInos[n-1], fs.freeInos[:n-1]
	} else {
		ino = fs.nextIno
		fs.nextIno++
	}

	now := uint64(fs.opts.Clock.Now().UnixNano())
	nlink := uint32(1)
	if mode&sIFMT == sIFDIR {
		nlink = 2
	}
	return &inode{Stat: Stat{Ino: ino, Mode: mode, UID: uid, GID: gid, NLink: nlink, CTime: now, MTime: now}}
}

func (fs *FS) releaseInode(i *inode) {
	if i.NLink > 0 {
		i.NLink--
	}
	if i.NLink == 0 || i.Mode&sIFMT == sIFDIR {
		i.NLink = 0
		fs.freeInos = append(fs.freeInos, i.Ino)
	}
}

func splitPath(p string) []string {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}

// lookup must be called with mu held
func (fs *FS) lookup(p string) (*dentry, error) {
	d := fs.root
	for _, name := range splitPath(p) {
		if !d.isDir() {
			return nil, unix.ENOTDIR
		}
		child, ok := d.children[name]
		if !ok {
			return nil, unix.ENOENT
		}
		d = child
	}
	return d, nil
}

// lookupParent must be called with mu held
func (fs *FS) lookupParent(p string) (*dentry, string, error) {
	parts := splitPath(p)
	if len(parts) == 0 {
		return nil, "", unix.EBUSY
	}
	name := parts[len(parts)-1]
	if len(name) > 255 {
		return nil, "", unix.ENAMETOOLONG
	}

	parent, err := fs.lookup(strings.Join(parts[:len(parts)-1], "/"))
	if err != nil {
		return nil, "", err
	}
	if !parent.isDir() {
		return nil, "", unix.ENOTDIR
	}
	return parent, name, nil
}

func (fs *FS) create(p string, mode uint16, uid, gid uint32, exclusive bool) (*dentry, error) {
	parent, name, err := fs.lookupParent(p)
	if err != nil {
		return nil, err
	}
	if existing, ok := parent.children[name]; ok {
		if exclusive || existing.inode.Mode&sIFMT != mode&sIFMT {
			return nil, unix.EEXIST
		}
		return existing, nil
	}

	d := &dentry{
		fs:     fs,
		name:   name,
		parent: parent,
		inode:  fs.newInode(mode, uid, gid),
		mount:  parent.mount,
	}
	if d.isDir() {
		d.children = make(map[string]*dentry)
		parent.inode.NLink++
	}
	parent.children[name] = d
	return d, nil
}

// Mkdir creates a directory
func (fs *FS) Mkdir(p string, perm uint16) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, err := fs.create(p, sIFDIR|perm&0o7777, 0, 0, true)
	return err
}

// MkdirAll creates a directory and its missing parents
func (fs *FS) MkdirAll(p string, perm uint16) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	current := ""
	for _, name := range splitPath(p) {
		current += "/" + name
		if _, err := fs.create(current, sIFDIR|perm&0o7777, 0, 0, false); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile creates a regular file when it doesn't exist and updates its mtime
func (fs *FS) WriteFile(p string, perm uint16, uid, gid uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	d, err := fs.create(p, sIFREG|perm&0o7777, uid, gid, false)
	if err != nil {
		return err
	}
	d.inode.MTime = uint64(fs.opts.Clock.Now().UnixNano())
	return nil
}

// Remove unlinks a file or an empty directory, its inode number can be reused
func (fs *FS) Remove(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, err := fs.lookupParent(p)
	if err != nil {
		return err
	}
	d, ok := parent.children[name]
	if !ok {
		return unix.ENOENT
	}
	if d.isDir() {
		if len(d.children) > 0 {
			return unix.ENOTEMPTY
		}
		parent.inode.NLink--
	}
	delete(parent.children, name)
	fs.releaseInode(d.inode)
	return nil
}

// MountFS mounts a new filesystem of the given type on an existing empty directory
func (fs *FS) MountFS(p string, fsType string) (*Mount, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	d, err := fs.lookup(p)
	if err != nil {
		return nil, err
	}
	if !d.isDir() {
		return nil, unix.ENOTDIR
	}
	if len(d.children) > 0 || d == fs.root {
		return nil, unix.EBUSY
	}

	m := fs.newMount(fsType)
	m.root = d
	d.mount = m
	return m, nil
}

// Lookup returns the entry of a path
func (fs *FS) Lookup(p string) (Dentry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	d, err := fs.lookup(p)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Stat returns the attributes of a path
func (fs *FS) Stat(p string) (Stat, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	d, err := fs.lookup(p)
	if err != nil {
		return Stat{}, err
	}
	return d.inode.Stat, nil
}

// Mount returns the mount of a path
func (fs *FS) Mount(p string) (*Mount, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	d, err := fs.lookup(p)
	if err != nil {
		return nil, err
	}
	return d.mount, nil
}

// InjectFault makes the next rename of the given source fail inside vfs_rename
func (fs *FS) InjectFault(p string, errno unix.Errno) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	d, err := fs.lookup(p)
	if err != nil {
		return err
	}
	fs.faults[d] = errno
	return nil
}
