// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package probe

import (
	"fmt"
	"os"
	"path"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DataDog/cws-rename-probe/pkg/security/probe/kfilters"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/syscallcache"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/seclog"
)

// invalidateRename expires the discarders of the renamed inode. A directory
// rename changes the path of every child, the whole mount is invalidated.
func (p *Probe) invalidateRename(record *syscallcache.SyscallCache, retval int64) {
	target := record.Rename.TargetFile.PathKey

	// the source dentry may have been given a new inode, by a copy up for instance
	if src := record.Rename.SrcDentry; src != nil && retval >= 0 {
		if inode := src.Ino(); inode != 0 && inode != target.Inode {
			p.discarders.ExpireInodeDiscarders(target.MountID, inode)
		}
	}

	if retval < 0 {
		return
	}

	p.discarders.ExpireInodeDiscarders(target.MountID, target.Inode)

	if record.Rename.TargetFile.IsDir() {
		revision := p.discarders.BumpMountRevision(target.MountID)
		purged := p.resolvers.DentryResolver.DelCacheEntries(target.MountID)
		seclog.Tracef("mount %d revision bumped to %d, %d cached paths dropped", target.MountID, revision, purged)
	}
}

// getParent returns the ancestor of a path at the given depth
func getParent(filename string, depth int) string {
	for i := 0; i < depth; i++ {
		filename = path.Dir(filename)
	}
	return filename
}

// DiscardPath adds a discarder on the inode of a path of the attached
// filesystem. With a depth, the discarder is set on the ancestor of the path
// at that depth and applies to its children.
func (p *Probe) DiscardPath(eventType model.EventType, filename string, depth int) error {
	if p.fs == nil {
		return ErrNotAttached
	}

	filename = getParent(filename, depth)
	d, err := p.fs.Lookup(filename)
	if err != nil {
		return fmt.Errorf("failed to discard `%s`: %w", filename, err)
	}

	return p.discarders.DiscardInode(eventType, d.Mount().ID, d.Ino(), depth == 0)
}

// InodeDiscarderDump describes a dumped discarder and its path when known
type InodeDiscarderDump struct {
	kfilters.InodeDiscarderDump `yaml:",inline"`
	Path                        string `yaml:"path,omitempty"`
}

// DiscardersDump describes a dump of the discarders
type DiscardersDump struct {
	Date      time.Time               `yaml:"date"`
	Inodes    []InodeDiscarderDump    `yaml:"inodes"`
	Revisions map[uint32]uint32       `yaml:"mount_revisions"`
	Stats     kfilters.DiscarderStats `yaml:"stats"`
}

// DumpDiscarders returns a snapshot of the discarders, with the paths that can still be resolved
func (p *Probe) DumpDiscarders() DiscardersDump {
	raw := p.discarders.Dump()

	dump := DiscardersDump{
		Date:      raw.Date,
		Revisions: raw.Revisions,
		Stats:     raw.Stats,
	}
	for _, entry := range raw.Inodes {
		key := model.PathKey{Inode: entry.Inode, MountID: entry.MountID, PathID: p.pathIDs.current(entry.MountID)}
		resolved, _ := p.resolvers.DentryResolver.Resolve(key)
		dump.Inodes = append(dump.Inodes, InodeDiscarderDump{InodeDiscarderDump: entry, Path: resolved})
	}

	return dump
}

// DumpDiscardersToFile writes the discarders dump to a temporary YAML file and returns its path
func (p *Probe) DumpDiscardersToFile() (string, error) {
	fp, err := os.CreateTemp("", "discarder-dump-")
	if err != nil {
		return "", err
	}
	defer fp.Close()

	if err := os.Chmod(fp.Name(), 0400); err != nil {
		return "", err
	}

	encoder := yaml.NewEncoder(fp)
	defer encoder.Close()

	if err := encoder.Encode(p.DumpDiscarders()); err != nil {
		return "", err
	}
	seclog.Infof("Discarder dump file: %s", fp.Name())

	return fp.Name(), nil
}
