// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package module

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/miekg/dns"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/seclog"
	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
	"github.com/DataDog/cws-rename-probe/pkg/util/kernel"
)

var renameFlagNames = map[string]uint32{
	"noreplace": vfs.RenameNoReplace,
	"exchange":  vfs.RenameExchange,
	"whiteout":  vfs.RenameWhiteout,
}

// TaskDefinition describes the task issuing the operations
type TaskDefinition struct {
	Pid    uint32 `yaml:"pid"`
	Tid    uint32 `yaml:"tid"`
	PPid   uint32 `yaml:"ppid"`
	UID    uint32 `yaml:"uid"`
	GID    uint32 `yaml:"gid"`
	Comm   string `yaml:"comm"`
	Cgroup string `yaml:"cgroup"`
}

func (t *TaskDefinition) task() *vfs.Task {
	tid := t.Tid
	if tid == 0 {
		tid = t.Pid
	}
	return &vfs.Task{Pid: t.Pid, Tid: tid, PPid: t.PPid, UID: t.UID, GID: t.GID, Comm: t.Comm, Cgroup: t.Cgroup}
}

// FileStep creates a file
type FileStep struct {
	Path string `yaml:"path"`
	Mode uint16 `yaml:"mode"`
	UID  uint32 `yaml:"uid"`
	GID  uint32 `yaml:"gid"`
}

// MountStep mounts a filesystem on an empty directory
type MountStep struct {
	Path   string `yaml:"path"`
	FSType string `yaml:"fs_type"`
}

// RenameStep renames a path
type RenameStep struct {
	Old string `yaml:"old"`
	New string `yaml:"new"`
	// Syscall is one of rename, renameat, renameat2 or kernel
	Syscall string          `yaml:"syscall"`
	Flags   []string        `yaml:"flags"`
	Task    *TaskDefinition `yaml:"task"`
}

// DiscardStep adds a discarder on a path, or on its ancestor at the given depth
type DiscardStep struct {
	Path  string `yaml:"path"`
	Depth int    `yaml:"depth"`
}

// FaultStep makes the next rename of a path fail
type FaultStep struct {
	Path  string `yaml:"path"`
	Errno string `yaml:"errno"`
}

// SpanStep sets the active span of a thread
type SpanStep struct {
	Tid     uint32 `yaml:"tid"`
	SpanID  uint64 `yaml:"span_id"`
	TraceID uint64 `yaml:"trace_id"`
}

// DNSStep submits a DNS packet to the response deduplicator
type DNSStep struct {
	ID       uint16 `yaml:"id"`
	Name     string `yaml:"name"`
	Response bool   `yaml:"response"`
	Answers  int    `yaml:"answers"`
}

// Step is a scenario step, exactly one of its fields is set
type Step struct {
	Mkdir   string       `yaml:"mkdir,omitempty"`
	Write   *FileStep    `yaml:"write,omitempty"`
	Remove  string       `yaml:"remove,omitempty"`
	Mount   *MountStep   `yaml:"mount,omitempty"`
	Rename  *RenameStep  `yaml:"rename,omitempty"`
	Discard *DiscardStep `yaml:"discard,omitempty"`
	Fault   *FaultStep   `yaml:"fault,omitempty"`
	Span    *SpanStep    `yaml:"span,omitempty"`
	DNS     *DNSStep     `yaml:"dns,omitempty"`
}

func (s *Step) kind() (string, error) {
	var kinds []string
	for name, set := range map[string]bool{
		"mkdir":   s.Mkdir != "",
		"write":   s.Write != nil,
		"remove":  s.Remove != "",
		"mount":   s.Mount != nil,
		"rename":  s.Rename != nil,
		"discard": s.Discard != nil,
		"fault":   s.Fault != nil,
		"span":    s.Span != nil,
		"dns":     s.DNS != nil,
	} {
		if set {
			kinds = append(kinds, name)
		}
	}
	if len(kinds) != 1 {
		return "", fmt.Errorf("a step must define exactly one operation, got %d", len(kinds))
	}
	return kinds[0], nil
}

// Scenario describes a sequence of filesystem operations observed by the probe
type Scenario struct {
	KernelVersion     string         `yaml:"kernel_version"`
	RootFSType        string         `yaml:"root_fs_type"`
	RenameDataOffsets []uint64       `yaml:"rename_data_offsets"`
	Task              TaskDefinition `yaml:"task"`
	Steps             []Step         `yaml:"steps"`
}

// LoadScenario reads a scenario file
func LoadScenario(filename string) (*Scenario, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open scenario `%s`", filename)
	}
	defer f.Close()

	return ParseScenario(f)
}

// ParseScenario decodes and validates a scenario
func ParseScenario(r io.Reader) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.NewDecoder(r).Decode(&scenario); err != nil {
		return nil, errors.Wrap(err, "failed to decode scenario")
	}

	var result *multierror.Error
	if scenario.KernelVersion != "" {
		if _, err := kernel.ParseReleaseString(scenario.KernelVersion); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "invalid kernel version `%s`", scenario.KernelVersion))
		}
	}
	if n := len(scenario.RenameDataOffsets); n != 0 && n != 2 {
		result = multierror.Append(result, errors.Errorf("rename_data_offsets expects 2 offsets, got %d", n))
	}
	for i := range scenario.Steps {
		if _, err := scenario.Steps[i].kind(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "step %d", i))
		}
	}

	return &scenario, result.ErrorOrNil()
}

// FSOptions returns the filesystem options of the scenario
func (s *Scenario) FSOptions() vfs.Options {
	var opts vfs.Options
	if s.KernelVersion != "" {
		opts.KernelVersion, _ = kernel.ParseReleaseString(s.KernelVersion)
	}
	opts.RootFSType = s.RootFSType
	if len(s.RenameDataOffsets) == 2 {
		opts.RenameDataOffsets = &[2]uint64{s.RenameDataOffsets[0], s.RenameDataOffsets[1]}
	}
	return opts
}

// ReplayReport sums up a replay
type ReplayReport struct {
	Steps        int            `json:"steps"`
	Renames      int            `json:"renames"`
	Failures     map[string]int `json:"failures,omitempty"`
	Events       uint64         `json:"events"`
	DNSForwarded int            `json:"dns_forwarded"`
	DNSFiltered  int            `json:"dns_filtered"`
}

// Replay runs the steps of a scenario, the events are flushed after each step
func (m *Module) Replay(scenario *Scenario) (*ReplayReport, error) {
	report := &ReplayReport{Failures: make(map[string]int)}
	defaultTask := scenario.Task.task()

	for i := range scenario.Steps {
		if err := m.replayStep(&scenario.Steps[i], defaultTask, report); err != nil {
			return report, errors.Wrapf(err, "step %d", i)
		}
		report.Steps++

		if err := m.Flush(); err != nil {
			return report, err
		}
	}

	report.Events = m.eventsSent.Load()
	return report, nil
}

func parseRenameFlags(names []string) (uint32, error) {
	var flags uint32
	for _, name := range names {
		flag, ok := renameFlagNames[strings.ToLower(name)]
		if !ok {
			return 0, errors.Errorf("unknown rename flag `%s`", name)
		}
		flags |= flag
	}
	return flags, nil
}

func (m *Module) rename(step *RenameStep, task *vfs.Task) (int64, error) {
	flags, err := parseRenameFlags(step.Flags)
	if err != nil {
		return 0, err
	}

	switch step.Syscall {
	case "", "rename":
		if flags != 0 {
			return 0, errors.New("rename doesn't take flags")
		}
		return m.fs.Rename(task, step.Old, step.New), nil
	case "renameat":
		if flags != 0 {
			return 0, errors.New("renameat doesn't take flags")
		}
		return m.fs.Renameat(task, vfs.AtFDCWD, step.Old, vfs.AtFDCWD, step.New), nil
	case "renameat2":
		return m.fs.Renameat2(task, vfs.AtFDCWD, step.Old, vfs.AtFDCWD, step.New, flags), nil
	case "kernel":
		return m.fs.KernelRename(task, step.Old, step.New, flags), nil
	default:
		return 0, errors.Errorf("unknown syscall `%s`", step.Syscall)
	}
}

func newDNSPacket(step *DNSStep) ([]byte, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(step.Name), dns.TypeA)
	msg.Id = step.ID
	msg.Response = step.Response

	for i := 0; i < step.Answers; i++ {
		rr, err := dns.NewRR(fmt.Sprintf("%s 60 IN A 10.0.0.%d", dns.Fqdn(step.Name), i%255+1))
		if err != nil {
			return nil, err
		}
		msg.Answer = append(msg.Answer, rr)
	}

	return msg.Pack()
}

func (m *Module) replayStep(step *Step, defaultTask *vfs.Task, report *ReplayReport) error {
	switch {
	case step.Mkdir != "":
		return m.fs.MkdirAll(step.Mkdir, 0o755)
	case step.Write != nil:
		mode := step.Write.Mode
		if mode == 0 {
			mode = 0o644
		}
		return m.fs.WriteFile(step.Write.Path, mode, step.Write.UID, step.Write.GID)
	case step.Remove != "":
		return m.fs.Remove(step.Remove)
	case step.Mount != nil:
		_, err := m.fs.MountFS(step.Mount.Path, step.Mount.FSType)
		return err
	case step.Rename != nil:
		task := defaultTask
		if step.Rename.Task != nil {
			task = step.Rename.Task.task()
		}
		ret, err := m.rename(step.Rename, task)
		if err != nil {
			return err
		}
		report.Renames++
		if ret < 0 {
			report.Failures[model.RetValString(ret)]++
		}
		seclog.Debugf("%s %s -> %s: %s", step.Rename.Syscall, step.Rename.Old, step.Rename.New, model.RetValString(ret))
		return nil
	case step.Discard != nil:
		return m.probe.DiscardPath(model.FileRenameEventType, step.Discard.Path, step.Discard.Depth)
	case step.Fault != nil:
		value, ok := model.ErrorConstant(strings.ToUpper(step.Fault.Errno))
		if !ok {
			return errors.Errorf("unknown errno `%s`", step.Fault.Errno)
		}
		return m.fs.InjectFault(step.Fault.Path, unix.Errno(-value))
	case step.Span != nil:
		tid := step.Span.Tid
		if tid == 0 {
			tid = defaultTask.Tid
		}
		m.probe.GetResolvers().SpanResolver.Register(tid, model.SpanContext{SpanID: step.Span.SpanID, TraceIDLo: step.Span.TraceID})
		return nil
	case step.DNS != nil:
		packet, err := newDNSPacket(step.DNS)
		if err != nil {
			return errors.Wrap(err, "failed to build DNS packet")
		}
		forward, err := m.probe.GetResolvers().DNSDeduplicator.ShouldForward(packet)
		if err != nil {
			return err
		}
		if forward {
			report.DNSForwarded++
		} else {
			report.DNSFiltered++
		}
		return nil
	}
	return errors.New("empty step")
}
