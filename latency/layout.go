package latency

import (
	"strings"

	"github.com/INLOpen/nexustrace/core"
)

// Layout names the kernel trace events and fields the analysis reads.
type Layout struct {
	SyscallEntryPrefix       string
	CompatSyscallEntryPrefix string
	SyscallExitPrefix        string
	TidField                 string
	RetField                 string
}

// DefaultLayout returns the LTTng 2.6+ kernel event layout.
func DefaultLayout() Layout {
	return Layout{
		SyscallEntryPrefix:       "syscall_entry_",
		CompatSyscallEntryPrefix: "compat_syscall_entry_",
		SyscallExitPrefix:        "syscall_exit_",
		TidField:                 "tid",
		RetField:                 "ret",
	}
}

// Validate checks that every name is set.
func (l Layout) Validate() error {
	for field, v := range map[string]string{
		"syscall_entry_prefix":        l.SyscallEntryPrefix,
		"compat_syscall_entry_prefix": l.CompatSyscallEntryPrefix,
		"syscall_exit_prefix":         l.SyscallExitPrefix,
		"tid_field":                   l.TidField,
		"ret_field":                   l.RetField,
	} {
		if strings.TrimSpace(v) == "" {
			return &core.ValidationError{Message: "must not be empty", Field: field}
		}
	}
	return nil
}

// entryName returns the syscall name of an entry event. The longer compat
// prefix is tried first so that neither prefix shadows the other.
func (l Layout) entryName(event string) (string, bool) {
	prefixes := []string{l.CompatSyscallEntryPrefix, l.SyscallEntryPrefix}
	if len(l.SyscallEntryPrefix) > len(l.CompatSyscallEntryPrefix) {
		prefixes[0], prefixes[1] = prefixes[1], prefixes[0]
	}
	for _, p := range prefixes {
		if name, ok := strings.CutPrefix(event, p); ok {
			return name, true
		}
	}
	return "", false
}

func (l Layout) isExit(event string) bool {
	return strings.HasPrefix(event, l.SyscallExitPrefix)
}
