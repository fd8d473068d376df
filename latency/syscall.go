// Package latency measures system call durations from kernel traces: it
// pairs syscall entry and exit events per thread into intervals, persists
// them, and summarises their durations.
package latency

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/INLOpen/nexustrace/core"
)

// SystemCall is the payload of one system call interval.
type SystemCall struct {
	Name string
	Args map[string]string
	Ret  int64
}

func (s SystemCall) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('(')
	for i, k := range slices.Sorted(maps.Keys(s.Args)) {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", k, s.Args[k])
	}
	fmt.Fprintf(&b, ") = %d", s.Ret)
	return b.String()
}

// maxArgs bounds the argument count accepted when decoding.
const maxArgs = 1 << 12

// Codec persists SystemCall payloads. Arguments are written in name order,
// so equal payloads encode to identical bytes.
type Codec struct{}

func (Codec) Encode(buf *bytes.Buffer, sc SystemCall) error {
	core.WriteString(buf, sc.Name)
	core.WriteVarint(buf, sc.Ret)
	core.WriteUvarint(buf, uint64(len(sc.Args)))
	for _, k := range slices.Sorted(maps.Keys(sc.Args)) {
		core.WriteString(buf, k)
		core.WriteString(buf, sc.Args[k])
	}
	return nil
}

func (Codec) Decode(r *bytes.Reader) (SystemCall, error) {
	var sc SystemCall
	var err error
	if sc.Name, err = core.ReadString(r); err != nil {
		return sc, fmt.Errorf("failed to read syscall name: %w", err)
	}
	if sc.Ret, err = binary.ReadVarint(r); err != nil {
		return sc, fmt.Errorf("failed to read syscall return value: %w", err)
	}
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return sc, fmt.Errorf("failed to read argument count: %w", err)
	}
	if n > maxArgs {
		return sc, fmt.Errorf("argument count %d exceeds limit %d", n, maxArgs)
	}
	if n > 0 {
		sc.Args = make(map[string]string, n)
	}
	for i := uint64(0); i < n; i++ {
		k, err := core.ReadString(r)
		if err != nil {
			return sc, fmt.Errorf("failed to read argument %d name: %w", i, err)
		}
		v, err := core.ReadString(r)
		if err != nil {
			return sc, fmt.Errorf("failed to read argument %s: %w", k, err)
		}
		sc.Args[k] = v
	}
	return sc, nil
}
