package storage

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/ganttforge/ganttforge/pkg/plan"
)

// Fingerprint computes a stable identifier for a solve instance. Two calls
// with semantically equal graphs, the same capacity, and the same seed always
// produce the same value, independent of map iteration order.
func Fingerprint(g *plan.Graph, capacity int, seed int64) string {
	d := xxhash.New()

	writeInt := func(v int64) {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		_, _ = d.Write(buf[:])
	}
	writeStr := func(s string) {
		writeInt(int64(len(s)))
		_, _ = d.WriteString(s)
	}

	writeInt(int64(capacity))
	writeInt(seed)
	if g.AllowsNegativeLag() {
		writeInt(1)
	} else {
		writeInt(0)
	}

	for _, p := range g.Projects() {
		writeStr(p.ID)
		writeInt(int64(p.Duration))
		writeInt(int64(p.NumResources))

		deps := make([]plan.Dependency, len(p.Dependencies))
		copy(deps, p.Dependencies)
		sort.Slice(deps, func(i, j int) bool {
			return deps[i].ProjectID < deps[j].ProjectID
		})
		writeInt(int64(len(deps)))
		for _, dep := range deps {
			writeStr(dep.ProjectID)
			writeInt(int64(dep.LagTime))
		}
	}

	return fmt.Sprintf("%016x", d.Sum64())
}
