package slackindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSlackTS(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1700000000.000100", 1700000000.0001},
		{"1700000000.123456", 1700000000.123456},
		{"not-a-timestamp", 0},
		{"", 0},
	}
	for _, c := range cases {
		got := parseSlackTS(c.in)
		assert.InDelta(t, c.want, got, 0.0005, "parseSlackTS(%q)", c.in)
	}
}

func TestWorkspaceConfig_CollectionNaming(t *testing.T) {
	cfg := WorkspaceConfig{WorkspaceID: "T0123"}
	assert.Equal(t, "slack_messages_T0123", cfg.collection())
}

// TestPointIDDerivation pins the id formula from spec §4.7 step 4
// (int(ts*1e6)+i) so a regression here is caught even without a live
// Qdrant instance to assert against.
func TestPointIDDerivation(t *testing.T) {
	ts := 1700000000.5
	var ids []uint64
	for i := 0; i < 3; i++ {
		ids = append(ids, uint64(ts*1e6)+uint64(i))
	}
	assert.Equal(t, []uint64{1700000000500000, 1700000000500001, 1700000000500002}, ids)

	// re-deriving ids for the same (ts, i) pairs must be stable, so a
	// re-run over an overlapping window overwrites rather than duplicates.
	var again []uint64
	for i := 0; i < 3; i++ {
		again = append(again, uint64(ts*1e6)+uint64(i))
	}
	assert.Equal(t, ids, again)
}
