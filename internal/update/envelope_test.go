package update

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/wormhole/internal/graph"
	"github.com/vk/wormhole/internal/snapshot"
)

func ptr[T any](v T) *T { return &v }

func TestParse(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
		want    *Envelope
	}{
		{name: "empty", payload: ``, want: &Envelope{}},
		{name: "null", payload: `null`, want: &Envelope{}},
		{name: "current only", payload: `{"current": "Jita"}`, want: &Envelope{Current: ptr("Jita")}},
		{name: "empty current", payload: `{"current": ""}`, want: &Envelope{Current: ptr("")}},
		{
			name:    "node as object",
			payload: `{"node": {"name": "Amarr", "x": 4}}`,
			want:    &Envelope{Node: ptr(snapshot.Name("Amarr"))},
		},
		{
			name:    "link with aliases",
			payload: `{"link": {"source_name": "A", "target_name": "B"}}`,
			want:    &Envelope{Link: &snapshot.Link{Source: "A", Target: "B"}},
		},
		{
			name:    "batch form",
			payload: `{"nodes": ["A", {"name": "B"}], "links": [{"source": {"name": "A"}, "target": "B"}]}`,
			want: &Envelope{
				Nodes: []snapshot.Name{"A", "B"},
				Links: []snapshot.Link{{Source: "A", Target: "B"}},
			},
		},
		{name: "unknown fields ignored", payload: `{"weather": "sunny"}`, want: &Envelope{}},
		{name: "null fields are absent", payload: `{"current": null, "node": null, "links": null}`, want: &Envelope{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(json.RawMessage(tc.payload))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, payload := range []string{`[]`, `"update"`, `42`} {
		t.Run(payload, func(t *testing.T) {
			env, err := Parse(json.RawMessage(payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, graph.ErrInvalidUpdate))
			assert.Nil(t, env)
		})
	}
}

func TestParse_DropsOnlyBadFragments(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
		want    *Envelope
	}{
		{
			name:    "bad node keeps current and link",
			payload: `{"current": "Jita", "node": 123, "link": {"source": "Jita", "target": "Perimeter"}}`,
			want: &Envelope{
				Current: ptr("Jita"),
				Link:    &snapshot.Link{Source: "Jita", Target: "Perimeter"},
			},
		},
		{
			name:    "bad link keeps node",
			payload: `{"node": "Amarr", "link": "Amarr"}`,
			want:    &Envelope{Node: ptr(snapshot.Name("Amarr"))},
		},
		{
			name:    "bad current keeps node",
			payload: `{"current": 1, "node": "Amarr"}`,
			want:    &Envelope{Node: ptr(snapshot.Name("Amarr"))},
		},
		{
			name:    "bad batch element keeps the others",
			payload: `{"nodes": ["A", 7, {"name": "B"}], "links": [{"source": "A", "target": "B"}, true]}`,
			want: &Envelope{
				Nodes: []snapshot.Name{"A", "B"},
				Links: []snapshot.Link{{Source: "A", Target: "B"}},
			},
		},
		{
			name:    "batch that is not a list",
			payload: `{"nodes": "A", "current": "A"}`,
			want:    &Envelope{Current: ptr("A")},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(json.RawMessage(tc.payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, graph.ErrInvalidUpdate))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEnvelope_IsEmpty(t *testing.T) {
	var nilEnv *Envelope
	assert.True(t, nilEnv.IsEmpty())
	assert.True(t, (&Envelope{}).IsEmpty())
	assert.True(t, (&Envelope{Nodes: []snapshot.Name{}}).IsEmpty())
	assert.False(t, CurrentEnvelope("").IsEmpty(), "an explicit empty current is still a field")
	assert.False(t, NodeEnvelope("A").IsEmpty())
	assert.False(t, LinkEnvelope("A", "B").IsEmpty())
}
