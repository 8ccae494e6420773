package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVague(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"What about him?", true},
		{"Tell me more", true},
		{"and them?", true},
		{"Who painted it?", false},
		{"Where is the Night Watch now?", false},
		{"", true},
		{"what about it and what about that and this and those and them too", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, isVague(tt.query, DefaultVagueMaxTokens))
		})
	}
}

func TestIsPivot(t *testing.T) {
	assert.True(t, isPivot("Aside from Rembrandt, who painted in Leiden?"))
	assert.True(t, isPivot("Which museums other than the Louvre hold his work?"))
	assert.True(t, isPivot("besides that"))
	assert.False(t, isPivot("Who painted the Night Watch?"))
	assert.False(t, isPivot("Tell me about other paintings"))
}

func TestContextualize(t *testing.T) {
	history := []string{"first", "  second ", "", "third"}
	assert.Equal(t, "third who?", contextualize(history, "who?", 1))
	assert.Equal(t, "third who?", contextualize(history, "who?", 2))
	assert.Equal(t, "second third who?", contextualize(history, "who?", 3))
	assert.Equal(t, "first second third who?", contextualize(history, "who?", 10))
}

func TestInterleave(t *testing.T) {
	a := []Candidate{{DocID: "a1", Score: 1}, {DocID: "shared", Score: 0.4}, {DocID: "a3", Score: 0.2}}
	b := []Candidate{{DocID: "shared", Score: 0.9}, {DocID: "b2", Score: 0.5}}

	out := interleave(a, b, 10)
	assert.Equal(t, []string{"a1", "shared", "b2", "a3"}, candidateIDs(out))
	assert.InDelta(t, 0.9, out[1].Score, 1e-12)

	assert.Equal(t, []string{"a1", "shared"}, candidateIDs(interleave(a, b, 2)))
	assert.Empty(t, interleave(nil, nil, 5))
}

func TestUnionMax(t *testing.T) {
	a := []Candidate{{DocID: "x", Score: 0.3}, {DocID: "y", Score: 0.2}}
	b := []Candidate{{DocID: "y", Score: 0.8, Channel: ChannelType}, {DocID: "z", Score: 0.3}}

	out := unionMax(a, b)

	assert.Equal(t, []string{"y", "x", "z"}, candidateIDs(out))
	assert.Equal(t, ChannelType, out[0].Channel)
	assert.Empty(t, unionMax(nil, nil))
}
