package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentencePara(sentences int, word string) string {
	s := strings.TrimSpace(strings.Repeat(word+" ", 12)) + "."
	parts := make([]string, sentences)
	for i := range parts {
		parts[i] = s
	}
	return strings.Join(parts, " ")
}

func TestSplitEmptyInput(t *testing.T) {
	c := New(DefaultConfig())

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\n\t  "))
}

func TestSplitIndexesAreOrdinal(t *testing.T) {
	c := New(DefaultConfig())

	chunks := c.Split(sentencePara(60, "kinematics"))
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.NotEmpty(t, ch.Content)
	}
}

func TestSplitRespectsSizeBounds(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg)

	chunks := c.Split(sentencePara(80, "actuator"))
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		// A chunk may exceed MaxSize only by the carried overlap.
		assert.LessOrEqual(t, len(ch.Content), cfg.MaxSize+cfg.Overlap+2,
			"chunk %d too large", ch.Index)
	}
}

func TestSplitNeverEndsMidWord(t *testing.T) {
	c := New(DefaultConfig())

	chunks := c.Split(sentencePara(80, "proprioception"))
	for _, ch := range chunks {
		last := ch.Content[strings.LastIndexAny(ch.Content, " \n")+1:]
		assert.Contains(t, "proprioception. proprioception", strings.TrimSuffix(last, "."),
			"chunk %d ends mid-word: %q", ch.Index, last)
	}
}

func TestSplitCarriesOverlap(t *testing.T) {
	cfg := Config{MinSize: 200, MaxSize: 300, Overlap: 60}
	c := New(cfg)

	chunks := c.Split(sentencePara(30, "gripper"))
	require.Greater(t, len(chunks), 1)

	// The second chunk leads with the tail of the first.
	first := chunks[0].Content
	tail := first[len(first)-cfg.Overlap:]
	tail = tail[strings.IndexAny(tail, " \n")+1:]
	assert.True(t, strings.HasPrefix(chunks[1].Content, strings.TrimSpace(tail)),
		"second chunk does not start with first chunk's tail")
}

func TestSplitHeadingPaths(t *testing.T) {
	c := New(Config{MinSize: 50, MaxSize: 200, Overlap: 20})

	text := "# Robotics Guide\n\n" +
		"Intro paragraph about robots and their many uses in modern factories.\n\n" +
		"## Forward Kinematics\n\n" +
		"Forward kinematics computes end-effector pose from joint angles.\n\n" +
		"## Inverse Kinematics\n\n" +
		"Inverse kinematics solves for joint angles given a target pose."

	chunks := c.Split(text)
	require.Len(t, chunks, 3)

	assert.Equal(t, []string{"Robotics Guide"}, chunks[0].HeadingPath)
	assert.Equal(t, []string{"Robotics Guide", "Forward Kinematics"}, chunks[1].HeadingPath)
	assert.Equal(t, []string{"Robotics Guide", "Inverse Kinematics"}, chunks[2].HeadingPath)
	assert.Contains(t, chunks[1].Content, "end-effector pose")
}

func TestSplitHeadingLevelsPopCorrectly(t *testing.T) {
	c := New(Config{MinSize: 30, MaxSize: 200, Overlap: 0})

	text := "# Top\n\nunder top section text here.\n\n" +
		"## Deep\n\nunder deep section text here.\n\n" +
		"# Next\n\nunder next section text here."

	chunks := c.Split(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"Top"}, chunks[0].HeadingPath)
	assert.Equal(t, []string{"Top", "Deep"}, chunks[1].HeadingPath)
	assert.Equal(t, []string{"Next"}, chunks[2].HeadingPath)
}

func TestSplitNoOverlapAcrossSections(t *testing.T) {
	c := New(Config{MinSize: 50, MaxSize: 200, Overlap: 40})

	text := "## One\n\nFirst section sentence that is long enough to produce a chunk here.\n\n" +
		"## Two\n\nSecond section sentence that must not inherit the first one's tail."

	chunks := c.Split(text)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[1].Content, "Second section"),
		"section chunk leaked overlap: %q", chunks[1].Content)
}

func TestSplitShortDocumentSingleChunk(t *testing.T) {
	c := New(DefaultConfig())

	chunks := c.Split("A single short paragraph.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A single short paragraph.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestSplitMergesTrailingFragment(t *testing.T) {
	cfg := Config{MinSize: 200, MaxSize: 400, Overlap: 0}
	c := New(cfg)

	text := sentencePara(4, "sensor") + "\n\nTiny tail."
	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.True(t, strings.HasSuffix(chunks[0].Content, "Tiny tail."))
}
