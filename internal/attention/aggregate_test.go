package attention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcadeck/orca/internal/transcript"
)

const (
	lineUser      = `{"type":"user","message":{"role":"user","content":"hi"}}`
	lineAssistant = `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"done"}]}}`
	lineAsk       = `{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"a","name":"AskUserQuestion"}]}}`
)

func writeTranscript(t *testing.T, root, project, id string, lines ...string) {
	t.Helper()
	dir := filepath.Join(root, transcript.EncodeProjectDir(project))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	var body string
	for _, l := range lines {
		body += l + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".jsonl"), []byte(body), 0o644))
}

func TestAggregate(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "/p/a", "c-a", lineUser, lineAssistant)
	writeTranscript(t, root, "/p/b", "c-b", lineUser)
	writeTranscript(t, root, "/p/c", "c-c", lineUser, lineAssistant)
	src := transcript.NewStore(root)

	candidates := []Candidate{
		// waiting after a reply: needs input
		{SessionID: "1", GroupPath: "work", ProjectPath: "/p/a", ConversationID: "c-a", Coarse: CoarseWaiting},
		// waiting without a reply: idle, dropped
		{SessionID: "2", GroupPath: "work", ProjectPath: "/p/b", ConversationID: "c-b", Coarse: CoarseWaiting},
		// error without transcript: error
		{SessionID: "3", GroupPath: "ops", ProjectPath: "/p/x", ConversationID: "nope", Coarse: CoarseError},
		// error in a group that already has a waiting session
		{SessionID: "4", GroupPath: "work", ProjectPath: "/p/c", ConversationID: "c-c", Coarse: CoarseError},
		// waiting without transcript: idle, dropped
		{SessionID: "5", GroupPath: "misc", ProjectPath: "/p/y", Coarse: CoarseWaiting},
		// not a candidate status: ignored even though it would be Running
		{SessionID: "6", GroupPath: "misc", ProjectPath: "/p/a", ConversationID: "c-a", Coarse: CoarseRunning},
	}

	c := newTestClassifier(nil)
	counts, err := c.Aggregate(context.Background(), src, candidates, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, map[string]string{"work": GroupWaiting, "ops": GroupError}, counts.Groups)
	require.Len(t, counts.Sessions, 3)
	assert.Equal(t, "1", counts.Sessions[0].SessionID)
	assert.Equal(t, NeedsInput, counts.Sessions[0].Status)
	assert.Equal(t, "3", counts.Sessions[1].SessionID)
	assert.Equal(t, Error, counts.Sessions[1].Status)
}

func TestAggregateWaitingNeverDowngraded(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "/p/a", "c-a", lineUser, lineAsk)
	src := transcript.NewStore(root)

	// Error listed after waiting must not overwrite it, and vice versa.
	orders := [][]Candidate{
		{
			{SessionID: "w", GroupPath: "g", ProjectPath: "/p/a", ConversationID: "c-a", Coarse: CoarseWaiting},
			{SessionID: "e", GroupPath: "g", Coarse: CoarseError},
		},
		{
			{SessionID: "e", GroupPath: "g", Coarse: CoarseError},
			{SessionID: "w", GroupPath: "g", ProjectPath: "/p/a", ConversationID: "c-a", Coarse: CoarseWaiting},
		},
	}
	c := newTestClassifier(nil)
	for i, cands := range orders {
		counts, err := c.Aggregate(context.Background(), src, cands, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, counts.Total, "order %d", i)
		assert.Equal(t, GroupWaiting, counts.Groups["g"], "order %d", i)
	}
}

func TestAggregateSkipsPaneProbe(t *testing.T) {
	probe := &fakeProbe{waiting: true}
	c := newTestClassifier(probe)
	_, err := c.Aggregate(context.Background(), nil, []Candidate{{SessionID: "x", Coarse: CoarseError}}, 0)
	require.NoError(t, err)
	assert.Zero(t, probe.calls.Load())
}

func TestAggregateCallScoped(t *testing.T) {
	c := newTestClassifier(nil)
	first, err := c.Aggregate(context.Background(), nil, []Candidate{{SessionID: "x", GroupPath: "g1", Coarse: CoarseError}}, 0)
	require.NoError(t, err)
	second, err := c.Aggregate(context.Background(), nil, []Candidate{{SessionID: "y", GroupPath: "g2", Coarse: CoarseError}}, 0)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"g1": GroupError}, first.Groups)
	assert.Equal(t, map[string]string{"g2": GroupError}, second.Groups)
}

func TestAggregateEmpty(t *testing.T) {
	counts, err := newTestClassifier(nil).Aggregate(context.Background(), nil, nil, 4)
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
	assert.NotNil(t, counts.Groups)
}

func TestAggregateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var cands []Candidate
	for i := 0; i < 20; i++ {
		cands = append(cands, Candidate{SessionID: fmt.Sprint(i), Coarse: CoarseError})
	}
	_, err := newTestClassifier(nil).Aggregate(ctx, nil, cands, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
