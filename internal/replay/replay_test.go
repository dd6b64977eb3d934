package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/driver-screener/internal/job"
	"github.com/spigell/driver-screener/internal/prompt"
	"github.com/spigell/driver-screener/internal/screening"
	"github.com/spigell/driver-screener/internal/store"
)

func newRunner(t *testing.T, parallel int) *Runner {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "replay.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	prompts, err := prompt.New()
	require.NoError(t, err)
	return &Runner{Store: s, Prompts: prompts, Logger: zap.NewNop(), Parallel: parallel}
}

func inlineJob() *job.Definition {
	return &job.Definition{
		Title:   "Yard Driver",
		Company: "Acme Freight",
		Requirements: []job.Requirement{
			{Type: "AGE_REQUIREMENT", Criteria: map[string]any{"required": true, "min_age": 21}},
		},
	}
}

func TestSampleTranscripts(t *testing.T) {
	f, err := Load(filepath.Join("..", "..", "jobs", "transcripts.yaml"))
	require.NoError(t, err)
	require.Len(t, f.Conversations, 3)

	results, err := newRunner(t, 2).Run(context.Background(), f.Conversations)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, res := range results {
		assert.True(t, res.OK(), "%s: err=%v mismatch=%q", res.Name, res.Err, res.Mismatch)
		assert.NotEmpty(t, res.ConversationID)
		assert.Equal(t, screening.StateDone, res.State, res.Name)
	}
	assert.Equal(t, "class-a-approved", results[0].Name)
	assert.Equal(t, screening.DecisionApproved, results[0].Decision)
	assert.Equal(t, 4, results[0].Turns)
	assert.Equal(t, screening.DecisionDenied, results[1].Decision)
	assert.Equal(t, screening.DecisionWithdrawn, results[2].Decision)
}

func TestRunReportsMismatch(t *testing.T) {
	script := Script{
		Name: "too-young",
		Job:  inlineJob(),
		ModelReplies: []string{
			"Hello! Ready to start?",
			"How old are you?",
			`{"age": 19, "meets_requirement": false, "message": "Thanks."}`,
			"Thanks for your time.",
		},
		CandidateMessages: []string{"Yes.", "I'm 19."},
		Expect:            &Expect{State: "done", Decision: "approved"},
	}

	results, err := newRunner(t, 0).Run(context.Background(), []Script{script})
	require.NoError(t, err)
	res := results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, screening.DecisionDenied, res.Decision)
	assert.Equal(t, "decision DENIED, want APPROVED", res.Mismatch)
	assert.False(t, res.OK())
	assert.Equal(t, screening.SenderUser, res.Transcript[1].Sender)
}

func TestRunStopsWhenRepliesRunOut(t *testing.T) {
	script := Script{
		Name:              "short",
		Job:               inlineJob(),
		ModelReplies:      []string{"Hello!"},
		CandidateMessages: []string{"Hi."},
	}

	results, err := newRunner(t, 1).Run(context.Background(), []Script{script})
	require.NoError(t, err)
	assert.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "turn 1")
}

func TestRunCompletesFollowUps(t *testing.T) {
	def := inlineJob()
	def.FollowUpQuestions = []string{"When can you start?", "Do you have questions for us?"}
	script := Script{
		Name: "follow-ups",
		Job:  def,
		ModelReplies: []string{
			"Hello!",
			"How old are you?",
			`{"age": 40, "meets_requirement": true, "message": "Great."}`,
			"When can you start?",
			"Thanks, we'll be in touch.",
		},
		CandidateMessages: []string{"Ready.", "40."},
		CompleteFollowUps: true,
		Expect:            &Expect{State: "DONE", Decision: "APPROVED"},
	}

	results, err := newRunner(t, 1).Run(context.Background(), []Script{script})
	require.NoError(t, err)
	assert.True(t, results[0].OK(), "err=%v mismatch=%q", results[0].Err, results[0].Mismatch)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "jobs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobs", "yard.yaml"), []byte(`
title: Yard Driver
requirements:
  - type: AGE_REQUIREMENT
    criteria: {required: true, min_age: 21}
`), 0o600))

	t.Run("relative job file", func(t *testing.T) {
		path := filepath.Join(dir, "ok.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
conversations:
  - job_file: jobs/yard.yaml
    model_replies: ["Hello!"]
`), 0o600))

		f, err := Load(path)
		require.NoError(t, err)
		require.Len(t, f.Conversations, 1)
		assert.Equal(t, "conversation-1", f.Conversations[0].Name)
		require.NotNil(t, f.Conversations[0].Job)
		assert.Equal(t, "Yard Driver", f.Conversations[0].Job.Title)
	})

	errorCases := []struct {
		name    string
		content string
		message string
	}{
		{"empty", "conversations: []\n", "no conversations"},
		{"no job", "conversations:\n  - name: lonely\n", "lonely: job or job_file is required"},
		{"missing job file", "conversations:\n  - job_file: nope.yaml\n", "conversation-1"},
		{"bad yaml", "conversations: {", "invalid transcripts yaml"},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "case.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
