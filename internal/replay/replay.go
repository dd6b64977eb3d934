// Package replay runs scripted conversations through the screening engine.
// Each script carries the candidate messages and the canned model replies,
// so a replay is deterministic and needs no model access.
package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/spigell/driver-screener/internal/ai"
	"github.com/spigell/driver-screener/internal/job"
	"github.com/spigell/driver-screener/internal/parser"
	"github.com/spigell/driver-screener/internal/prompt"
	"github.com/spigell/driver-screener/internal/screening"
)

// File models a transcripts file.
type File struct {
	Conversations []Script `yaml:"conversations"`
}

// Script is one scripted conversation.
type Script struct {
	Name string `yaml:"name"`
	// JobFile is resolved relative to the transcripts file.
	JobFile   string          `yaml:"job_file"`
	Job       *job.Definition `yaml:"job"`
	Candidate string          `yaml:"candidate"`
	// ModelReplies are consumed in order by every generator call, the
	// greeting and evaluation calls included.
	ModelReplies      []string `yaml:"model_replies"`
	CandidateMessages []string `yaml:"candidate_messages"`
	// Withdraw ends a still open conversation after the last message.
	Withdraw bool `yaml:"withdraw"`
	// CompleteFollowUps approves a conversation left in the follow-up phase.
	CompleteFollowUps bool    `yaml:"complete_follow_ups"`
	Expect            *Expect `yaml:"expect"`
}

type Expect struct {
	State    string `yaml:"state"`
	Decision string `yaml:"decision"`
}

// Load reads transcripts and resolves job files.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid transcripts yaml: %w", err)
	}
	if len(f.Conversations) == 0 {
		return nil, errors.New("transcripts contain no conversations")
	}

	dir := filepath.Dir(path)
	for i := range f.Conversations {
		s := &f.Conversations[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("conversation-%d", i+1)
		}
		if s.Job == nil && s.JobFile != "" {
			jobPath := s.JobFile
			if !filepath.IsAbs(jobPath) {
				jobPath = filepath.Join(dir, jobPath)
			}
			if s.Job, err = job.FromFile(jobPath); err != nil {
				return nil, fmt.Errorf("%s: %w", s.Name, err)
			}
		}
		if s.Job == nil {
			return nil, fmt.Errorf("%s: job or job_file is required", s.Name)
		}
	}
	return &f, nil
}

// Store is the persistence a replay needs.
type Store interface {
	screening.Store
	CreateJob(ctx context.Context, job screening.Job) (screening.Job, error)
	CreateConversation(ctx context.Context, jobID, candidate string) (screening.Conversation, error)
}

// Result is the final state of one replayed conversation.
type Result struct {
	Name           string
	ConversationID string
	State          screening.State
	Decision       screening.Decision
	Turns          int
	Transcript     []Line
	// Err is the error that stopped the conversation, if any.
	Err error
	// Mismatch describes a difference from the expected outcome.
	Mismatch string
}

// Line is one message of the replayed conversation.
type Line struct {
	Sender screening.Sender
	Text   string
}

func (r Result) OK() bool {
	return r.Err == nil && r.Mismatch == ""
}

// Runner replays scripts. Conversations run concurrently up to Parallel.
type Runner struct {
	Store    Store
	Prompts  *prompt.Builder
	Parser   *parser.Parser
	Config   screening.Config
	Logger   *zap.Logger
	Observer screening.Observer
	Parallel int
}

// Run replays every script. A failing script is reported in its Result;
// the returned error is set only when ctx ends the run.
func (r *Runner) Run(ctx context.Context, scripts []Script) ([]Result, error) {
	results := make([]Result, len(scripts))

	g, gCtx := errgroup.WithContext(ctx)
	if r.Parallel > 0 {
		g.SetLimit(r.Parallel)
	}
	for i, script := range scripts {
		g.Go(func() error {
			// Each goroutine writes only its own slot.
			results[i] = r.replay(gCtx, script)
			return gCtx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) replay(ctx context.Context, script Script) Result {
	res := Result{Name: script.Name}
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("script", script.Name))

	def, err := script.Job.Job()
	if err != nil {
		res.Err = err
		return res
	}
	created, err := r.Store.CreateJob(ctx, def)
	if err != nil {
		res.Err = fmt.Errorf("create job: %w", err)
		return res
	}
	conv, err := r.Store.CreateConversation(ctx, created.ID, script.Candidate)
	if err != nil {
		res.Err = fmt.Errorf("create conversation: %w", err)
		return res
	}
	res.ConversationID = conv.ID

	engine, err := screening.NewEngine(r.Config, screening.Deps{
		Store:     r.Store,
		Generator: ai.NewScripted(script.ModelReplies...),
		Parser:    r.Parser,
		Prompts:   r.Prompts,
		Logger:    log,
		Observer:  r.Observer,
	})
	if err != nil {
		res.Err = err
		return res
	}

	reply, err := engine.Start(ctx, conv.ID, nil)
	if err != nil {
		res.Err = fmt.Errorf("start: %w", err)
		return res
	}
	res.record(screening.SenderAssistant, reply)

	for _, msg := range script.CandidateMessages {
		if !reply.Active {
			log.Warn("conversation closed before all messages were sent")
			break
		}
		res.Transcript = append(res.Transcript, Line{Sender: screening.SenderUser, Text: msg})
		res.Turns++
		if reply, err = engine.Handle(ctx, conv.ID, msg, nil); err != nil {
			res.Err = fmt.Errorf("turn %d: %w", res.Turns, err)
			return res
		}
		res.record(screening.SenderAssistant, reply)
	}

	switch {
	case script.CompleteFollowUps && reply.State == screening.StateOnFollowUpQuestions:
		if reply, err = engine.CompleteFollowUps(ctx, conv.ID, nil); err != nil {
			res.Err = fmt.Errorf("complete follow-ups: %w", err)
			return res
		}
		res.record(screening.SenderAssistant, reply)
	case script.Withdraw && reply.Active:
		if reply, err = engine.Withdraw(ctx, conv.ID, nil); err != nil {
			res.Err = fmt.Errorf("withdraw: %w", err)
			return res
		}
		res.record(screening.SenderAssistant, reply)
	}

	res.Mismatch = compare(script.Expect, res)
	return res
}

func (r *Result) record(sender screening.Sender, reply screening.Reply) {
	r.State = reply.State
	r.Decision = reply.Decision
	r.Transcript = append(r.Transcript, Line{Sender: sender, Text: reply.Text})
}

func compare(expect *Expect, res Result) string {
	if expect == nil {
		return ""
	}
	var diffs []string
	if want := strings.ToUpper(strings.TrimSpace(expect.State)); want != "" && want != string(res.State) {
		diffs = append(diffs, fmt.Sprintf("state %s, want %s", res.State, want))
	}
	if want := strings.ToUpper(strings.TrimSpace(expect.Decision)); want != "" && want != string(res.Decision) {
		diffs = append(diffs, fmt.Sprintf("decision %s, want %s", res.Decision, want))
	}
	return strings.Join(diffs, "; ")
}
