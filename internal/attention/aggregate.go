package attention

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Group levels reported per group path.
const (
	GroupWaiting = "waiting"
	GroupError   = "error"
)

// DefaultMaxParallel bounds concurrent transcript reads in Aggregate.
const DefaultMaxParallel = 8

// Candidate is a session the supervisor reports as waiting or errored.
type Candidate struct {
	SessionID      string       `json:"id"`
	Title          string       `json:"title,omitempty"`
	GroupPath      string       `json:"group_path"`
	ProjectPath    string       `json:"project_path"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Coarse         CoarseStatus `json:"coarse_status"`
}

// Flagged is a candidate that really needs attention.
type Flagged struct {
	Candidate
	Status Status `json:"attention"`
}

// Counts is the aggregate attention picture. Groups maps group path to
// GroupWaiting or GroupError; waiting dominates.
type Counts struct {
	Total    int               `json:"total"`
	Groups   map[string]string `json:"groups"`
	Sessions []Flagged         `json:"sessions,omitempty"`
}

// Aggregate classifies candidates without pane refinement and keeps the
// actionable ones. Classification runs up to maxParallel at a time; the
// reduction walks results in input order, so the result does not depend
// on scheduling. The only error is ctx's.
func (c *Classifier) Aggregate(ctx context.Context, src Source, candidates []Candidate, maxParallel int) (Counts, error) {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}

	results := make([]Status, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for i, cand := range candidates {
		if cand.Coarse != CoarseWaiting && cand.Coarse != CoarseError {
			results[i] = Unknown
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.Assess(gctx, src, Target{
				Coarse:         cand.Coarse,
				ProjectPath:    cand.ProjectPath,
				ConversationID: cand.ConversationID,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Counts{Groups: map[string]string{}}, err
	}

	return reduce(candidates, results), nil
}

func reduce(candidates []Candidate, results []Status) Counts {
	out := Counts{Groups: make(map[string]string)}
	for i, status := range results {
		if !status.Actionable() {
			continue
		}
		cand := candidates[i]
		out.Total++
		out.Sessions = append(out.Sessions, Flagged{Candidate: cand, Status: status})

		switch status {
		case NeedsInput:
			out.Groups[cand.GroupPath] = GroupWaiting
		case Error:
			if _, seen := out.Groups[cand.GroupPath]; !seen {
				out.Groups[cand.GroupPath] = GroupError
			}
		}
	}
	attnLog.Debug("aggregated",
		slog.Int("candidates", len(candidates)),
		slog.Int("total", out.Total),
		slog.Int("groups", len(out.Groups)))
	return out
}
