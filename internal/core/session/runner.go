package session

import (
	"context"
	"fmt"

	"github.com/truliv/voice-agent/internal/adapters/worker"
	"github.com/truliv/voice-agent/internal/core/model/provider"
)

// RoomJoiner connects the agent to a job room.
type RoomJoiner func(ctx context.Context, url, token string) (provider.MediaRoom, error)

// JobRunner joins the assigned room and runs the assembler in it.
type JobRunner struct {
	join      RoomJoiner
	assembler *Assembler
}

// NewJobRunner creates the worker's job handler.
func NewJobRunner(join RoomJoiner, assembler *Assembler) *JobRunner {
	return &JobRunner{join: join, assembler: assembler}
}

// HandleJob implements worker.JobHandler.
func (r *JobRunner) HandleJob(ctx context.Context, job worker.Job) error {
	room, err := r.join(ctx, job.URL, job.Token)
	if err != nil {
		return fmt.Errorf("failed to join room %s: %w", job.RoomName, err)
	}
	return r.assembler.Run(ctx, job, room)
}

var _ worker.JobHandler = (*JobRunner)(nil)
