package notion

import (
	"context"

	"github.com/starford/ehwaz/internal/scheduler"
)

// Scheduled wraps an API so every call is submitted to the shared scheduler
// at a fixed priority. The sync engine only ever sees this view; the raw
// client never leaves the composition root.
type Scheduled struct {
	api      API
	sched    *scheduler.Scheduler
	priority int
}

// NewScheduled builds a scheduled view of api at the given priority.
func NewScheduled(api API, sched *scheduler.Scheduler, priority int) *Scheduled {
	return &Scheduled{api: api, sched: sched, priority: priority}
}

func (s *Scheduled) RetrievePage(ctx context.Context, id string) (*Page, error) {
	out, err := s.sched.Submit(ctx, s.priority, func(ctx context.Context) (any, error) {
		return s.api.RetrievePage(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Page), nil
}

func (s *Scheduled) UpdatePageTitle(ctx context.Context, id, title string) error {
	_, err := s.sched.Submit(ctx, s.priority, func(ctx context.Context) (any, error) {
		return nil, s.api.UpdatePageTitle(ctx, id, title)
	})
	return err
}

func (s *Scheduled) QueryDatabase(ctx context.Context, id, cursor string) (*PageList, error) {
	out, err := s.sched.Submit(ctx, s.priority, func(ctx context.Context) (any, error) {
		return s.api.QueryDatabase(ctx, id, cursor)
	})
	if err != nil {
		return nil, err
	}
	return out.(*PageList), nil
}

func (s *Scheduled) RetrieveDatabase(ctx context.Context, id string) (*Database, error) {
	out, err := s.sched.Submit(ctx, s.priority, func(ctx context.Context) (any, error) {
		return s.api.RetrieveDatabase(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Database), nil
}

func (s *Scheduled) Search(ctx context.Context, query, filter, cursor string) (*PageList, error) {
	out, err := s.sched.Submit(ctx, s.priority, func(ctx context.Context) (any, error) {
		return s.api.Search(ctx, query, filter, cursor)
	})
	if err != nil {
		return nil, err
	}
	return out.(*PageList), nil
}

func (s *Scheduled) ListChildBlocks(ctx context.Context, blockID, cursor string) (*BlockList, error) {
	out, err := s.sched.Submit(ctx, s.priority, func(ctx context.Context) (any, error) {
		return s.api.ListChildBlocks(ctx, blockID, cursor)
	})
	if err != nil {
		return nil, err
	}
	return out.(*BlockList), nil
}

func (s *Scheduled) AppendChildBlocks(ctx context.Context, blockID string, blocks []Block) error {
	_, err := s.sched.Submit(ctx, s.priority, func(ctx context.Context) (any, error) {
		return nil, s.api.AppendChildBlocks(ctx, blockID, blocks)
	})
	return err
}

func (s *Scheduled) DeleteBlock(ctx context.Context, id string) error {
	_, err := s.sched.Submit(ctx, s.priority, func(ctx context.Context) (any, error) {
		return nil, s.api.DeleteBlock(ctx, id)
	})
	return err
}

// ListAllChildBlocks resolves every direct child of blockID across result
// pages.
func ListAllChildBlocks(ctx context.Context, api API, blockID string) ([]Block, error) {
	var out []Block
	cursor := ""
	for {
		list, err := api.ListChildBlocks(ctx, blockID, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, list.Results...)
		if !list.HasMore || list.NextCursor == "" {
			return out, nil
		}
		cursor = list.NextCursor
	}
}
