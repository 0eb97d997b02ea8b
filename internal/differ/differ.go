// Package differ computes and applies the minimal set of remote block
// mutations needed to make a page match a local document. The comparison is
// positional over the page's direct child sequence; nested children ride
// along with their parent rather than being diffed individually.
package differ

import (
	"context"
	"log/slog"

	"github.com/starford/ehwaz/internal/blocks"
	"github.com/starford/ehwaz/internal/models"
	"github.com/starford/ehwaz/internal/notion"
)

// appendBatchSize is the number of blocks sent per append call.
const appendBatchSize = 10

// Op classifies one positional difference.
type Op string

const (
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpUnchanged Op = "unchanged"
)

// BlockDiff is one transient diff record. BlockID is the remote identity for
// delete/update/unchanged entries; Block is the candidate local content for
// create/update entries.
type BlockDiff struct {
	Op      Op
	BlockID string
	Block   models.Block
	Index   int
}

// Result is the outcome of a diff computation.
type Result struct {
	HasChanges   bool
	Diffs        []BlockDiff
	TitleChanged bool
	NewTitle     string

	// Fallback is set when remote state could not be fetched: the caller
	// replaces the page wholesale instead of patching.
	Fallback bool

	// LocalBlocks is the decoded local block list, used by the fallback path.
	LocalBlocks []models.Block
}

// Differ computes and applies block-level diffs through a scheduled API view.
type Differ struct {
	api notion.API
	log *slog.Logger
}

// New creates a differ. Every remote call goes through api, which is
// expected to be the scheduled view.
func New(api notion.API, log *slog.Logger) *Differ {
	if log == nil {
		log = slog.Default()
	}
	return &Differ{api: api, log: log}
}

// Compute fetches the page's title and direct child blocks and compares them
// positionally against the decoded local body. A remote fetch failure
// degrades to a full-replacement fallback rather than a partial patch.
func (d *Differ) Compute(ctx context.Context, pageID, localBody, localTitle string) Result {
	local := blocks.Decode(localBody)

	page, err := d.api.RetrievePage(ctx, pageID)
	if err != nil {
		d.log.Warn("differ: remote fetch failed, falling back to full replace",
			slog.String("page_id", pageID), slog.String("error", err.Error()))
		return Result{HasChanges: true, TitleChanged: true, NewTitle: localTitle, Fallback: true, LocalBlocks: local}
	}
	wire, err := notion.ListAllChildBlocks(ctx, d.api, pageID)
	if err != nil {
		d.log.Warn("differ: remote block list failed, falling back to full replace",
			slog.String("page_id", pageID), slog.String("error", err.Error()))
		return Result{HasChanges: true, TitleChanged: true, NewTitle: localTitle, Fallback: true, LocalBlocks: local}
	}

	var remote []models.Block
	for _, w := range wire {
		if mb, ok := notion.ToModel(w); ok {
			remote = append(remote, mb)
		}
	}

	res := Result{NewTitle: localTitle, LocalBlocks: local}
	res.TitleChanged = page.Title() != localTitle

	n := len(remote)
	if len(local) > n {
		n = len(local)
	}
	for i := 0; i < n; i++ {
		switch {
		case i >= len(remote):
			res.Diffs = append(res.Diffs, BlockDiff{Op: OpCreate, Block: local[i], Index: i})
		case i >= len(local):
			res.Diffs = append(res.Diffs, BlockDiff{Op: OpDelete, BlockID: remote[i].ID, Index: i})
		case equalBlocks(remote[i], local[i]):
			res.Diffs = append(res.Diffs, BlockDiff{Op: OpUnchanged, BlockID: remote[i].ID, Index: i})
		default:
			res.Diffs = append(res.Diffs, BlockDiff{Op: OpUpdate, BlockID: remote[i].ID, Block: local[i], Index: i})
		}
	}

	for _, diff := range res.Diffs {
		if diff.Op != OpUnchanged {
			res.HasChanges = true
			break
		}
	}
	res.HasChanges = res.HasChanges || res.TitleChanged
	return res
}

// equalBlocks is the per-kind structural equality check: kinds must match;
// text-bearing kinds compare runs pairwise; checkbox compares the checked
// flag; code compares the language tag. Any shape mismatch is "not equal".
func equalBlocks(a, b models.Block) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case models.KindDivider:
		return true
	case models.KindCheckboxItem:
		if a.Checked != b.Checked {
			return false
		}
	case models.KindCode:
		if a.Language != b.Language {
			return false
		}
	}
	if len(a.Runs) != len(b.Runs) {
		return false
	}
	for i := range a.Runs {
		if a.Runs[i].Text != b.Runs[i].Text {
			return false
		}
	}
	return true
}

// Apply issues the minimal remote mutations for res against pageID: title
// update, then deletes, then updated blocks' deletions, then batched appends
// of updated and created content in position order. Updates are
// delete-then-recreate; the remote block identity is not preserved.
func (d *Differ) Apply(ctx context.Context, pageID string, res Result) error {
	if !res.HasChanges {
		return nil
	}

	if res.TitleChanged && res.NewTitle != "" {
		if err := d.api.UpdatePageTitle(ctx, pageID, res.NewTitle); err != nil {
			return err
		}
	}

	if res.Fallback {
		return d.replaceAll(ctx, pageID, res.LocalBlocks)
	}

	var appends []models.Block
	for _, diff := range res.Diffs {
		switch diff.Op {
		case OpDelete:
			if err := d.api.DeleteBlock(ctx, diff.BlockID); err != nil {
				return err
			}
		case OpUpdate:
			if err := d.api.DeleteBlock(ctx, diff.BlockID); err != nil {
				return err
			}
			appends = append(appends, diff.Block)
		case OpCreate:
			appends = append(appends, diff.Block)
		}
	}
	return d.appendBatches(ctx, pageID, appends)
}

// replaceAll deletes every current child block and appends the local list.
func (d *Differ) replaceAll(ctx context.Context, pageID string, local []models.Block) error {
	wire, err := notion.ListAllChildBlocks(ctx, d.api, pageID)
	if err != nil {
		return err
	}
	for _, w := range wire {
		if err := d.api.DeleteBlock(ctx, w.ID); err != nil {
			return err
		}
	}
	return d.appendBatches(ctx, pageID, local)
}

func (d *Differ) appendBatches(ctx context.Context, pageID string, bs []models.Block) error {
	for start := 0; start < len(bs); start += appendBatchSize {
		end := start + appendBatchSize
		if end > len(bs) {
			end = len(bs)
		}
		wire := make([]notion.Block, 0, end-start)
		for _, mb := range bs[start:end] {
			wire = append(wire, notion.FromModel(mb))
		}
		if err := d.api.AppendChildBlocks(ctx, pageID, wire); err != nil {
			return err
		}
	}
	return nil
}
