package notion

import (
	"context"

	"github.com/starford/ehwaz/internal/models"
)

// FetchBlockTree resolves the full block tree under blockID: every direct
// child across result pages, recursing into children, converted to domain
// blocks. Unsupported kinds are skipped without error.
func FetchBlockTree(ctx context.Context, api API, blockID string) ([]models.Block, error) {
	wire, err := ListAllChildBlocks(ctx, api, blockID)
	if err != nil {
		return nil, err
	}
	var out []models.Block
	for _, w := range wire {
		mb, ok := ToModel(w)
		if !ok {
			continue
		}
		if w.HasChildren {
			children, err := FetchBlockTree(ctx, api, w.ID)
			if err != nil {
				return nil, err
			}
			mb.Children = children
		}
		out = append(out, mb)
	}
	return out, nil
}
