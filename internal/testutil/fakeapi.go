package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/ehwaz/internal/notion"
)

// FakeAPI implements notion.API with per-method function fields. Unset
// methods fail loudly so tests only stub what they expect to be called.
type FakeAPI struct {
	RetrievePageFn      func(ctx context.Context, id string) (*notion.Page, error)
	UpdatePageTitleFn   func(ctx context.Context, id, title string) error
	QueryDatabaseFn     func(ctx context.Context, id, cursor string) (*notion.PageList, error)
	RetrieveDatabaseFn  func(ctx context.Context, id string) (*notion.Database, error)
	SearchFn            func(ctx context.Context, query, filter, cursor string) (*notion.PageList, error)
	ListChildBlocksFn   func(ctx context.Context, blockID, cursor string) (*notion.BlockList, error)
	AppendChildBlocksFn func(ctx context.Context, blockID string, blocks []notion.Block) error
	DeleteBlockFn       func(ctx context.Context, id string) error
}

var _ notion.API = (*FakeAPI)(nil)

func (f *FakeAPI) RetrievePage(ctx context.Context, id string) (*notion.Page, error) {
	if f.RetrievePageFn == nil {
		return nil, fmt.Errorf("fakeapi: unexpected RetrievePage(%s)", id)
	}
	return f.RetrievePageFn(ctx, id)
}

func (f *FakeAPI) UpdatePageTitle(ctx context.Context, id, title string) error {
	if f.UpdatePageTitleFn == nil {
		return fmt.Errorf("fakeapi: unexpected UpdatePageTitle(%s)", id)
	}
	return f.UpdatePageTitleFn(ctx, id, title)
}

func (f *FakeAPI) QueryDatabase(ctx context.Context, id, cursor string) (*notion.PageList, error) {
	if f.QueryDatabaseFn == nil {
		return nil, fmt.Errorf("fakeapi: unexpected QueryDatabase(%s)", id)
	}
	return f.QueryDatabaseFn(ctx, id, cursor)
}

func (f *FakeAPI) RetrieveDatabase(ctx context.Context, id string) (*notion.Database, error) {
	if f.RetrieveDatabaseFn == nil {
		return nil, fmt.Errorf("fakeapi: unexpected RetrieveDatabase(%s)", id)
	}
	return f.RetrieveDatabaseFn(ctx, id)
}

func (f *FakeAPI) Search(ctx context.Context, query, filter, cursor string) (*notion.PageList, error) {
	if f.SearchFn == nil {
		return nil, fmt.Errorf("fakeapi: unexpected Search(%q)", query)
	}
	return f.SearchFn(ctx, query, filter, cursor)
}

func (f *FakeAPI) ListChildBlocks(ctx context.Context, blockID, cursor string) (*notion.BlockList, error) {
	if f.ListChildBlocksFn == nil {
		return nil, fmt.Errorf("fakeapi: unexpected ListChildBlocks(%s)", blockID)
	}
	return f.ListChildBlocksFn(ctx, blockID, cursor)
}

func (f *FakeAPI) AppendChildBlocks(ctx context.Context, blockID string, blocks []notion.Block) error {
	if f.AppendChildBlocksFn == nil {
		return fmt.Errorf("fakeapi: unexpected AppendChildBlocks(%s)", blockID)
	}
	return f.AppendChildBlocksFn(ctx, blockID, blocks)
}

func (f *FakeAPI) DeleteBlock(ctx context.Context, id string) error {
	if f.DeleteBlockFn == nil {
		return fmt.Errorf("fakeapi: unexpected DeleteBlock(%s)", id)
	}
	return f.DeleteBlockFn(ctx, id)
}

// StaticPage builds a page response with the given title and edit time.
func StaticPage(id, title string, lastEdited time.Time) *notion.Page {
	return &notion.Page{
		ID:             id,
		LastEditedTime: lastEdited,
		Properties: map[string]notion.Property{
			"title": {Type: "title", Title: notion.NewRichText(title)},
		},
	}
}
