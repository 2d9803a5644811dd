package agent

import (
	"context"
	"strings"

	acontext "github.com/slyt3/Acontext"
)

// splitPath breaks an absolute path into title segments, dropping empty ones
// so "/a//b/" and "a/b" resolve the same.
func splitPath(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// joinPath appends a title to a base path, normalizing to one leading slash.
func joinPath(base, title string) string {
	return "/" + strings.Join(append(splitPath(base), title), "/")
}

// resolvePathBlockID walks the path segments from the space root, matching
// block titles level by level. "/" resolves to nil (the root itself).
func resolvePathBlockID(ctx context.Context, store acontext.Store, spaceID, path string) (*string, error) {
	segs := splitPath(path)
	var parent *string
	for i, seg := range segs {
		children, err := store.FetchChildrenByTypes(ctx, spaceID, parent, acontext.PathBlockTypes)
		if err != nil {
			return nil, err
		}
		var match *string
		for _, c := range children {
			if c.Title == seg {
				id := c.ID
				match = &id
				break
			}
		}
		if match == nil {
			return nil, acontext.NotFoundf("path /%s does not exist", strings.Join(segs[:i+1], "/"))
		}
		parent = match
	}
	return parent, nil
}

// resolvePathBlock resolves a path to its block. The root path is not a
// block and yields bad_request.
func resolvePathBlock(ctx context.Context, store acontext.Store, spaceID, path string) (acontext.Block, error) {
	id, err := resolvePathBlockID(ctx, store, spaceID, path)
	if err != nil {
		return acontext.Block{}, err
	}
	if id == nil {
		return acontext.Block{}, acontext.BadRequest("the root path is not a block")
	}
	return store.FetchBlock(ctx, *id)
}
