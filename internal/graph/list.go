package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// listPageSize is the $top value for children listings. 999 keeps page
// count low for folders holding a whole event's worth of media.
const listPageSize = 999

// ChildrenPage is one page of a folder listing plus the opaque link to
// the next page, empty on the last page.
type ChildrenPage struct {
	Items    []Item
	NextLink string
}

// ChildrenURL builds the absolute first-page URL for listing a folder's
// children with the facets the gallery needs.
func (c *Client) ChildrenURL(driveID, folderID string) string {
	return fmt.Sprintf(
		"%s/drives/%s/items/%s/children"+
			"?$select=id,name,size,file,image,video,createdDateTime,webUrl,@microsoft.graph.downloadUrl"+
			"&$expand=thumbnails&$top=%d",
		c.baseURL, driveID, folderID, listPageSize,
	)
}

// ListChildrenPage fetches a single page of a folder listing from an
// absolute page URL (first page from ChildrenURL, subsequent pages from
// the prior page's NextLink).
func (c *Client) ListChildrenPage(ctx context.Context, pageURL string) (*ChildrenPage, error) {
	resp, err := c.DoURL(ctx, http.MethodGet, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var cr childrenResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&cr); decErr != nil {
		return nil, fmt.Errorf("graph: decoding children page: %w", decErr)
	}

	page := &ChildrenPage{
		Items:    make([]Item, 0, len(cr.Value)),
		NextLink: cr.NextLink,
	}

	for i := range cr.Value {
		page.Items = append(page.Items, cr.Value[i].toItem(c.logger))
	}

	c.logger.Debug("children page fetched",
		slog.Int("items", len(page.Items)),
		slog.Bool("has_next_link", page.NextLink != ""),
	)

	return page, nil
}
