package strata

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// uploadConcurrency bounds parallel uploads in UploadDir.
const uploadConcurrency = 4

// ListFiles lists blob paths in the workspace store, optionally narrowed to
// those beginning with prefix. Paths use "/" separators regardless of the
// local platform.
func (c *Client) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	if err := c.get(ctx, c.route("Files"), &paths); err != nil {
		return nil, err
	}
	if prefix == "" {
		return paths, nil
	}
	matched := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// Upload stores content under the given blob path, overwriting any existing
// blob at that path.
func (c *Client) Upload(ctx context.Context, path string, content []byte) error {
	params := url.Values{}
	params.Set("filename", path)
	return c.postFile(ctx, c.route("Files", "Upload")+"?"+params.Encode(), path, content, nil)
}

// UploadDir uploads every regular file under dir, mapping local paths to
// blob paths rooted at prefix with "/" separators. Uploads run concurrently;
// the first failure cancels the rest.
func (c *Client) UploadDir(ctx context.Context, dir, prefix string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)

	err := filepath.WalkDir(dir, func(local string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, local)
		if err != nil {
			return err
		}
		remote := filepath.ToSlash(rel)
		if prefix != "" {
			remote = strings.TrimSuffix(prefix, "/") + "/" + remote
		}
		g.Go(func() error {
			content, err := os.ReadFile(local)
			if err != nil {
				return err
			}
			if err := c.Upload(ctx, remote, content); err != nil {
				return fmt.Errorf("strata: upload %q: %w", remote, err)
			}
			return nil
		})
		return nil
	})
	if err != nil {
		return err
	}
	return g.Wait()
}

// Download fetches a blob's raw bytes.
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	return c.getBytes(ctx, c.route("Files", escape(path)))
}

// DownloadText fetches a blob decoded as UTF-8 text.
func (c *Client) DownloadText(ctx context.Context, path string) (string, error) {
	b, err := c.Download(ctx, path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DownloadObject fetches a blob and decodes it as JSON into dest.
func (c *Client) DownloadObject(ctx context.Context, path string, dest any) error {
	b, err := c.Download(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("%w: blob %q: %v", ErrDecode, path, err)
	}
	return nil
}

// DeleteFile removes the blob at path. Deleting a missing blob is not an
// error.
func (c *Client) DeleteFile(ctx context.Context, path string) error {
	err := c.doDelete(ctx, c.route("Files", escape(path)), nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// DeleteFolder removes every blob whose path equals prefix or sits beneath
// it ("reports" removes "reports/a.txt" but not "reports2/a.txt"). A prefix
// matching nothing is a no-op.
func (c *Client) DeleteFolder(ctx context.Context, prefix string) error {
	paths, err := c.ListFiles(ctx, "")
	if err != nil {
		return err
	}
	folder := strings.TrimSuffix(prefix, "/") + "/"
	for _, p := range paths {
		if p != prefix && !strings.HasPrefix(p, folder) {
			continue
		}
		if err := c.DeleteFile(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
