package sfmdata

import (
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"

	// Image header decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/imgmatch/blobstore"
)

// completeViews fills missing image dimensions of every view in parallel.
// Each task only touches its own view.
func completeViews(ctx context.Context, views []*View, opts LoadOptions) error {
	images := opts.Images
	if images == nil {
		images = blobstore.NewLocalStore("")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(opts.Workers))
	for _, v := range views {
		if v.Width != 0 && v.Height != 0 {
			continue
		}
		g.Go(func() error {
			return completeView(gctx, images, v)
		})
	}
	return g.Wait()
}

func completeView(ctx context.Context, images blobstore.BlobStore, v *View) error {
	if v.Path == "" {
		return fmt.Errorf("sfmdata: view %d has no image path", v.ViewID)
	}
	w, h, err := ImageSize(ctx, images, filepath.Clean(v.Path))
	if err != nil {
		return fmt.Errorf("sfmdata: view %d: %w", v.ViewID, err)
	}
	v.Width, v.Height = w, h
	return nil
}

// ImageSize reads the dimensions of an image from its header. PNG, JPEG,
// GIF, BMP, TIFF and WebP are supported.
func ImageSize(ctx context.Context, store blobstore.BlobStore, name string) (uint32, uint32, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return 0, 0, err
	}
	defer blob.Close()

	cfg, format, err := image.DecodeConfig(io.NewSectionReader(&readerAt{ctx: ctx, blob: blob}, 0, blob.Size()))
	if err != nil {
		return 0, 0, fmt.Errorf("decode header of %q: %w", name, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("%s image %q has no size", format, name)
	}
	return uint32(cfg.Width), uint32(cfg.Height), nil
}

// readerAt adapts a Blob to io.ReaderAt.
type readerAt struct {
	ctx  context.Context
	blob blobstore.Blob
}

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	return r.blob.ReadAt(r.ctx, p, off)
}
