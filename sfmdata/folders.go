package sfmdata

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hupe1980/imgmatch/blobstore"
	"github.com/hupe1980/imgmatch/descriptor"
)

// ResolvedFeaturesFolders returns the feature folders with relative entries
// resolved against Dir.
func (s *SfMData) ResolvedFeaturesFolders() []string {
	out := make([]string, len(s.FeaturesFolders))
	for i, f := range s.FeaturesFolders {
		if filepath.IsAbs(f) || s.Dir == "" {
			out[i] = f
		} else {
			out[i] = filepath.Join(s.Dir, f)
		}
	}
	return out
}

// DescriptorFiles maps every view to its descriptor file
// <folder>/<viewId>.<describer>.desc. An empty featuresFolder falls back to
// the first feature folder of the scene, then to the scene directory.
func DescriptorFiles(s *SfMData, featuresFolder, describer string) map[uint32]string {
	folder := featuresFolder
	if folder == "" {
		if resolved := s.ResolvedFeaturesFolders(); len(resolved) > 0 {
			folder = resolved[0]
		} else {
			folder = s.Dir
		}
	}

	files := make(map[uint32]string, len(s.Views))
	for id := range s.Views {
		files[id] = filepath.Join(folder, descriptor.Filename(id, describer))
	}
	return files
}

// LocateDescriptorFiles maps every view to the first folder holding its
// descriptor file, searching featuresFolder before the feature folders of
// the scene. Each folder is listed once and only its direct entries count.
// Views found nowhere keep the path DescriptorFiles gives them.
func LocateDescriptorFiles(ctx context.Context, store blobstore.BlobStore, s *SfMData, featuresFolder, describer string) (map[uint32]string, error) {
	files := DescriptorFiles(s, featuresFolder, describer)

	folders := s.ResolvedFeaturesFolders()
	if featuresFolder != "" {
		folders = append([]string{featuresFolder}, folders...)
	}
	if len(folders) < 2 {
		return files, nil
	}

	pending := make(map[string]uint32, len(s.Views))
	for id := range s.Views {
		pending[descriptor.Filename(id, describer)] = id
	}

	for _, folder := range folders {
		if len(pending) == 0 {
			break
		}
		prefix := strings.TrimSuffix(filepath.ToSlash(folder), "/") + "/"
		names, err := store.List(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("sfmdata: list features folder %q: %w", folder, err)
		}
		for _, name := range names {
			base, ok := strings.CutPrefix(name, prefix)
			if !ok || strings.Contains(base, "/") {
				continue
			}
			if id, ok := pending[base]; ok {
				files[id] = filepath.Join(folder, base)
				delete(pending, base)
			}
		}
	}
	return files, nil
}
