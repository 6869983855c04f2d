// Package mmap provides read-only memory-mapped file access.
//
// The local blob store maps descriptor, tree and weight files instead of
// reading them through kernel buffers; descriptor files are touched once
// and sequentially, so mappings are advised accordingly.
//
//	m, err := mmap.Open("features/42.sift.desc")
//	if err != nil { ... }
//	defer m.Close()
//	data := m.Bytes()
//
// On platforms without mmap(2) the file is read into memory instead; the API
// is the same.
package mmap
