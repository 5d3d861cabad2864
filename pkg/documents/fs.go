package documents

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Filesystem keeps each document under root with a JSON sidecar holding its Info.
type Filesystem struct {
	root string
}

func NewFilesystem(root string) (*Filesystem, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, unavailable("init", root, err)
	}
	return &Filesystem{root: root}, nil
}

func (f *Filesystem) Driver() string { return "fs" }

func (f *Filesystem) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

func (f *Filesystem) Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error) {
	if err := validKey(key); err != nil {
		return Info{}, err
	}
	target := f.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Info{}, unavailable("put", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return Info{}, unavailable("put", key, err)
	}
	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return Info{}, unavailable("put", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return Info{}, unavailable("put", key, err)
	}

	info := Info{Key: key, ContentType: contentType, Size: size, StoredAt: time.Now().UTC()}
	meta, err := json.Marshal(info)
	if err != nil {
		return Info{}, err
	}
	if err := os.WriteFile(target+".meta.json", meta, 0o644); err != nil {
		return Info{}, unavailable("put", key, err)
	}
	return info, nil
}

func (f *Filesystem) Get(ctx context.Context, key string) (io.ReadCloser, Info, error) {
	if err := validKey(key); err != nil {
		return nil, Info{}, err
	}
	target := f.path(key)
	file, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Info{}, notFound(key)
	}
	if err != nil {
		return nil, Info{}, unavailable("get", key, err)
	}

	info := Info{Key: key}
	if meta, err := os.ReadFile(target + ".meta.json"); err == nil {
		_ = json.Unmarshal(meta, &info)
	} else if st, err := file.Stat(); err == nil {
		info.Size = st.Size()
		info.StoredAt = st.ModTime().UTC()
	}
	return file, info, nil
}
