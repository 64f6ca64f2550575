package curate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresmejia3/facecurator/internal/types"
	"github.com/andresmejia3/facecurator/internal/utils"
)

// FileSink copies accepted clip artifacts into the results directory.
// An artifact is either ClipsDir/<id> (a file or directory) or the first
// ClipsDir/<id>.<ext> in name order whose stem is exactly the id.
type FileSink struct {
	ClipsDir   string
	ResultsDir string
}

// Resolve returns the path of the artifact for clipID.
func (s FileSink) Resolve(clipID string) (string, error) {
	exact := filepath.Join(s.ClipsDir, clipID)
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	matches, err := filepath.Glob(filepath.Join(s.ClipsDir, utils.EscapeGlob(clipID)+".*"))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	for _, m := range matches {
		base := filepath.Base(m)
		if strings.TrimSuffix(base, filepath.Ext(base)) == clipID {
			return m, nil
		}
	}
	return "", fmt.Errorf("no artifact for clip %s in %s: %w", clipID, s.ClipsDir, os.ErrNotExist)
}

// Copy resolves the artifact of clipID and copies it into ResultsDir under
// the same base name. It returns the source and destination paths.
func (s FileSink) Copy(ctx context.Context, clipID string) (src, dst string, err error) {
	src, err = s.Resolve(clipID)
	if err != nil {
		return "", "", err
	}
	dst = filepath.Join(s.ResultsDir, filepath.Base(src))
	if src == dst {
		return src, dst, nil
	}

	info, err := os.Stat(src)
	if err != nil {
		return "", "", err
	}
	if info.IsDir() {
		err = copyTree(ctx, src, dst)
	} else {
		err = copyFile(src, dst, info.Mode().Perm())
	}
	if err != nil {
		return "", "", fmt.Errorf("copy %s: %w", clipID, err)
	}
	return src, dst, nil
}

func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0755)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil // skip symlinks, sockets and friends
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// WriteResults writes the accepted records as one indented JSON array.
// Non-ASCII clip ids are written as-is.
func WriteResults(path string, records []types.ClipRecord) error {
	records = append([]types.ClipRecord{}, records...)
	for i := range records {
		if records[i].FaceClusters == nil {
			records[i].FaceClusters = []float64{}
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		f.Close()
		return fmt.Errorf("encode results: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
