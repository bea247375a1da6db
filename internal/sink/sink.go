// Package sink copies workflow results into the output tree.
package sink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/KyungWonPark/wmaze/internal/glm"
)

// Sink archives files under Base/Container
type Sink struct {
	Base      string
	Container string
}

// Path returns where file would be stored under dest. dest uses '.' to
// separate directories; subs are applied in order to the path below the
// container.
func (s Sink) Path(dest, file string, subs []glm.Substitution) string {
	rel := filepath.Join(filepath.Join(strings.Split(dest, ".")...), filepath.Base(file))
	for _, sub := range subs {
		rel = strings.ReplaceAll(rel, sub.Find, sub.Replace)
	}
	rel = strings.TrimLeft(filepath.Clean("/"+rel), "/")
	return filepath.Join(s.Base, s.Container, rel)
}

// Put copies files to dest and returns the stored paths
func (s Sink) Put(dest string, files []string, subs []glm.Substitution) ([]string, error) {
	stored := make([]string, 0, len(files))
	for _, file := range files {
		to := s.Path(dest, file, subs)
		if err := copyFile(file, to); err != nil {
			return stored, fmt.Errorf("[Sink] %w", err)
		}
		stored = append(stored, to)
	}
	return stored, nil
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(to)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying %s: %w", from, err)
	}
	return dst.Close()
}
