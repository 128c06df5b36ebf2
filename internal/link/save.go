package link

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	logx "linkbot/pkg/logx"
)

// Encode renders the table in the on-disk format. Pairs are written as
// [java, bedrock].
func (r *Registry) Encode() ([]byte, error) {
	snap := r.All()
	doc := make(map[string]any, len(snap))
	for chatID, rec := range snap {
		if rec.IsDual() {
			j, _ := rec.Java()
			b, _ := rec.Bedrock()
			doc[chatID] = [2]string{j.String(), b.String()}
		} else {
			doc[chatID] = rec.Primary().String()
		}
	}
	return json.Marshal(doc)
}

// Save writes the table to the backing file.
//
// The table is copied under the lock and written outside it, through a
// temporary file renamed into place. Failures are logged and returned.
func (r *Registry) Save() error {
	if r.path == "" {
		return nil
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	start := time.Now()
	b, err := r.Encode()
	if err == nil {
		err = writeFileAtomic(r.path, b)
	}
	if err != nil {
		r.log.Error("failed to save linked accounts", logx.String("path", r.path), logx.Err(err))
		return err
	}
	r.log.Info("linked accounts saved", logx.String("path", r.path), logx.Duration("took", time.Since(start)))
	return nil
}

func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
