package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/meta"
)

// Render builds the typed record and renders every configured format.
func (s *Stages) Render(ctx context.Context, st *dataset.State) (dataset.Update, error) {
	md, err := meta.FromMap(st.Meta)
	if err != nil {
		return dataset.Failed(StepRender, fmt.Sprintf("decode metadata: %v", err)), nil
	}
	arts, err := s.renderer.Render(md, s.cfg.Output.Formats)
	if err != nil {
		return dataset.Failed(StepRender, err.Error()), nil
	}
	if len(arts) == 0 {
		return dataset.Failed(StepRender, "no output formats rendered"), nil
	}
	s.log.Info("metadata rendered", zap.String("dataset_name", st.DatasetName), zap.Int("artifacts", len(arts)))

	u := dataset.Processing(StepRender)
	u.Artifacts = arts
	return u, nil
}

// Persist writes the rendered artifacts next to the dataset. Artifacts whose
// content is already on disk are left alone unless forced. The run succeeds
// when at least one artifact is written or unchanged.
func (s *Stages) Persist(ctx context.Context, st *dataset.State) (dataset.Update, error) {
	names := make([]string, 0, len(st.Artifacts))
	for f := range st.Artifacts {
		names = append(names, f)
	}
	sort.Slice(names, func(i, j int) bool {
		return st.Artifacts[names[i]].Filename < st.Artifacts[names[j]].Filename
	})

	written := []dataset.WrittenFile{}
	ok := 0
	for _, f := range names {
		wf := s.persistOne(st.DatasetPath, st.Artifacts[f])
		if wf.Status != dataset.WriteFailed {
			ok++
		}
		written = append(written, wf)
	}

	if ok == 0 {
		msg := "no artifacts to write"
		if len(names) > 0 {
			msg = "every artifact write failed"
		}
		u := dataset.Failed(StepPersist, msg)
		u.WrittenFiles = written
		return u, nil
	}

	s.log.Info("artifacts persisted", zap.String("dataset_path", st.DatasetPath), zap.Int("ok", ok), zap.Int("total", len(names)))
	return dataset.Update{
		CurrentStep:  step(StepPersist),
		Status:       dataset.Ptr(dataset.StatusSuccess),
		WrittenFiles: written,
	}, nil
}

func (s *Stages) persistOne(dir string, a dataset.Artifact) dataset.WrittenFile {
	target := filepath.Join(dir, a.Filename)
	wf := dataset.WrittenFile{Filename: a.Filename, Path: target, Size: int64(len(a.Content))}
	log := s.log.With(zap.String("path", target))

	_, statErr := os.Stat(target)
	exists := statErr == nil
	if exists && !s.force {
		if h, err := dataset.HashFile(target); err == nil && h == dataset.HashBytes(a.Content) {
			wf.Status = dataset.WriteUnchanged
			log.Debug("artifact unchanged")
			return wf
		}
	}

	if exists && s.cfg.Output.BackupExisting {
		backup := dataset.BackupName(target, s.now())
		if err := dataset.CopyFile(target, backup); err != nil {
			wf.Status = dataset.WriteFailed
			wf.Error = fmt.Sprintf("backup: %v", err)
			log.Error("backup failed", zap.Error(err))
			return wf
		}
		wf.Backup = backup
	}

	if err := dataset.WriteAtomic(target, a.Content); err != nil {
		wf.Status = dataset.WriteFailed
		wf.Error = err.Error()
		log.Error("artifact write failed", zap.Error(err))
		return wf
	}
	wf.Status = dataset.WriteWritten
	log.Info("artifact written", zap.Int64("size", wf.Size))
	return wf
}
