package stage

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/scan"
)

// Scan walks the dataset directory, parses the folder name and reads the
// dataset's own documentation. Document values win over the folder name.
func (s *Stages) Scan(ctx context.Context, st *dataset.State) (dataset.Update, error) {
	res, err := s.scanner.Scan(ctx, st.DatasetPath)
	if err != nil {
		return dataset.Failed(StepScan, err.Error()), nil
	}

	info := scan.ParseName(filepath.Base(filepath.Clean(st.DatasetPath)))
	doc := s.extractor.Extract(st.DatasetPath)
	name := docString(doc, "name", info.Name)
	creator := docString(doc, "creator", info.Creator)
	date := docString(doc, "creation_date", info.Date)

	s.log.Info("dataset scanned",
		zap.String("dataset_path", st.DatasetPath),
		zap.String("dataset_name", name),
		zap.Int("files", len(res.Files)),
		zap.Int64("total_size", res.TotalSize),
		zap.Int("doc_fields", len(doc)),
	)

	u := dataset.Processing(StepScan)
	u.DatasetName = dataset.Ptr(name)
	u.Creator = dataset.Ptr(creator)
	u.CreationDate = dataset.Ptr(date)
	u.Files = res.Files
	u.TotalSize = dataset.Ptr(res.TotalSize)
	u.CacheKey = dataset.Ptr(dataset.CacheKey(st.DatasetPath, res.TotalSize))
	u.DocInfo = doc
	return u, nil
}

// Sample reads the bounded excerpt the analysis prompt is built from. It never fails.
func (s *Stages) Sample(ctx context.Context, st *dataset.State) (dataset.Update, error) {
	sample := s.sampler.Sample(st.DatasetPath, st.Files)
	s.log.Info("dataset sampled",
		zap.String("dataset_path", st.DatasetPath),
		zap.Int("text_samples", len(sample.TextSamples)),
		zap.Int("data_samples", len(sample.DataSamples)),
		zap.Int("special_files", len(sample.SpecialFiles)),
	)
	u := dataset.Processing(StepSample)
	u.FileSamples = dataset.Ptr(sample.Combined)
	return u, nil
}

func docString(doc map[string]any, key, fallback string) string {
	if v, ok := doc[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
