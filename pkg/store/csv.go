package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

type CSVStore struct {
	path string
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Load reads all records. A missing or empty file holds no records.
func (s *CSVStore) Load(context.Context) ([]Undelegation, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Infof("%s does not exist, starting with no records", s.path)
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "opening records")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "reading records")
	}
	if info.Size() == 0 {
		return nil, nil
	}

	var records []Undelegation
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", s.path)
	}

	for i := range records {
		records[i].Position = i
	}

	logger.Infof("loaded %d records from %s", len(records), s.path)
	return records, nil
}

// Save rewrites the whole file. The records go to a temporary file in the
// same directory first, which then replaces the output.
func (s *CSVStore) Save(_ context.Context, records []Undelegation) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temporary file")
	}
	defer os.Remove(tmp.Name())

	if records == nil {
		records = []Undelegation{}
	}

	if err := gocsv.MarshalFile(&records, tmp); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing records")
	}

	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temporary file")
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "replacing records")
	}

	logger.Debugf("saved %d records to %s", len(records), s.path)
	return nil
}
