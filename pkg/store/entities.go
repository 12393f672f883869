package store

import (
	"context"

	"github.com/pkg/errors"
)

// Undelegation is one matched undelegate deploy. The csv tags fix the column
// order of the output file.
type Undelegation struct {
	Era         uint64 `csv:"era" gorm:"index"`
	Block       uint64 `csv:"block" gorm:"index"`
	DeployHash  string `csv:"deployHash" gorm:"primaryKey;type:varchar(64)"`
	Timestamp   string `csv:"timestamp"`
	Address     string `csv:"address" gorm:"type:varchar(68);index"`
	AmountCspr  string `csv:"amountCspr"`
	AmountMotes string `csv:"amountMotes"`
	Success     YesNo  `csv:"success"`

	// Position of the deploy within its block.
	Position int `csv:"-"`
}

// YesNo is a bool written as "Y" or "N".
type YesNo bool

func (b YesNo) MarshalCSV() (string, error) {
	if b {
		return "Y", nil
	}
	return "N", nil
}

func (b *YesNo) UnmarshalCSV(s string) error {
	switch s {
	case "Y", "y":
		*b = true
	case "N", "n", "":
		*b = false
	default:
		return errors.Errorf("invalid success flag %q", s)
	}

	return nil
}

// Store persists the scan results. Records are only ever appended, so Save
// always receives the previously saved records as a prefix.
type Store interface {
	Load(ctx context.Context) ([]Undelegation, error)
	Save(ctx context.Context, records []Undelegation) error
}

// MaxHeight is the highest block among records and false when there are none.
func MaxHeight(records []Undelegation) (uint64, bool) {
	if len(records) == 0 {
		return 0, false
	}

	var max uint64
	for i := range records {
		if records[i].Block > max {
			max = records[i].Block
		}
	}

	return max, true
}
