package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type sequenceReader interface {
	MaxSequence(ctx context.Context, exec sqlx.ExtContext, prefix, yearSuffix string) (int, error)
}

// studentNumberAllocator produces numbers of the form PREFIX-{sequence}-{yy},
// where sequence restarts at 1 each calendar year. Allocation itself is not
// race-free; callers rely on the unique constraint on student_number and retry
// the enclosing transaction on a unique violation.
type studentNumberAllocator struct {
	sequences sequenceReader
	prefix    string
	now       func() time.Time
}

func newStudentNumberAllocator(sequences sequenceReader, prefix string) *studentNumberAllocator {
	return &studentNumberAllocator{sequences: sequences, prefix: prefix, now: time.Now}
}

// Next computes the next unissued number for the current year on the caller's
// executor.
func (a *studentNumberAllocator) Next(ctx context.Context, exec sqlx.ExtContext) (string, error) {
	yearSuffix := a.now().UTC().Format("06")
	max, err := a.sequences.MaxSequence(ctx, exec, a.prefix, yearSuffix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%s", a.prefix, max+1, yearSuffix), nil
}
