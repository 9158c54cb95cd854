package shared

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultNumberAttempts = 5

// SequenceSource hands out increasing counters per document type and period.
type SequenceSource interface {
	NextSequence(ctx context.Context, docType, period string) (int64, error)
}

// DocNumberer produces numbers shaped PREFIX-YYYYMMDD-NNNN.
type DocNumberer struct {
	Prefix      string
	MaxAttempts int
}

// Next formats the next number for the day of at.
func (n DocNumberer) Next(ctx context.Context, src SequenceSource, at time.Time) (string, error) {
	if src == nil {
		return "", errors.New("numbering: sequence source required")
	}
	period := at.UTC().Format("20060102")
	seq, err := src.NextSequence(ctx, n.Prefix, period)
	if err != nil {
		return "", fmt.Errorf("numbering: next %s sequence: %w", n.Prefix, err)
	}
	return fmt.Sprintf("%s-%s-%04d", n.Prefix, period, seq), nil
}

// Assign draws numbers and passes them to insert until one is accepted. insert
// signals a collision by returning ErrNumberTaken; any other error aborts.
func (n DocNumberer) Assign(ctx context.Context, src SequenceSource, at time.Time, insert func(number string) error) (string, error) {
	attempts := n.MaxAttempts
	if attempts <= 0 {
		attempts = defaultNumberAttempts
	}
	for i := 0; i < attempts; i++ {
		number, err := n.Next(ctx, src, at)
		if err != nil {
			return "", err
		}
		err = insert(number)
		if err == nil {
			return number, nil
		}
		if !errors.Is(err, ErrNumberTaken) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s number still taken after %d attempts", ErrConflict, n.Prefix, attempts)
}
