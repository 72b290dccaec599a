package event

import (
	"fmt"
	"strings"
	"time"
)

// Base is embedded in every event type and carries the fields shared by all
// of them. Events are treated as immutable once emitted; the only mutation
// permitted is appending diagnostic reasons.
type Base struct {
	Time   time.Time
	Symbol string
	Offset int64
	Reason []string
}

// GetTime returns the event timestamp
func (b *Base) GetTime() time.Time {
	return b.Time
}

// GetSymbol returns the upper-case symbol the event relates to
func (b *Base) GetSymbol() string {
	return b.Symbol
}

// GetOffset returns the stream offset the event was raised at
func (b *Base) GetOffset() int64 {
	return b.Offset
}

// SetOffset sets the stream offset
func (b *Base) SetOffset(o int64) {
	b.Offset = o
}

// AppendReason adds diagnostic context to the event
func (b *Base) AppendReason(r string) {
	b.Reason = append(b.Reason, r)
}

// AppendReasonf adds formatted diagnostic context to the event
func (b *Base) AppendReasonf(format string, v ...any) {
	b.Reason = append(b.Reason, fmt.Sprintf(format, v...))
}

// GetReason concatenates all stored reasons
func (b *Base) GetReason() string {
	return strings.Join(b.Reason, ". ")
}
