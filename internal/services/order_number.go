package services

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

const (
	defaultOrderNumberPrefix = "ORD"
	maxDailyOrderSequence    = 999
)

var orderNumberPattern = regexp.MustCompile(`^[A-Z]+-\d{3}\d{6}$`)

// FormatOrderNumber renders PREFIX-{seq:3d}{DDMMYY}. Sequences past 999 wrap back to 1.
func FormatOrderNumber(prefix string, seq int64, day time.Time) string {
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}
	return fmt.Sprintf("%s-%03d%s", prefix, wrapSequence(seq), day.Format("020106"))
}

// IsOrderNumber reports whether value looks like a generated order number.
func IsOrderNumber(value string) bool {
	return orderNumberPattern.MatchString(value)
}

func wrapSequence(seq int64) int64 {
	if seq <= 0 {
		return 1
	}
	return ((seq - 1) % maxDailyOrderSequence) + 1
}

func dailyCounterID(day time.Time) string {
	return "orders-" + day.Format("20060102")
}

// generateOrderNumber draws the next value from the day's counter. When the counter store is
// unavailable it falls back to a sequence derived from the timestamp.
func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) string {
	if s.counters != nil {
		seq, err := s.counters.Next(ctx, dailyCounterID(now), 1)
		if err == nil {
			return FormatOrderNumber(s.orderPrefix, seq, now)
		}
		s.logger(ctx, "order.number.counter_failed", map[string]any{"error": err.Error()})
	}
	fallback := (now.UnixMilli() % maxDailyOrderSequence) + 1
	return FormatOrderNumber(s.orderPrefix, fallback, now)
}
