package dcontext

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestGetLoggerFallsBackToStandard(t *testing.T) {
	if GetLogger(context.Background()) == nil {
		t.Fatal("expected a fallback logger")
	}
}

func TestWithLoggerRoundTrip(t *testing.T) {
	entry := logrus.NewEntry(logrus.New())
	ctx := WithLogger(context.Background(), entry)

	if got := GetLogger(ctx); got != Logger(entry) {
		t.Fatalf("GetLogger returned %T, want the seeded entry", got)
	}
}

func TestGetLoggerWithFieldsExtendsEntry(t *testing.T) {
	entry := logrus.NewEntry(logrus.New())
	ctx := WithLogger(context.Background(), entry)

	got := GetLoggerWithFields(ctx, map[string]any{"package": "left-pad"})
	extended, ok := got.(*logrus.Entry)
	if !ok {
		t.Fatalf("got %T, want *logrus.Entry", got)
	}
	if extended.Data["package"] != "left-pad" {
		t.Fatalf("Data = %v, want the package field", extended.Data)
	}
}
