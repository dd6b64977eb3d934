package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFieldBuilders(t *testing.T) {
	tests := []struct {
		name   string
		fields []zap.Field
		expect map[string]string
	}{
		{
			name: "string fields trim and drop empties",
			fields: StringFields(
				StringField{Key: "  provider  ", Value: "  Gemini  "},
				StringField{Key: "ignored", Value: "   "},
				StringField{Key: "   ", Value: "empty key"},
			),
			expect: map[string]string{"provider": "Gemini"},
		},
		{
			name:   "no string fields",
			fields: StringFields(),
			expect: map[string]string{},
		},
		{
			name:   "common fields",
			fields: CommonFields("  Gemini  ", "gemini-2.5-flash"),
			expect: map[string]string{FieldProvider: "Gemini", FieldModel: "gemini-2.5-flash"},
		},
		{
			name:   "empty common fields",
			fields: CommonFields("", ""),
			expect: map[string]string{},
		},
		{
			name:   "screening fields skip a missing requirement id",
			fields: ScreeningFields("conv-1", "", " CDL_CLASS "),
			expect: map[string]string{FieldConversation: "conv-1", FieldRequirementType: "CDL_CLASS"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.fields) != len(tt.expect) {
				t.Fatalf("expected %d fields, got %d: %+v", len(tt.expect), len(tt.fields), tt.fields)
			}
			for _, f := range tt.fields {
				if want, ok := tt.expect[f.Key]; !ok || f.String != want {
					t.Fatalf("unexpected field %s=%q", f.Key, f.String)
				}
			}
		})
	}
}

func TestLoggerHelpersAttachFields(t *testing.T) {
	tests := []struct {
		name   string
		attach func(*zap.Logger) *zap.Logger
		expect map[string]string
	}{
		{
			name:   "with fields",
			attach: func(l *zap.Logger) *zap.Logger { return WithFields(l, zap.String("foo", "bar")) },
			expect: map[string]string{"foo": "bar"},
		},
		{
			name:   "with common fields",
			attach: func(l *zap.Logger) *zap.Logger { return WithCommonFields(l, "gemini", "model-x") },
			expect: map[string]string{FieldProvider: "gemini", FieldModel: "model-x"},
		},
		{
			name:   "with conversation",
			attach: func(l *zap.Logger) *zap.Logger { return WithConversation(l, "conv-9") },
			expect: map[string]string{FieldConversation: "conv-9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, observed := observer.New(zapcore.DebugLevel)
			tt.attach(zap.New(core)).Debug("handled")

			entries := observed.All()
			if len(entries) != 1 {
				t.Fatalf("expected 1 entry, got %d", len(entries))
			}
			ctx := entries[0].ContextMap()
			for key, want := range tt.expect {
				if ctx[key] != want {
					t.Fatalf("expected %s=%q, got %v", key, want, ctx[key])
				}
			}

			// A nil logger falls back to a no-op one.
			fallback := tt.attach(nil)
			if fallback == nil {
				t.Fatal("expected fallback logger when nil provided")
			}
			fallback.Info("ignored")
		})
	}
}
