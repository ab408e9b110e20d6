package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/dshills/codeaudit/internal/errors"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", apperrors.New(apperrors.InvalidInput, "bad"), 2},
		{"not found", fmt.Errorf("report: %w", apperrors.New(apperrors.NotFound, "missing")), 3},
		{"collection not found", apperrors.New(apperrors.CollectionNotFound, "missing"), 3},
		{"source", apperrors.New(apperrors.SourceUnavailable, "gone"), 4},
		{"canceled", fmt.Errorf("analyze: %w", context.Canceled), 130},
		{"busy", apperrors.New(apperrors.Busy, "indexing"), 1},
		{"plain", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestRemoteSource(t *testing.T) {
	assert.True(t, remoteSource.MatchString("https://github.com/example/app.git"))
	assert.True(t, remoteSource.MatchString("git@github.com:example/app.git"))
	assert.False(t, remoteSource.MatchString("./app"))
	assert.False(t, remoteSource.MatchString("/srv/https/app"))
}
