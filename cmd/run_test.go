package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTaskArgs(t *testing.T) {
	tasks, options := splitTaskArgs([]string{"wheel", "version=1.2.0", "docs", "tag=app:latest"})

	assert.Equal(t, []string{"wheel", "docs"}, tasks)
	assert.Equal(t, map[string]string{
		"version": "1.2.0",
		"tag":     "app:latest",
	}, options)
}

func TestSplitTaskArgsValueWithEquals(t *testing.T) {
	_, options := splitTaskArgs([]string{"flags=-X main.version=1.0"})
	assert.Equal(t, "-X main.version=1.0", options["flags"])
}
