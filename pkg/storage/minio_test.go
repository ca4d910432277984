package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectName(t *testing.T) {
	assert.Equal(t, "transcripts/c1/s1.json", ObjectName("c1", "s1"))
}
