package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResolveHitAndMiss(t *testing.T) {
	p := Static{"run_dsn": "postgres://localhost/run"}

	v, err := p.Resolve(context.Background(), "run_dsn")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/run", v)

	_, err = p.Resolve(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, "secrets: no value for missing", err.Error())
}
