package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/fetchkit/batch"
)

const sampleTable = `
base_url: https://api.example.com
operations:
  getConfig:
    path: /api/v1/config
  sendReport:
    method: post
    path: /api/v1/reports
`

func TestParse_DefaultsAndValidation(t *testing.T) {
	table, err := Parse([]byte(sampleTable))
	require.NoError(t, err)

	op, err := table.Resolve("getConfig")
	require.NoError(t, err)
	assert.Equal(t, batch.MethodGet, op.Method, "missing method defaults to get")

	op, err = table.Resolve("sendReport")
	require.NoError(t, err)
	assert.Equal(t, batch.MethodPost, op.Method)
}

func TestParse_RejectsBadOperations(t *testing.T) {
	_, err := Parse([]byte("operations:\n  bad:\n    method: delete\n    path: /x\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, batch.ErrBadMethod)

	_, err = Parse([]byte("operations:\n  bad:\n    method: get\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestResolve_UnknownOperation(t *testing.T) {
	table, err := Parse([]byte(sampleTable))
	require.NoError(t, err)

	_, err = table.Resolve("ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestApply(t *testing.T) {
	table, err := Parse([]byte(sampleTable))
	require.NoError(t, err)

	t.Run("FillsURLAndMethod", func(t *testing.T) {
		item := batch.Item{ID: "r", Op: "sendReport"}
		require.NoError(t, table.Apply(&item))
		assert.Equal(t, "https://api.example.com/api/v1/reports", item.URL)
		assert.Equal(t, batch.MethodPost, item.Method)
	})

	t.Run("ExplicitItemMethodWins", func(t *testing.T) {
		item := batch.Item{ID: "r", Op: "sendReport", Method: "get"}
		require.NoError(t, table.Apply(&item))
		assert.Equal(t, "get", item.Method)
	})

	t.Run("NoOpLeavesItemUntouched", func(t *testing.T) {
		item := batch.Item{ID: "r", URL: "/direct"}
		require.NoError(t, table.Apply(&item))
		assert.Equal(t, "/direct", item.URL)
	})

	t.Run("UnknownOperationErrors", func(t *testing.T) {
		item := batch.Item{ID: "r", Op: "ghost"}
		require.Error(t, table.Apply(&item))
	})
}

func TestApply_NoBaseURLKeepsPath(t *testing.T) {
	table, err := Parse([]byte("operations:\n  ping:\n    path: /ping\n"))
	require.NoError(t, err)

	item := batch.Item{ID: "p", Op: "ping"}
	require.NoError(t, table.Apply(&item))
	assert.Equal(t, "/ping", item.URL, "relative target left for the transport base url")
}
