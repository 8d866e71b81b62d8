package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/confbot/testutil"
)

func TestRunUsage(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()
	for _, args := range [][]string{nil, {"sideways"}, {"--bogus", "up"}, {"trim-samples", "--older-than", "-1h"}} {
		assert.ErrorIs(t, run(ctx, args, store, &bytes.Buffer{}), errUsage, strings.Join(args, " "))
	}
}

func TestRunUpIsIdempotent(t *testing.T) {
	store := testutil.SetupTestDB(t)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"up"}, store, &out))
	assert.Contains(t, out.String(), "schema up to date")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"--dry-run", "up"}, store, &out))
	assert.Contains(t, out.String(), "would apply sqlite schema")
}

func TestRunVersionAndDownOnSQLite(t *testing.T) {
	store := testutil.SetupTestDB(t)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"version"}, store, &out))
	assert.Contains(t, out.String(), "unversioned")
	assert.Error(t, run(context.Background(), []string{"down"}, store, &out))
}

func TestRunTrimSamples(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()
	_, err := store.CreateRoom(ctx, "alice", "https://meet.example.org/a", "#a")
	require.NoError(t, err)
	_, err = store.RecordSample(ctx, "#a", []string{"alice"})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"--dry-run", "trim-samples", "--older-than", "1h"}, store, &out))
	assert.Contains(t, out.String(), "would delete samples before")

	out.Reset()
	require.NoError(t, run(ctx, []string{"trim-samples", "--older-than", "1ns"}, store, &out))
	assert.Equal(t, "deleted 0 samples\n", out.String())
	n, err := store.CountSamples(ctx, "#a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
