package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PRICING_FILE", "")
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQuoteIndividual(t *testing.T) {
	out, err := run(t, "quote", "--category", "10 km", "--jersey", "3XL", "--early=false")
	require.NoError(t, err, out)

	var q core.IndividualQuote
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	assert.Equal(t, core.Category("10K"), q.Category)
	assert.Equal(t, int64(250000), q.TotalPrice)
}

func TestQuoteGroup(t *testing.T) {
	out, err := run(t, "quote", "--category", "5K", "--members", "11")
	require.NoError(t, err, out)

	var q core.GroupQuote
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	assert.Len(t, q.Members, 11)
	assert.Equal(t, 1, q.FreeSlots)
	assert.Positive(t, q.FinalPrice)
}

func TestQuoteRejectsUnknownCategory(t *testing.T) {
	_, err := run(t, "quote", "--category", "21K")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestResetRequiresConfirmation(t *testing.T) {
	_, err := run(t, "reset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestMigrateDownRejectsBadSteps(t *testing.T) {
	_, err := run(t, "migrate", "down", "--steps", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--steps")
}
