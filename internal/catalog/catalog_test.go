package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarstrings/internal/record"
)

func open(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func sample() []*record.String {
	return []*record.String{
		{Path: "a/One.class", ClassName: "a/One", MethodName: "onEnable", MethodDescriptor: "()V",
			Index: 12, Value: "Enabled", Context: record.ContextSendMessage,
			Sink: "org/bukkit/entity/Player#sendMessage(Ljava/lang/String;)V", Offset: 3, InstIndex: 1, Line: 20},
		{Path: "a/One.class", ClassName: "a/One", MethodName: "onEnable", MethodDescriptor: "()V",
			Index: 14, Value: "Code", Offset: 9, InstIndex: 4, Shared: true},
		{Path: "b/Two.class", ClassName: "b/Two", MethodName: "run", MethodDescriptor: "()V",
			Index: 300, Value: "Grüße 𝄞"},
	}
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	c := open(t)
	recs := sample()
	recs[2].Edit("Hallo")

	s, err := c.SaveScan(ctx, "plugin.jar", 5, recs, []record.Diag{{Path: "x/Bad.class", Err: errors.New("truncated")}})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 3, s.Strings)
	assert.Equal(t, 1, s.Edits)

	got, err := c.Scan(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	loaded, err := c.Records(ctx, s.ID)
	require.NoError(t, err)
	for _, r := range recs {
		r.Class, r.Method = nil, nil
	}
	assert.Equal(t, recs, loaded)

	diags, err := c.Diags(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"x/Bad.class", "truncated"}}, diags)
}

func TestEdits(t *testing.T) {
	ctx := context.Background()
	c := open(t)
	s, err := c.SaveScan(ctx, "plugin.jar", 2, sample(), nil)
	require.NoError(t, err)

	k := record.Key{Path: "a/One.class", Index: 12}
	require.NoError(t, c.SetEdit(ctx, s.ID, k, "Aktiviert"))
	changed, err := c.Changed(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, k, changed[0].Key())
	assert.Equal(t, "Aktiviert", changed[0].Edited)
	assert.True(t, changed[0].Changed)

	// Setting the original text back clears the edit.
	require.NoError(t, c.SetEdit(ctx, s.ID, k, "Enabled"))
	changed, err = c.Changed(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, changed)

	require.NoError(t, c.SetEdit(ctx, s.ID, k, "Aktiviert"))
	require.NoError(t, c.ClearEdit(ctx, s.ID, k))
	got, err := c.Scan(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Edits)

	err = c.SetEdit(ctx, s.ID, record.Key{Path: "a/One.class", Index: 99}, "x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.ClearEdit(ctx, "nope", k), ErrNotFound)
}

func TestSaveEdits(t *testing.T) {
	ctx := context.Background()
	c := open(t)
	s, err := c.SaveScan(ctx, "plugin.jar", 2, sample(), nil)
	require.NoError(t, err)

	recs, err := c.Records(ctx, s.ID)
	require.NoError(t, err)
	recs[0].Edit("Aktiviert")
	recs[1].Edit("Kode")
	recs = append(recs, &record.String{Path: "c/Gone.class", Index: 1, Changed: true, Edited: "x"})
	unknown, err := c.SaveEdits(ctx, s.ID, recs)
	require.NoError(t, err)
	assert.Equal(t, 1, unknown)

	recs[1].Revert()
	_, err = c.SaveEdits(ctx, s.ID, recs)
	require.NoError(t, err)
	changed, err := c.Changed(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "Aktiviert", changed[0].Edited)
}

func TestScansNewestFirst(t *testing.T) {
	ctx := context.Background()
	c := open(t)
	_, err := c.Scan(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := c.SaveScan(ctx, "one.jar", 1, nil, nil)
	require.NoError(t, err)
	second, err := c.SaveScan(ctx, "two.jar", 1, nil, nil)
	require.NoError(t, err)

	scans, err := c.Scans(ctx)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, second.ID, scans[0].ID)
	assert.Equal(t, first.ID, scans[1].ID)

	latest, err := c.Scan(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	require.NoError(t, c.DeleteScan(ctx, second.ID))
	assert.ErrorIs(t, c.DeleteScan(ctx, second.ID), ErrNotFound)
	_, err = c.Scan(ctx, second.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jarstrings.db")
	c, err := Open(ctx, path, nil)
	require.NoError(t, err)
	s, err := c.SaveScan(ctx, "plugin.jar", 2, sample(), nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer c.Close()
	recs, err := c.Records(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}
