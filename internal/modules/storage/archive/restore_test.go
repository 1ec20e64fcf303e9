package archive

import (
	"archive/zip"
	"bytes"
	"testing"
	"time"

	"github.com/shiv669/echo-core-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestParseArchiveEntry(t *testing.T) {
	cases := []struct {
		name   string
		table  string
		format string
		ok     bool
	}{
		{"db/nodes.bson", "nodes", "bson", true},
		{"db/Options.JSON", "options", "json", true},
		{"deep/nested/analyzes.bson", "analyzes", "bson", true},
		{"manifest.json", "", "", false},
		{"prelude.json", "", "", false},
		{"nodes.metadata.json", "", "", false},
		{"readme.txt", "", "", false},
		{".bson", "", "", false},
	}
	for _, tc := range cases {
		table, format, ok := parseArchiveEntry(tc.name)
		assert.Equal(t, tc.ok, ok, "entry %q", tc.name)
		assert.Equal(t, tc.table, table, "entry %q", tc.name)
		assert.Equal(t, tc.format, format, "entry %q", tc.name)
	}
}

func TestResolveRestoreTableName(t *testing.T) {
	assert.Equal(t, "nodes", resolveRestoreTableName("nodes"))
	assert.Equal(t, "nodes", resolveRestoreTableName(" Node "))
	assert.Equal(t, "analyzes", resolveRestoreTableName("analyze"))
	assert.Equal(t, "analyzes", resolveRestoreTableName("analyze_logs"))
	assert.Equal(t, "analyzes", resolveRestoreTableName("analytics"))
	assert.Equal(t, "options", resolveRestoreTableName("settings"))
	assert.Equal(t, "options", resolveRestoreTableName("option"))
	assert.Equal(t, "", resolveRestoreTableName("users"), "unknown tables are skipped")
	assert.Equal(t, "", resolveRestoreTableName(""))
}

func TestNormalizeRestoreColumnName(t *testing.T) {
	cases := []struct {
		table string
		name  string
		want  string
	}{
		{"nodes", "content", "excerpt"},
		{"nodes", "full_content", "full_text"},
		{"nodes", "fullContent", "full_text"},
		{"nodes", "source", "source_link"},
		{"nodes", "sourceType", "source_kind"},
		{"nodes", "_id", "id"},
		{"nodes", "Title", "title"},
		{"nodes", "__v", ""},
		{"nodes", "  ", ""},
		{"options", "_id", ""},
		{"analyzes", "created", "created_at"},
		{"analyzes", "createdAt", "created_at"},
		{"analyzes", "modified", "updated_at"},
		{"analyzes", "ipAddress", "ip"},
		{"analyzes", "userAgent", "ua"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeRestoreColumnName(tc.table, tc.name), "table %s column %q", tc.table, tc.name)
	}
}

func TestNormalizeRestoreValue(t *testing.T) {
	parsed := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	t.Run("nil passes through", func(t *testing.T) {
		got, ok := normalizeRestoreValue("title", nil, "VARCHAR")
		require.True(t, ok)
		assert.Nil(t, got)
	})

	t.Run("time columns", func(t *testing.T) {
		got, ok := normalizeRestoreValue("created_at", parsed, "DATETIME")
		require.True(t, ok)
		assert.Equal(t, parsed, got)

		got, ok = normalizeRestoreValue("created_at", "2023-11-14T22:13:20Z", "DATETIME")
		require.True(t, ok)
		assert.Equal(t, parsed, got)

		got, ok = normalizeRestoreValue("created_at", int64(1700000000), "DATETIME")
		require.True(t, ok)
		assert.Equal(t, time.Unix(1700000000, 0), got)

		got, ok = normalizeRestoreValue("created_at", primitive.DateTime(1700000000000), "DATETIME(3)")
		require.True(t, ok)
		assert.Equal(t, time.UnixMilli(1700000000000), got)

		// Numeric strings are treated as unix timestamps.
		got, ok = normalizeRestoreValue("created_at", "1700000000", "DATETIME")
		require.True(t, ok)
		assert.Equal(t, time.Unix(1700000000, 0), got)
	})

	t.Run("unparseable time drops the key", func(t *testing.T) {
		_, ok := normalizeRestoreValue("created_at", "garbage", "DATETIME")
		assert.False(t, ok)
	})

	t.Run("zero-like time becomes null", func(t *testing.T) {
		got, ok := normalizeRestoreValue("created_at", "0000-00-00 00:00:00", "DATETIME")
		require.True(t, ok)
		assert.Nil(t, got)
	})

	t.Run("broken updated_at becomes null", func(t *testing.T) {
		got, ok := normalizeRestoreValue("updated_at", "garbage", "DATETIME")
		require.True(t, ok)
		assert.Nil(t, got)
	})

	t.Run("documents serialize into json columns", func(t *testing.T) {
		got, ok := normalizeRestoreValue("summary", map[string]interface{}{"key_concepts": []interface{}{"a"}}, "JSON")
		require.True(t, ok)
		assert.JSONEq(t, `{"key_concepts":["a"]}`, got.(string))

		got, ok = normalizeRestoreValue("tags", []interface{}{"x", "y"}, "LONGTEXT")
		require.True(t, ok)
		assert.JSONEq(t, `["x","y"]`, got.(string))
	})

	t.Run("documents cannot land in scalar columns", func(t *testing.T) {
		_, ok := normalizeRestoreValue("id", map[string]interface{}{"a": 1}, "BIGINT")
		assert.False(t, ok)
	})

	t.Run("scalars pass through", func(t *testing.T) {
		got, ok := normalizeRestoreValue("title", "hello", "VARCHAR(512)")
		require.True(t, ok)
		assert.Equal(t, "hello", got)

		got, ok = normalizeRestoreValue("id", int64(5), "BIGINT")
		require.True(t, ok)
		assert.Equal(t, int64(5), got)
	})
}

func TestNormalizeRestoreTime(t *testing.T) {
	parsed := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	got, ok := normalizeRestoreTime(parsed)
	require.True(t, ok)
	assert.Equal(t, parsed, got)

	got, ok = normalizeRestoreTime(primitive.DateTime(1700000000000))
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1700000000000), got)

	got, ok = normalizeRestoreTime(int64(1700000000))
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 0), got)

	got, ok = normalizeRestoreTime(float64(1700000000000))
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1700000000000), got)

	got, ok = normalizeRestoreTime("2023-11-14T22:13:20Z")
	require.True(t, ok)
	assert.Equal(t, parsed, got.UTC())

	got, ok = normalizeRestoreTime("1700000000")
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 0), got)

	_, ok = normalizeRestoreTime(true)
	assert.False(t, ok)
	_, ok = normalizeRestoreTime("not a time")
	assert.False(t, ok)
}

func TestIsZeroLikeTimeValue(t *testing.T) {
	assert.True(t, isZeroLikeTimeValue(int64(0)))
	assert.True(t, isZeroLikeTimeValue(float64(0)))
	assert.True(t, isZeroLikeTimeValue(""))
	assert.True(t, isZeroLikeTimeValue("0"))
	assert.True(t, isZeroLikeTimeValue("NULL"))
	assert.True(t, isZeroLikeTimeValue("0000-00-00"))
	assert.True(t, isZeroLikeTimeValue("0000-00-00 00:00:00"))
	assert.True(t, isZeroLikeTimeValue(time.Time{}))

	assert.False(t, isZeroLikeTimeValue(int64(1700000000)))
	assert.False(t, isZeroLikeTimeValue("2023-11-14"))
	assert.False(t, isZeroLikeTimeValue(true))
}

func TestEnsureRestoreBaseTimestamps(t *testing.T) {
	now := time.Now()

	row := map[string]interface{}{"updated_at": now}
	ensureRestoreBaseTimestamps(row)
	assert.Equal(t, now, row["updated_at"])

	row = map[string]interface{}{"updated_at": time.Time{}}
	ensureRestoreBaseTimestamps(row)
	assert.Nil(t, row["updated_at"])

	row = map[string]interface{}{"updated_at": "not a time"}
	ensureRestoreBaseTimestamps(row)
	assert.Nil(t, row["updated_at"])

	row = map[string]interface{}{"title": "x"}
	ensureRestoreBaseTimestamps(row)
	assert.NotContains(t, row, "updated_at")
}

func TestNormalizeRestoreRow(t *testing.T) {
	columns := map[string]tableColumn{
		"id":         {DBType: "BIGINT"},
		"title":      {DBType: "VARCHAR"},
		"excerpt":    {DBType: "VARCHAR"},
		"summary":    {DBType: "JSON"},
		"created_at": {DBType: "DATETIME"},
		"updated_at": {DBType: "DATETIME"},
	}

	row := normalizeRestoreRow("nodes", map[string]interface{}{
		"_id":         int64(7),
		"Title":       "Echo",
		"content":     "clipped",
		"summary":     map[string]interface{}{"insights": "short"},
		"created":     "2023-11-14T22:13:20Z",
		"__v":         3,
		"unknown_col": "dropped",
	}, columns)

	require.NotNil(t, row)
	assert.Equal(t, int64(7), row["id"])
	assert.Equal(t, "Echo", row["title"])
	assert.Equal(t, "clipped", row["excerpt"])
	assert.JSONEq(t, `{"insights":"short"}`, row["summary"].(string))
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), row["created_at"])
	assert.NotContains(t, row, "__v")
	assert.NotContains(t, row, "unknown_col")

	assert.Nil(t, normalizeRestoreRow("nodes", nil, columns))
	assert.Empty(t, normalizeRestoreRow("nodes", map[string]interface{}{"mystery": 1}, columns))
}

func buildArchiveZip(t *testing.T, entries map[string][]byte) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, payload := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return zr
}

func findZipFile(t *testing.T, zr *zip.Reader, name string) *zip.File {
	t.Helper()
	for _, file := range zr.File {
		if file.Name == name {
			return file
		}
	}
	t.Fatalf("zip entry %s not found", name)
	return nil
}

func TestDecodeArchiveRows(t *testing.T) {
	bsonPayload, err := encodeBSONRows([]map[string]interface{}{{"id": int64(1), "title": "Echo"}})
	require.NoError(t, err)

	zr := buildArchiveZip(t, map[string][]byte{
		"db/nodes.bson":   bsonPayload,
		"db/options.json": []byte(`[{"name":"site_title","value":"ECHO"}]`),
		"db/empty.json":   []byte("  "),
	})

	rows, err := decodeArchiveRows(findZipFile(t, zr, "db/nodes.bson"), "bson")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Echo", rows[0]["title"])

	rows, err = decodeArchiveRows(findZipFile(t, zr, "db/options.json"), "json")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "site_title", rows[0]["name"])

	rows, err = decodeArchiveRows(findZipFile(t, zr, "db/empty.json"), "json")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = decodeArchiveRows(findZipFile(t, zr, "db/nodes.bson"), "csv")
	assert.Error(t, err)
}

func TestLegacyNodeToModel(t *testing.T) {
	node := legacyNodeToModel(legacyNode{
		ID:          12,
		Title:       "Vector clocks",
		Content:     "short excerpt",
		FullContent: "the whole text",
		Source:      "https://github.com/acme/clocks",
		SourceType:  models.SourceKindGitHub,
		Summary:     []byte(`{"key_concepts":["clocks"],"methods_used":["lamport"],"related_topics":["ordering"],"insights":"neat"}`),
		Tags:        []string{"github"},
		CreatedAt:   "2023-11-14T22:13:20Z",
	})

	assert.Equal(t, int64(12), node.ID)
	assert.Equal(t, "Vector clocks", node.Title)
	assert.Equal(t, "short excerpt", node.Excerpt)
	assert.Equal(t, "the whole text", node.FullText)
	assert.Equal(t, "https://github.com/acme/clocks", node.SourceLink)
	assert.Equal(t, models.SourceKindGitHub, node.SourceKind)
	assert.Equal(t, models.StringSlice{"clocks"}, node.Summary.KeyConcepts)
	assert.Equal(t, "neat", node.Summary.Insights)
	assert.Equal(t, models.StringSlice{"github"}, node.Tags)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), node.CreatedAt.UTC())
}

func TestLegacyNodeToModelDefaults(t *testing.T) {
	node := legacyNodeToModel(legacyNode{ID: 3, Title: "bare"})

	assert.NotNil(t, node.Summary.KeyConcepts)
	assert.NotNil(t, node.Summary.MethodsUsed)
	assert.NotNil(t, node.Summary.RelatedTopics)
	assert.Empty(t, node.Summary.KeyConcepts)
	assert.NotNil(t, node.Tags)
	assert.Empty(t, node.Tags)
	assert.WithinDuration(t, time.Now(), node.CreatedAt, 5*time.Second, "missing created_at falls back to now")
}
