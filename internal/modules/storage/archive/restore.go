package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/gorm"
)

// RestoreFromZip imports table dumps from an archive ZIP. Existing rows in the
// restored tables are replaced wholesale.
func RestoreFromZip(db *gorm.DB, zr *zip.Reader) error {
	if db == nil || zr == nil {
		return fmt.Errorf("invalid restore input")
	}

	entries := collectArchiveEntries(zr)

	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback().Error
		}
	}()

	fk, err := disableForeignKeyChecks(tx)
	if err != nil {
		return err
	}
	defer func() { _ = fk.restore() }()

	columnCache := make(map[string]map[string]tableColumn, len(entries))
	for _, table := range archiveTableNames {
		entry, ok := entries[table]
		if !ok {
			continue
		}
		if err := restoreTableEntry(tx, table, entry, columnCache); err != nil {
			return err
		}
	}

	if err := fk.restore(); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	committed = true

	// MySQL runs ALTER TABLE with an implicit commit, so the counter reset
	// has to happen outside the restore transaction.
	return resetNodeAutoIncrement(db, 0)
}

// collectArchiveEntries maps each restorable table to its dump entry inside
// the ZIP. A BSON dump wins over a JSON dump of the same table.
func collectArchiveEntries(zr *zip.Reader) map[string]archiveEntryCandidate {
	entries := make(map[string]archiveEntryCandidate)
	for _, file := range zr.File {
		name, format, ok := parseArchiveEntry(file.Name)
		if !ok {
			continue
		}
		table := resolveRestoreTableName(name)
		if table == "" {
			continue
		}
		current, seen := entries[table]
		if seen && (current.Format == "bson" || format != "bson") {
			continue
		}
		entries[table] = archiveEntryCandidate{File: file, Format: format}
	}
	return entries
}

func restoreTableEntry(tx *gorm.DB, table string, entry archiveEntryCandidate, columnCache map[string]map[string]tableColumn) error {
	rows, err := decodeArchiveRows(entry.File, entry.Format)
	if err != nil {
		return fmt.Errorf("decode archive rows for table %s failed: %w", table, err)
	}

	columns, cached := columnCache[table]
	if !cached {
		if columns, err = loadTableColumns(tx, table); err != nil {
			return fmt.Errorf("load table columns for %s failed: %w", table, err)
		}
		columnCache[table] = columns
	}

	if err := tx.Exec("DELETE FROM `" + table + "`").Error; err != nil {
		return err
	}

	inserted := 0
	for _, row := range rows {
		payload := normalizeRestoreRow(table, row, columns)
		if len(payload) == 0 {
			continue
		}
		inserted++
		if err := tx.Table(table).Create(payload).Error; err != nil {
			if isDuplicateConstraintError(err) {
				continue
			}
			return fmt.Errorf("insert row #%d into %s failed: %w", inserted, table, err)
		}
	}
	return nil
}

// fkGuard suspends MySQL foreign key enforcement while tables load in dump
// order rather than dependency order.
type fkGuard struct {
	tx       *gorm.DB
	disabled bool
}

func disableForeignKeyChecks(tx *gorm.DB) (*fkGuard, error) {
	g := &fkGuard{tx: tx}
	if !strings.EqualFold(tx.Dialector.Name(), "mysql") {
		return g, nil
	}
	if err := tx.Exec("SET FOREIGN_KEY_CHECKS = 0").Error; err != nil {
		return nil, err
	}
	g.disabled = true
	return g, nil
}

// restore re-enables enforcement. Calling it again after success is a no-op,
// which the deferred rollback path relies on.
func (g *fkGuard) restore() error {
	if !g.disabled {
		return nil
	}
	if err := g.tx.Exec("SET FOREIGN_KEY_CHECKS = 1").Error; err != nil {
		return err
	}
	g.disabled = false
	return nil
}

// resetNodeAutoIncrement moves the nodes counter past the highest restored id
// so follow-up inserts never collide with imported rows. floor lets callers
// carry over a counter from the source dump when it ran ahead of max(id)+1.
func resetNodeAutoIncrement(db *gorm.DB, floor int64) error {
	if !strings.EqualFold(db.Dialector.Name(), "mysql") {
		return nil
	}
	var maxID int64
	if err := db.Table("nodes").Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
		return err
	}
	next := maxID + 1
	if floor > next {
		next = floor
	}
	return db.Exec(fmt.Sprintf("ALTER TABLE `nodes` AUTO_INCREMENT = %d", next)).Error
}

var archiveEntryFormats = []struct {
	suffix string
	format string
}{
	{".bson", "bson"},
	{".json", "json"},
}

func parseArchiveEntry(name string) (table string, format string, ok bool) {
	base := strings.ToLower(strings.TrimSpace(path.Base(name)))
	switch {
	case base == "":
		return "", "", false
	case base == "prelude.json", base == "manifest.json":
		return "", "", false
	case strings.HasSuffix(base, ".metadata.json"):
		return "", "", false
	}

	for _, ext := range archiveEntryFormats {
		table := strings.TrimSuffix(base, ext.suffix)
		if table == base || table == "" {
			continue
		}
		return table, ext.format, true
	}
	return "", "", false
}

func resolveRestoreTableName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	if alias, ok := restoreTableAliases[name]; ok {
		name = alias
	}
	if _, known := archiveTableNameSet[name]; known {
		return name
	}
	return ""
}

func decodeArchiveRows(file *zip.File, format string) ([]map[string]interface{}, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	switch format {
	case "bson":
		return decodeBSONRows(data)
	case "json":
		rows := []map[string]interface{}{}
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 {
			if err := json.Unmarshal(trimmed, &rows); err != nil {
				return nil, err
			}
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", format)
	}
}

func loadTableColumns(db *gorm.DB, table string) (map[string]tableColumn, error) {
	columnTypes, err := db.Migrator().ColumnTypes(table)
	if err != nil {
		return nil, err
	}
	columns := make(map[string]tableColumn, len(columnTypes))
	for _, ct := range columnTypes {
		name := strings.ToLower(strings.TrimSpace(ct.Name()))
		if name == "" {
			continue
		}
		columns[name] = tableColumn{
			DBType: strings.ToUpper(strings.TrimSpace(ct.DatabaseTypeName())),
		}
	}
	return columns, nil
}

func normalizeRestoreRow(table string, row map[string]interface{}, columns map[string]tableColumn) map[string]interface{} {
	if len(row) == 0 {
		return nil
	}
	result := make(map[string]interface{}, len(row))
	for key, value := range row {
		column := normalizeRestoreColumnName(table, key)
		if column == "" {
			continue
		}
		info, known := columns[column]
		if !known {
			continue
		}
		if normalized, keep := normalizeRestoreValue(column, value, info.DBType); keep {
			result[column] = normalized
		}
	}
	ensureRestoreBaseTimestamps(result)
	return result
}

func normalizeRestoreColumnName(table, name string) string {
	table = strings.ToLower(strings.TrimSpace(table))
	raw := strings.TrimSpace(name)
	lower := strings.ToLower(raw)
	if lower == "" || lower == "__v" {
		return ""
	}
	if table == "options" && lower == "_id" {
		// options.id is AUTO_INCREMENT; importing a document _id would break insert.
		return ""
	}

	candidates := []string{lower, strings.ToLower(camelToSnake(raw))}
	if scoped, ok := restoreColumnAliasesByTable[table]; ok {
		for _, key := range candidates {
			if mapped, hit := scoped[key]; hit {
				return mapped
			}
		}
	}
	for _, key := range candidates {
		if mapped, hit := restoreColumnAliases[key]; hit {
			return mapped
		}
	}
	if snake := candidates[1]; snake != "" {
		return snake
	}
	return lower
}

// normalizeRestoreValue coerces a dump value into something the target column
// accepts. The second return reports whether the key should be kept at all: a
// document landing in a scalar column, or garbage in a required timestamp,
// drops the key so the insert can still go through.
func normalizeRestoreValue(column string, value interface{}, dbType string) (interface{}, bool) {
	value = normalizeBSONValue(value)
	if value == nil {
		return nil, true
	}

	if isTimeLikeType(dbType) {
		if ts, ok := normalizeRestoreTime(value); ok {
			return ts, true
		}
		if strings.EqualFold(column, "updated_at") || isZeroLikeTimeValue(value) {
			return nil, true
		}
		return nil, false
	}

	switch v := value.(type) {
	case map[string]interface{}, []interface{}:
		if !isJSONLikeType(dbType) && !isTextLikeType(dbType) {
			return nil, false
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return string(encoded), true
	case []byte:
		if isJSONLikeType(dbType) || isTextLikeType(dbType) {
			return string(v), true
		}
		return v, true
	default:
		return v, true
	}
}

func normalizeRestoreTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case primitive.DateTime:
		return v.Time(), true
	case string:
		if ts, ok := parseTimeString(v); ok {
			return ts, true
		}
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return unixNumberToTime(n)
		}
		return time.Time{}, false
	}
	if n, ok := numericAsFloat(value); ok {
		return unixNumberToTime(n)
	}
	return time.Time{}, false
}

func numericAsFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func isZeroLikeTimeValue(value interface{}) bool {
	if n, ok := numericAsFloat(value); ok {
		return n == 0
	}
	switch v := value.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "0", "null", "0000-00-00", "0000-00-00 00:00:00":
			return true
		}
	case time.Time:
		return v.IsZero()
	case primitive.DateTime:
		return v.Time().IsZero()
	}
	return false
}

// ensureRestoreBaseTimestamps nulls out updated_at unless it carries a real
// timestamp. gorm would otherwise refuse zero time values on insert.
func ensureRestoreBaseTimestamps(row map[string]interface{}) {
	updated, present := row["updated_at"]
	if !present || updated == nil {
		return
	}
	if ts, isTime := updated.(time.Time); !isTime || ts.IsZero() {
		row["updated_at"] = nil
	}
}
