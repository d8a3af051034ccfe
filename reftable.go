package strata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RefTableColumnType is the declared type of a reference-table column.
// Client-side inference only produces Numeric and String; Bool and DateTime
// appear in schemas authored on the platform itself.
type RefTableColumnType string

const (
	RefColumnNumeric  RefTableColumnType = "Numeric"
	RefColumnString   RefTableColumnType = "String"
	RefColumnBool     RefTableColumnType = "Bool"
	RefColumnDateTime RefTableColumnType = "DateTime"
)

// RefTableColumn describes one column of a reference table.
type RefTableColumn struct {
	Name       string             `json:"Name"`
	UnitName   string             `json:"UnitName"`
	ColumnType RefTableColumnType `json:"ColumnType"`
}

// RefTableSchema is the stored definition of a reference table. The key
// column's type is fixed for the table's lifetime and value columns are
// positionally stable across writes; adding a column is a schema change, not
// a data write.
type RefTableSchema struct {
	Name        string           `json:"Name"`
	Description string           `json:"Description"`
	Labels      []string         `json:"Labels,omitempty"`
	Key         RefTableColumn   `json:"Key"`
	Values      []RefTableColumn `json:"Values"`
	Created     string           `json:"Created,omitempty"`
	Modified    string           `json:"Modified,omitempty"`
}

// RefTableRow is one stored row, identified by (entity, timestamp, key).
// Timestamp is nil for rows without a time dimension.
type RefTableRow struct {
	Entity    string
	Timestamp *time.Time
	Key       Value
	Values    []Value
}

func (r RefTableRow) identity(table string) RecordKey {
	key := RecordKey{Entity: r.Entity, Signal: table, Unit: r.Key.String()}
	if r.Timestamp != nil {
		key.Index = formatTime(*r.Timestamp)
	}
	return key
}

// RefTableData is the tabular payload of a reference-table write. Columns
// carry the value column headers in first-seen order and may include unit
// annotations ("A [bbl]"); KeyColumn defaults to "Key".
type RefTableData struct {
	KeyColumn string
	Columns   []string
	Rows      []RefTableRow
}

// WriteRefTableOptions tune a reference-table write.
type WriteRefTableOptions struct {
	// Description is applied when the write creates the table.
	Description string

	// SkipExisting preserves stored rows that collide on
	// (entity, timestamp, key) instead of overwriting them.
	SkipExisting bool
}

// RefTableExists reports whether the named reference table is defined.
// A table deleted moments ago may still report true while the platform
// propagates the deletion; poll until false when a synchronous guarantee
// is needed.
func (c *Client) RefTableExists(ctx context.Context, name string) (bool, error) {
	if _, err := c.DescribeRefTable(ctx, name); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DescribeRefTable fetches the table's stored schema.
func (c *Client) DescribeRefTable(ctx context.Context, name string) (*RefTableSchema, error) {
	var schema RefTableSchema
	if err := c.get(ctx, c.route("RefTables", escape(name)), &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// WriteRefTable writes rows to the named table, creating it on first write
// with a schema inferred from the data (all-numeric column ⇒ Numeric, else
// String). Writes against an existing table must carry every existing value
// column by name; added columns extend the schema, renamed or retyped ones
// fail with ErrSchemaMismatch. Row identity for merge purposes is
// (entity, timestamp, key).
func (c *Client) WriteRefTable(ctx context.Context, name string, data RefTableData, opts WriteRefTableOptions) error {
	incoming, err := inferSchema(name, opts.Description, data)
	if err != nil {
		return err
	}

	schema, err := c.DescribeRefTable(ctx, name)
	switch {
	case IsNotFound(err):
		if err := c.post(ctx, c.route("RefTables", "Add"), incoming, nil); err != nil {
			return err
		}
		schema = incoming
	case err != nil:
		return err
	default:
		stored := len(schema.Values)
		schema, err = reconcileSchema(schema, incoming)
		if err != nil {
			return err
		}
		if len(schema.Values) > stored {
			// Added columns are a schema change shipped before the data.
			if err := c.post(ctx, c.route("RefTables", "Add"), schema, nil); err != nil {
				return err
			}
		}
	}
	if len(data.Rows) == 0 {
		return nil
	}

	rows := data.Rows
	if opts.SkipExisting {
		existing, err := c.readRowIdentities(ctx, name, schema)
		if err != nil {
			return err
		}
		records := make([]Record, len(rows))
		for i, row := range rows {
			k := row.identity(name)
			records[i] = Record{Entity: k.Entity, Signal: k.Signal, Unit: k.Unit, Index: row.indexOf()}
		}
		plan := planWrite(existing, records, true)
		writable := keySet(plan.ToWrite)
		kept := make([]RefTableRow, 0, len(rows))
		for _, row := range rows {
			if _, ok := writable[row.identity(name)]; ok {
				kept = append(kept, row)
			}
		}
		rows = kept
		if len(rows) == 0 {
			return nil
		}
	}

	wire := wireRows(schema, data, rows)
	params := url.Values{}
	params.Set("skipExistingData", "false")
	path := c.route("RefTables", escape(name), "Data", "String") + "?" + params.Encode()
	return c.put(ctx, path, wire, nil)
}

func (r RefTableRow) indexOf() Index {
	if r.Timestamp == nil {
		return Index{}
	}
	return TimeIndex(*r.Timestamp)
}

// readRowIdentities fetches the identity set of the table's stored rows.
func (c *Client) readRowIdentities(ctx context.Context, name string, schema *RefTableSchema) (map[RecordKey]struct{}, error) {
	result, err := c.ReadRefTable(ctx, name, nil)
	if err != nil {
		if IsNotFound(err) {
			return map[RecordKey]struct{}{}, nil
		}
		return nil, err
	}
	keys := make(map[RecordKey]struct{}, len(result.Rows))
	for _, row := range result.Rows {
		keys[row.identity(name)] = struct{}{}
	}
	return keys, nil
}

// RefTableFilter narrows a reference-table read or row deletion.
type RefTableFilter struct {
	Entity          string
	Entities        []string
	Start           *time.Time
	End             *time.Time
	WhereExpression string
}

// RefTableResult is a reference-table read: the schema in effect plus the
// filtered rows, with headers annotated the way frames annotate signals.
type RefTableResult struct {
	Schema  RefTableSchema
	Columns []string
	Rows    []RefTableRow
}

// ReadRefTable reads rows, optionally filtered by entity, timestamp range,
// or a WHERE expression evaluated on the platform.
func (c *Client) ReadRefTable(ctx context.Context, name string, filter *RefTableFilter) (*RefTableResult, error) {
	schema, err := c.DescribeRefTable(ctx, name)
	if err != nil {
		return nil, err
	}

	options := map[string]any{}
	if filter != nil {
		if filter.Entity != "" {
			options["Entity"] = filter.Entity
		}
		if len(filter.Entities) > 0 {
			options["Entities"] = filter.Entities
		}
		if filter.Start != nil {
			options["StartTimestamp"] = formatTime(*filter.Start)
		}
		if filter.End != nil {
			options["EndTimestamp"] = formatTime(*filter.End)
		}
		if filter.WhereExpression != "" {
			options["WhereExpression"] = filter.WhereExpression
		}
	}

	var raw [][]string
	if err := c.post(ctx, c.route("RefTables", escape(name), "Data"), options, &raw); err != nil {
		return nil, err
	}

	// The platform stores " " for unitless columns; that is not an annotation.
	result := &RefTableResult{Schema: *schema}
	result.Columns = append(result.Columns, annotateColumn(schema.Key.Name, strings.TrimSpace(schema.Key.UnitName)))
	for _, col := range schema.Values {
		result.Columns = append(result.Columns, annotateColumn(col.Name, strings.TrimSpace(col.UnitName)))
	}
	for _, cells := range raw {
		row, err := parseRefTableRow(name, schema, cells)
		if err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

// DeleteRefTableRows deletes rows, bounded by the filter's timestamp range
// when one is given, otherwise clearing the table's data.
func (c *Client) DeleteRefTableRows(ctx context.Context, name string, filter *RefTableFilter) error {
	if filter != nil && (filter.Start != nil || filter.End != nil) {
		start, end := filter.Start, filter.End
		if start == nil {
			start = end
		}
		if end == nil {
			end = start
		}
		params := url.Values{}
		params.Set("TimestampStart", formatTime(*start))
		params.Set("TimestampEnd", formatTime(*end))
		params.Set("IncludeWithNoTimestamp", "false")
		path := c.route("RefTables", escape(name), "Data", "Timestamp") + "?" + params.Encode()
		return c.doDelete(ctx, path, nil)
	}
	return c.doDelete(ctx, c.route("RefTables", escape(name), "Data"), nil)
}

// DeleteRefTable removes the table definition and its data. The deletion
// propagates asynchronously on the platform: an immediate RefTableExists may
// still observe the table.
func (c *Client) DeleteRefTable(ctx context.Context, name string) error {
	err := c.doDelete(ctx, c.route("RefTables", escape(name)), nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// ---------------------------------------------------------------------------
// schema inference and row conversion
// ---------------------------------------------------------------------------

func inferSchema(name, description string, data RefTableData) (*RefTableSchema, error) {
	keyName := data.KeyColumn
	if keyName == "" {
		keyName = "Key"
	}
	keyName, keyUnit := splitColumnHeader(keyName)

	schema := &RefTableSchema{
		Name:        name,
		Description: description,
		Key: RefTableColumn{
			Name:       keyName,
			UnitName:   defaultUnit(keyUnit),
			ColumnType: inferColumnType(data.Rows, -1),
		},
	}
	for i, header := range data.Columns {
		colName, colUnit := splitColumnHeader(header)
		schema.Values = append(schema.Values, RefTableColumn{
			Name:       colName,
			UnitName:   defaultUnit(colUnit),
			ColumnType: inferColumnType(data.Rows, i),
		})
	}
	for _, row := range data.Rows {
		if len(row.Values) != len(data.Columns) {
			return nil, fmt.Errorf("%w: table %q: row for entity %q has %d values, schema has %d columns",
				ErrSchemaMismatch, name, row.Entity, len(row.Values), len(data.Columns))
		}
	}
	return schema, nil
}

func defaultUnit(unit string) string {
	if unit == "" {
		return " "
	}
	return unit
}

// inferColumnType inspects column col across all rows (-1 selects the key
// column): every non-null cell numeric ⇒ Numeric, anything else ⇒ String.
func inferColumnType(rows []RefTableRow, col int) RefTableColumnType {
	sawValue := false
	for _, row := range rows {
		v := row.Key
		if col >= 0 {
			if col >= len(row.Values) {
				continue
			}
			v = row.Values[col]
		}
		if v.IsNull() {
			continue
		}
		sawValue = true
		if _, ok := v.Number(); !ok {
			return RefColumnString
		}
	}
	if !sawValue {
		return RefColumnString
	}
	return RefColumnNumeric
}

// reconcileSchema checks an incoming write schema against the stored one.
// Every stored value column must be present by name with the same type;
// incoming columns beyond those extend the schema.
func reconcileSchema(stored, incoming *RefTableSchema) (*RefTableSchema, error) {
	if stored.Key.Name != incoming.Key.Name {
		return nil, fmt.Errorf("%w: table %q: key column %q does not match stored %q",
			ErrSchemaMismatch, stored.Name, incoming.Key.Name, stored.Key.Name)
	}
	byName := make(map[string]RefTableColumn, len(incoming.Values))
	for _, col := range incoming.Values {
		byName[col.Name] = col
	}
	for _, col := range stored.Values {
		in, ok := byName[col.Name]
		if !ok {
			return nil, fmt.Errorf("%w: table %q: column %q missing from write",
				ErrSchemaMismatch, stored.Name, col.Name)
		}
		if in.ColumnType != col.ColumnType && col.ColumnType != RefColumnBool && col.ColumnType != RefColumnDateTime {
			return nil, fmt.Errorf("%w: table %q: column %q is %s, write infers %s",
				ErrSchemaMismatch, stored.Name, col.Name, col.ColumnType, in.ColumnType)
		}
		delete(byName, col.Name)
	}

	merged := *stored
	for _, col := range incoming.Values {
		if _, added := byName[col.Name]; added {
			merged.Values = append(merged.Values, col)
		}
	}
	return &merged, nil
}

// wireRows renders rows as the stringified cell arrays the platform accepts:
// [entity, timestamp, key, values...], cells aligned to the schema's column
// order rather than the caller's.
func wireRows(schema *RefTableSchema, data RefTableData, rows []RefTableRow) [][]string {
	position := make(map[string]int, len(data.Columns))
	for i, header := range data.Columns {
		colName, _ := splitColumnHeader(header)
		position[colName] = i
	}

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(schema.Values)+3)
		cells = append(cells, row.Entity)
		if row.Timestamp != nil {
			cells = append(cells, formatTime(*row.Timestamp))
		} else {
			cells = append(cells, "")
		}
		cells = append(cells, row.Key.String())
		for _, col := range schema.Values {
			i, ok := position[col.Name]
			if !ok || i >= len(row.Values) {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, row.Values[i].String())
		}
		out = append(out, cells)
	}
	return out
}

func parseRefTableRow(name string, schema *RefTableSchema, cells []string) (RefTableRow, error) {
	if len(cells) < 3 {
		return RefTableRow{}, fmt.Errorf("%w: table %q: row has %d cells", ErrDecode, name, len(cells))
	}
	row := RefTableRow{Entity: cells[0]}
	if cells[1] != "" {
		t, err := parseWireTime(cells[1])
		if err != nil {
			return RefTableRow{}, fmt.Errorf("%w: table %q: row timestamp %q", ErrDecode, name, cells[1])
		}
		row.Timestamp = &t
	}
	row.Key = parseCell(cells[2], schema.Key.ColumnType)
	for i, col := range schema.Values {
		if 3+i >= len(cells) {
			row.Values = append(row.Values, Null)
			continue
		}
		row.Values = append(row.Values, parseCell(cells[3+i], col.ColumnType))
	}
	return row, nil
}

func parseCell(cell string, colType RefTableColumnType) Value {
	if cell == "" {
		return Null
	}
	if colType == RefColumnNumeric {
		if f, err := strconv.ParseFloat(cell, 64); err == nil {
			return Number(f)
		}
		return Null
	}
	return Text(cell)
}
