package output

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// TableFormatter prints rows as aligned columns.
//
// A slice of structs becomes one row per element with a column per
// exported field. A single struct becomes FIELD/VALUE pairs and a map
// becomes KEY/VALUE pairs sorted by key. Anything else is printed as JSON.
// Column names come from the json tag. Fields tagged `table:"-"` are never
// shown and fields tagged `table:"wide"` only with Wide.
type TableFormatter struct {
	Wide bool
}

// Format writes data as a table.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}
	if t, ok := data.(*Table); ok {
		return t.Render(w)
	}

	t, ok := f.toTable(reflect.ValueOf(data))
	if !ok {
		return (&JSONFormatter{}).Format(w, data)
	}
	return t.Render(w)
}

func (f *TableFormatter) toTable(v reflect.Value) (*Table, bool) {
	v = indirect(v)
	if !v.IsValid() {
		return nil, false
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		elem := v.Type().Elem()
		if elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct {
			return nil, false
		}
		cols := f.columns(elem)
		t := &Table{}
		for _, c := range cols {
			t.Headers = append(t.Headers, strings.ToUpper(c.name))
		}
		for i := 0; i < v.Len(); i++ {
			row := indirect(v.Index(i))
			cells := make([]string, len(cols))
			for j, c := range cols {
				if row.IsValid() {
					cells[j] = cell(row.Field(c.index))
				}
			}
			t.AddRow(cells...)
		}
		return t, true

	case reflect.Struct:
		t := &Table{Headers: []string{"FIELD", "VALUE"}}
		for _, c := range f.columns(v.Type()) {
			t.AddRow(c.name, cell(v.Field(c.index)))
		}
		return t, true

	case reflect.Map:
		t := &Table{Headers: []string{"KEY", "VALUE"}}
		for _, k := range v.MapKeys() {
			t.AddRow(cell(k), cell(v.MapIndex(k)))
		}
		sort.Slice(t.Rows, func(i, j int) bool { return t.Rows[i][0] < t.Rows[j][0] })
		return t, true
	}
	return nil, false
}

type column struct {
	name  string
	index int
}

func (f *TableFormatter) columns(t reflect.Type) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		switch field.Tag.Get("table") {
		case "-":
			continue
		case "wide":
			if !f.Wide {
				continue
			}
		}
		name := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag != "" && tag != "-" {
			name = tag
		}
		cols = append(cols, column{name: name, index: i})
	}
	return cols
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
)

// cell renders one value. Empty values print as "-".
func cell(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return "-"
	}

	switch v.Type() {
	case timeType:
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format(time.DateTime)
	case durationType:
		return v.Interface().(time.Duration).String()
	}

	switch v.Kind() {
	case reflect.String:
		if v.Len() == 0 {
			return "-"
		}
		return v.String()
	case reflect.Bool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%g", v.Float())
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "-"
		}
		if ss, ok := v.Interface().([]string); ok {
			return strings.Join(ss, ",")
		}
		return fmt.Sprintf("%d items", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "-"
		}
		b, err := json.Marshal(v.Interface())
		if err != nil {
			return fmt.Sprintf("%d keys", v.Len())
		}
		return string(b)
	default:
		return fmt.Sprint(v.Interface())
	}
}

// Table is a preformatted table.
type Table struct {
	Headers []string
	Rows    [][]string
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table with two-space column gaps.
func (t *Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
