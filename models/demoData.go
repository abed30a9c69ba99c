package models

import (
	"bytes"
	"embed"
	"encoding/json"
	"path"
	"strings"
	"sync"
)

//go:embed demo/*.json
var demoFS embed.FS

var (
	demoTables map[string][]Record
	demoErr    error
	demoOnce   sync.Once
)

// DemoTables returns the substitute dataset keyed by view or table name.
// The files are embedded, so a decoding failure is a build defect and panics.
func DemoTables() map[string][]Record {
	demoOnce.Do(func() {
		demoTables, demoErr = loadDemoTables()
	})
	if demoErr != nil {
		panic("models: demo fixtures: " + demoErr.Error())
	}
	out := make(map[string][]Record, len(demoTables))
	for name, rows := range demoTables {
		out[name] = copyRecords(rows)
	}
	return out
}

// DemoList is the fixed substitute list for a resource, independent of any options.
func DemoList(resource Resource) []Record {
	rows := DemoTables()[resource.View]
	if rows == nil {
		return []Record{}
	}
	return rows
}

// DemoDetails is the fixed substitute detail list for a resource.
func DemoDetails(resource Resource) []Record {
	rows := DemoTables()[resource.DetailTable]
	if !resource.HasDetails() || rows == nil {
		return []Record{}
	}
	return rows
}

func loadDemoTables() (map[string][]Record, error) {
	entries, err := demoFS.ReadDir("demo")
	if err != nil {
		return nil, err
	}
	tables := make(map[string][]Record, len(entries))
	for _, entry := range entries {
		b, err := demoFS.ReadFile(path.Join("demo", entry.Name()))
		if err != nil {
			return nil, err
		}
		var rows []Record
		dec := json.NewDecoder(bytes.NewReader(b))
		if err := dec.Decode(&rows); err != nil {
			return nil, err
		}
		tables[strings.TrimSuffix(entry.Name(), ".json")] = rows
	}
	return tables, nil
}

func copyRecords(rows []Record) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		c := make(Record, len(row))
		for k, v := range row {
			c[k] = v
		}
		out[i] = c
	}
	return out
}
