package index

import (
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/starford/nodeflow/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "nodeflow-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	for _, table := range []string{"flows", "flow_node_types", "session_cookies"} {
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestMigrate_ReopenIsNoop(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertFlow(FlowRow{ID: "keep", Checksum: "k", UpdatedAt: time.Now()}, "")

	var version int
	if err := db.conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != len(migrations) {
		t.Fatalf("user_version = %d, want %d", version, len(migrations))
	}
	if err := migrate(db.conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if cs, _ := db.GetChecksum("keep"); cs != "k" {
		t.Error("rerunning migrations lost data")
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := FlowRow{
		ID:        "greeting",
		Path:      "greeting.yaml",
		Name:      "Greeting",
		Checksum:  "abc123",
		NodeTypes: []string{"chatInputNode", "modelNode"},
		NodeCount: 2,
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertFlow(row, "Greeting hello"); err != nil {
		t.Fatalf("UpsertFlow: %v", err)
	}
	cs, err := db.GetChecksum("greeting")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}

	got, err := db.GetFlow("greeting")
	if err != nil {
		t.Fatalf("GetFlow: %v", err)
	}
	if got.Name != "Greeting" || got.NodeCount != 2 || len(got.NodeTypes) != 2 {
		t.Errorf("GetFlow = %+v", got)
	}
}

func TestGetFlow_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetFlow("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertFlow(FlowRow{ID: "up", Name: "Old", Checksum: "1", NodeTypes: []string{"promptNode"}, UpdatedAt: now}, "old body")
	_ = db.UpsertFlow(FlowRow{ID: "up", Name: "New", Checksum: "2", NodeTypes: []string{"textOutputNode"}, UpdatedAt: now}, "new body")

	cs, _ := db.GetChecksum("up")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	rows, total, _ := db.ListFlows(10, 0, "promptNode", "")
	if total != 0 || len(rows) != 0 {
		t.Error("old node type should be removed on upsert")
	}
	rows, total, _ = db.ListFlows(10, 0, "textOutputNode", "")
	if total != 1 || len(rows) != 1 {
		t.Error("new node type should exist")
	}
}

func TestDeleteFlow(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertFlow(FlowRow{ID: "del", Checksum: "x", NodeTypes: []string{"modelNode"}, UpdatedAt: time.Now()}, "body")

	if err := db.DeleteFlow("del"); err != nil {
		t.Fatalf("DeleteFlow: %v", err)
	}
	cs, _ := db.GetChecksum("del")
	if cs != "" {
		t.Errorf("deleted flow still has checksum %q", cs)
	}
	var n int
	_ = db.conn.QueryRow(`SELECT count(*) FROM flow_node_types WHERE flow_id = 'del'`).Scan(&n)
	if n != 0 {
		t.Errorf("expected node types to cascade, got %d rows", n)
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListFlows_SortAndPage(t *testing.T) {
	db := testDB(t)
	base := time.Now().Add(-time.Hour)
	_ = db.UpsertFlow(FlowRow{ID: "a", Name: "bravo", Checksum: "1", NodeCount: 1, UpdatedAt: base}, "")
	_ = db.UpsertFlow(FlowRow{ID: "b", Name: "Alpha", Checksum: "2", NodeCount: 5, UpdatedAt: base.Add(time.Minute)}, "")
	_ = db.UpsertFlow(FlowRow{ID: "c", Name: "charlie", Checksum: "3", NodeCount: 3, UpdatedAt: base.Add(2 * time.Minute)}, "")

	rows, total, err := db.ListFlows(2, 0, "", "")
	if err != nil {
		t.Fatalf("ListFlows: %v", err)
	}
	if total != 3 || len(rows) != 2 {
		t.Fatalf("total = %d, len = %d, want 3, 2", total, len(rows))
	}
	if rows[0].ID != "c" {
		t.Errorf("default sort first = %q, want c", rows[0].ID)
	}

	rows, _, _ = db.ListFlows(10, 0, "", "name")
	if rows[0].Name != "Alpha" || rows[2].Name != "charlie" {
		t.Errorf("name sort = %q..%q", rows[0].Name, rows[2].Name)
	}

	rows, _, _ = db.ListFlows(10, 0, "", "node_count")
	if rows[0].ID != "b" {
		t.Errorf("node_count sort first = %q, want b", rows[0].ID)
	}

	rows, _, _ = db.ListFlows(10, 2, "", "name")
	if len(rows) != 1 || rows[0].ID != "c" {
		t.Errorf("offset page = %+v", rows)
	}

	if _, _, err := db.ListFlows(10, 0, "", "colour"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("unknown sort err = %v, want ErrInvalid", err)
	}
}

func TestAllChecksums(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertFlow(FlowRow{ID: "x", Checksum: "1"}, "")
	_ = db.UpsertFlow(FlowRow{ID: "y", Checksum: "2"}, "")

	all, err := db.AllChecksums()
	if err != nil {
		t.Fatalf("AllChecksums: %v", err)
	}
	if len(all) != 2 || all["x"] != "1" || all["y"] != "2" {
		t.Errorf("AllChecksums = %v", all)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertFlow(FlowRow{ID: "s", Name: "Search Me", Checksum: "1", UpdatedAt: time.Now()}, "uniqueword appears here")

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "s" {
		t.Errorf("search results = %+v, want 1 hit for s", results)
	}
}

func TestCookies_PathScoped(t *testing.T) {
	db := testDB(t)
	host := "api.example.com"
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	err := db.SaveCookies(host, []*http.Cookie{
		{Name: "session", Value: "abc", Path: "/"},
		{Name: "refresh", Value: "rt", Path: "/user", Expires: exp},
		{Name: "refresh", Value: "other", Path: "/db"},
	})
	if err != nil {
		t.Fatalf("SaveCookies: %v", err)
	}

	got, err := db.LoadCookies(host)
	if err != nil {
		t.Fatalf("LoadCookies: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("loaded %d cookies, want 3", len(got))
	}
	byPath := map[string]*http.Cookie{}
	for _, c := range got {
		byPath[c.Name+" "+c.Path] = c
	}
	rt := byPath["refresh /user"]
	if rt == nil || rt.Value != "rt" {
		t.Fatalf("refresh cookie for /user = %+v", rt)
	}
	if !rt.Expires.Equal(exp) {
		t.Errorf("expires = %v, want %v", rt.Expires, exp)
	}
	if byPath["refresh /db"] == nil || byPath["session /"] == nil {
		t.Errorf("cookies = %v", byPath)
	}
}

func TestCookies_SaveLoad(t *testing.T) {
	db := testDB(t)
	host := "api.example.com"
	cookies := []*http.Cookie{
		{Name: "access", Value: "a1"},
		{Name: "refresh", Value: "r1", Expires: time.Now().Add(time.Hour)},
		{Name: "old", Value: "o1", Expires: time.Now().Add(-time.Hour)},
	}
	if err := db.SaveCookies(host, cookies); err != nil {
		t.Fatalf("SaveCookies: %v", err)
	}

	got, err := db.LoadCookies(host)
	if err != nil {
		t.Fatalf("LoadCookies: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d cookies, want 2 (expired dropped)", len(got))
	}
	byName := map[string]string{}
	for _, c := range got {
		byName[c.Name] = c.Value
	}
	if byName["access"] != "a1" || byName["refresh"] != "r1" {
		t.Errorf("cookies = %v", byName)
	}

	other, _ := db.LoadCookies("other.example.com")
	if len(other) != 0 {
		t.Errorf("other host has %d cookies, want 0", len(other))
	}

	if err := db.SaveCookies(host, nil); err != nil {
		t.Fatalf("SaveCookies(nil): %v", err)
	}
	got, _ = db.LoadCookies(host)
	if len(got) != 0 {
		t.Errorf("after clear: %d cookies, want 0", len(got))
	}
}
