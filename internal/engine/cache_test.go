package engine

import "testing"

func TestAttachmentCache(t *testing.T) {
	c := newAttachmentCache()

	if _, ok := c.get("conn-1"); ok {
		t.Fatal("empty cache reported a hit")
	}

	c.put("conn-1", "pg_sales")
	name, ok := c.get("conn-1")
	if !ok || name != "pg_sales" {
		t.Fatalf("get = %q, %v; want pg_sales, true", name, ok)
	}
	id, ok := c.idFor("pg_sales")
	if !ok || id != "conn-1" {
		t.Fatalf("idFor = %q, %v; want conn-1, true", id, ok)
	}

	// Re-attaching the same ID under a new name drops the old inverse entry.
	c.put("conn-1", "pg_sales_v2")
	if _, ok := c.idFor("pg_sales"); ok {
		t.Error("stale inverse entry survived re-put")
	}
	if id, _ := c.idFor("pg_sales_v2"); id != "conn-1" {
		t.Errorf("idFor new name = %q, want conn-1", id)
	}

	c.put("file-1", "orders_csv")
	if c.len() != 2 {
		t.Fatalf("len = %d, want 2", c.len())
	}

	c.remove("conn-1")
	if _, ok := c.get("conn-1"); ok {
		t.Error("entry survived remove")
	}
	if _, ok := c.idFor("pg_sales_v2"); ok {
		t.Error("inverse entry survived remove")
	}

	c.clear()
	if c.len() != 0 {
		t.Errorf("len after clear = %d, want 0", c.len())
	}
}
