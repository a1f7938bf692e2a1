package cache

import (
	"testing"
	"time"
)

func TestCache_GetSet(t *testing.T) {
	c := NewCache(DefaultConfig())

	c.Set("key1", "value1", time.Minute)

	value, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected key1 to be present")
	}
	if value != "value1" {
		t.Errorf("expected value1, got %v", value)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected missing key to be absent")
	}
}

func TestCache_GetMany(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	result := c.GetMany([]string{"a", "b", "c"})
	if len(result) != 2 {
		t.Errorf("expected 2 results, got %d", len(result))
	}
	if result["a"] != 1 || result["b"] != 2 {
		t.Errorf("unexpected values: %+v", result)
	}
}

func TestCache_SetMany(t *testing.T) {
	c := NewCache(DefaultConfig())

	c.SetMany(map[string]interface{}{"x": 1, "y": 2}, time.Minute)

	if v, ok := c.Get("x"); !ok || v != 1 {
		t.Errorf("expected x=1, got %v (ok=%v)", v, ok)
	}
	if v, ok := c.Get("y"); !ok || v != 2 {
		t.Errorf("expected y=2, got %v (ok=%v)", v, ok)
	}
}

func TestCache_DeleteMany(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.SetMany(map[string]interface{}{"x": 1, "y": 2}, time.Minute)

	c.DeleteMany([]string{"x", "y"})

	if _, ok := c.Get("x"); ok {
		t.Error("expected x to be deleted")
	}
	if _, ok := c.Get("y"); ok {
		t.Error("expected y to be deleted")
	}
}

func TestCache_AddToSetAndGetSetMembers(t *testing.T) {
	c := NewCache(DefaultConfig())

	c.AddToSet("online-users", time.Minute, "user-1", "user-2")
	c.AddToSet("online-users", time.Minute, "user-3")

	members := c.GetSetMembers("online-users")
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d: %v", len(members), members)
	}

	seen := make(map[string]bool)
	for _, m := range members {
		seen[m] = true
	}
	for _, want := range []string{"user-1", "user-2", "user-3"} {
		if !seen[want] {
			t.Errorf("expected member %s in set", want)
		}
	}
}

func TestCache_GetSetMembers_Empty(t *testing.T) {
	c := NewCache(DefaultConfig())
	if members := c.GetSetMembers("nonexistent"); members != nil {
		t.Errorf("expected nil for nonexistent set, got %v", members)
	}
}

func TestCache_Expiration(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("short", "value", time.Millisecond)

	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("expected expired key to be absent")
	}
}
