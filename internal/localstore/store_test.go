package localstore

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
)

func TestStore_SetGetPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := Open(path)
	if err := s.Set(KeyRememberMe, true); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reopened := Open(path)
	var remember bool
	ok, err := reopened.GetJSON(KeyRememberMe, &remember)
	if err != nil || !ok {
		t.Fatalf("GetJSON() ok = %v err = %v", ok, err)
	}
	if !remember {
		t.Error("remember_me = false, want true")
	}
}

func TestStore_MissingKey(t *testing.T) {
	s := Open("")
	var v map[string]any
	ok, err := s.GetJSON("absent", &v)
	if ok || err != nil {
		t.Errorf("GetJSON(absent) ok = %v err = %v, want false nil", ok, err)
	}
	if got := s.GetString("absent"); got != "" {
		t.Errorf("GetString(absent) = %q, want empty", got)
	}
}

func TestStore_Remove(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "state.json"))
	_ = s.Set(KeyUser, map[string]string{"id": "u1"})
	_ = s.Set(KeySession, "token")

	if err := s.Remove(KeyUser, KeySession); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if s.GetString(KeySession) != "" {
		t.Error("session should be removed")
	}
}

func TestStore_UpdateIsReadModifyWrite(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "state.json"))
	key := MoodsKey("u1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Update(key, func(cur json.RawMessage) (any, error) {
				m := map[string]int{}
				if cur != nil {
					if err := json.Unmarshal(cur, &m); err != nil {
						return nil, err
					}
				}
				m[string(rune('a'+i))] = i
				return m, nil
			})
		}(i)
	}
	wg.Wait()

	var got map[string]int
	if _, err := s.GetJSON(key, &got); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if len(got) != 20 {
		t.Errorf("entries = %d, want 20 (no lost updates)", len(got))
	}
}

func TestStore_UpdateNilDeletes(t *testing.T) {
	s := Open("")
	_ = s.Set("k", "v")
	if err := s.Update("k", func(json.RawMessage) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if ok, _ := s.GetJSON("k", new(string)); ok {
		t.Error("key should be deleted")
	}
}
