package integration

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func Test_AdminGC_RemovesStaleTempOnly(t *testing.T) {
	root := t.TempDir()
	srv := startFS(t, root)

	// Настоящий объект в хранилище.
	hello := []byte("hello")
	h := md5hex(hello)
	if _, err := uploadChunk(srv.URL+base+"/chunk/"+h, hello); err != nil {
		t.Fatal(err)
	}

	// Брошенная временная запись от оборванной загрузки, состаренная.
	stale := filepath.Join(root, "tmp", "abandoned")
	if err := os.WriteFile(stale, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}
	// Свежая временная запись идущей загрузки.
	fresh := filepath.Join(root, "tmp", "in-flight")
	if err := os.WriteFile(fresh, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(srv.URL+"/admin/gc", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("gc status %s", resp.Status)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale temp not removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh temp removed: %v", err)
	}
	got, err := downloadFile(srv.URL + base + "/file/" + h)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("stored object changed: %q", got)
	}
}
