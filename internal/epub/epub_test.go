// file: internal/epub/epub_test.go
// version: 1.1.0
// guid: 2e4a6c8d-9f1b-4d3f-a5c7-0a2c4e6a8c9f

package epub

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleChapters(n int) []Chapter {
	chapters := make([]Chapter, n)
	for i := range chapters {
		chapters[i] = Chapter{
			Title: "Chapter " + string(rune('A'+i)),
			HTML:  "<p>" + strings.Repeat("words ", 50) + "</p>",
		}
	}
	return chapters
}

func TestAssembleProducesValidEpub(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.epub")
	meta := Metadata{Title: "Martial Peak", Author: "Momo", Source: "allnovelfull.net"}

	if err := Assemble(path, meta, sampleChapters(3)); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if err := Validate(path, 1); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestAssembleMimetypeFirstAndStored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.epub")
	if err := Assemble(path, Metadata{Title: "T"}, sampleChapters(1)); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	if len(r.File) == 0 || r.File[0].Name != "mimetype" {
		t.Fatal("mimetype must be the first archive entry")
	}
	if r.File[0].Method != zip.Store {
		t.Error("mimetype must be stored uncompressed")
	}

	names := map[string]bool{}
	for _, f := range r.File {
		names[f.Name] = true
	}
	for _, want := range []string{"META-INF/container.xml", "OEBPS/content.opf", "OEBPS/toc.ncx", "OEBPS/chapter0001.xhtml"} {
		if !names[want] {
			t.Errorf("missing archive entry %s", want)
		}
	}
}

func TestAssembleEscapesMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.epub")
	meta := Metadata{Title: "Cats & <Dogs>", Author: "A & B"}
	if err := Assemble(path, meta, sampleChapters(1)); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	for _, f := range r.File {
		if f.Name != "OEBPS/content.opf" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open opf: %v", err)
		}
		buf, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read opf: %v", err)
		}
		opf := string(buf)
		if !strings.Contains(opf, "Cats &amp; &lt;Dogs&gt;") {
			t.Errorf("title not escaped in package document:\n%s", opf)
		}
	}
}

func TestAssembleRejectsEmptyBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.epub")
	if err := Assemble(path, Metadata{Title: "T"}, nil); err == nil {
		t.Fatal("expected error for zero chapters")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("failed assembly must not leave a file behind")
	}
}

func TestValidateRejectsTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.epub")
	if err := Assemble(path, Metadata{Title: "T"}, sampleChapters(1)); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if err := Validate(path, 10<<20); err == nil {
		t.Fatal("expected size rejection")
	}
}

func TestValidateRejectsNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.epub")
	if err := os.WriteFile(path, []byte(strings.Repeat("<html>not a zip</html>", 100)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Validate(path, 1); err == nil {
		t.Fatal("expected archive rejection")
	}
}

func TestValidateRejectsMissingFile(t *testing.T) {
	if err := Validate(filepath.Join(t.TempDir(), "absent.epub"), 1); err == nil {
		t.Fatal("expected missing-file rejection")
	}
}
