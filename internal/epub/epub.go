// file: internal/epub/epub.go
// version: 1.3.0
// guid: 0c2e4a6b-7d9f-4e1f-a3b5-8e0a2c4e6a7d

// Package epub assembles scraped chapters into an EPUB archive and validates
// artifacts before they are accepted.
package epub

import (
	"archive/zip"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Chapter is one content unit of a book.
type Chapter struct {
	Title string
	HTML  string // body markup, already sanitized
}

// Metadata describes the book being assembled.
type Metadata struct {
	Title  string
	Author string
	Source string // e.g. the site the chapters came from
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

// Assemble writes an EPUB containing the chapters to path. The zip layout
// follows the EPUB OCF rules: an uncompressed mimetype entry first, then container.xml
// and the OEBPS package.
func Assemble(path string, meta Metadata, chapters []Chapter) error {
	if len(chapters) == 0 {
		return fmt.Errorf("no chapters to assemble")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := zip.NewWriter(f)

	err = writeEpub(w, meta, chapters)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func writeEpub(w *zip.Writer, meta Metadata, chapters []Chapter) error {
	// mimetype must be first and stored uncompressed.
	mt, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return err
	}
	if _, err := mt.Write([]byte("application/epub+zip")); err != nil {
		return err
	}

	files := map[string]string{
		"META-INF/container.xml": containerXML,
		"OEBPS/content.opf":      packageDoc(meta, chapters),
		"OEBPS/toc.ncx":          tocDoc(meta, chapters),
	}
	for name, content := range files {
		entry, err := w.Create(name)
		if err != nil {
			return err
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			return err
		}
	}

	for i, ch := range chapters {
		entry, err := w.Create(chapterPath(i))
		if err != nil {
			return err
		}
		if _, err := entry.Write([]byte(chapterDoc(ch))); err != nil {
			return err
		}
	}
	return nil
}

func chapterPath(i int) string {
	return fmt.Sprintf("OEBPS/chapter%04d.xhtml", i+1)
}

func packageDoc(meta Metadata, chapters []Chapter) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
`)
	fmt.Fprintf(&b, "    <dc:title>%s</dc:title>\n", html.EscapeString(meta.Title))
	if meta.Author != "" {
		fmt.Fprintf(&b, "    <dc:creator>%s</dc:creator>\n", html.EscapeString(meta.Author))
	}
	fmt.Fprintf(&b, "    <dc:identifier id=\"bookid\">urn:ulid:%s</dc:identifier>\n", ulid.Make())
	fmt.Fprintf(&b, "    <dc:language>en</dc:language>\n")
	fmt.Fprintf(&b, "    <dc:date>%s</dc:date>\n", time.Now().UTC().Format("2006-01-02"))
	if meta.Source != "" {
		fmt.Fprintf(&b, "    <dc:source>%s</dc:source>\n", html.EscapeString(meta.Source))
	}
	b.WriteString("  </metadata>\n  <manifest>\n")
	b.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	for i := range chapters {
		fmt.Fprintf(&b, "    <item id=\"ch%04d\" href=\"chapter%04d.xhtml\" media-type=\"application/xhtml+xml\"/>\n", i+1, i+1)
	}
	b.WriteString("  </manifest>\n  <spine toc=\"ncx\">\n")
	for i := range chapters {
		fmt.Fprintf(&b, "    <itemref idref=\"ch%04d\"/>\n", i+1)
	}
	b.WriteString("  </spine>\n</package>\n")
	return b.String()
}

func tocDoc(meta Metadata, chapters []Chapter) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head><meta name="dtb:depth" content="1"/></head>
`)
	fmt.Fprintf(&b, "  <docTitle><text>%s</text></docTitle>\n  <navMap>\n", html.EscapeString(meta.Title))
	for i, ch := range chapters {
		fmt.Fprintf(&b, `    <navPoint id="nav%04d" playOrder="%d"><navLabel><text>%s</text></navLabel><content src="chapter%04d.xhtml"/></navPoint>
`, i+1, i+1, html.EscapeString(ch.Title), i+1)
	}
	b.WriteString("  </navMap>\n</ncx>\n")
	return b.String()
}

func chapterDoc(ch Chapter) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>%s</title></head>
<body>
<h2>%s</h2>
%s
</body>
</html>
`, html.EscapeString(ch.Title), html.EscapeString(ch.Title), ch.HTML)
}

// Validate checks an artifact before it is accepted: it must exist, be at
// least minBytes, and be a readable zip archive. Every entry is opened so a
// truncated central directory fails here rather than in a reader app.
func Validate(path string, minBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("artifact missing: %w", err)
	}
	if info.Size() < minBytes {
		return fmt.Errorf("artifact too small: %d bytes (minimum %d)", info.Size(), minBytes)
	}
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("artifact is not a readable archive: %w", err)
	}
	defer r.Close()
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("corrupt archive entry %s: %w", f.Name, err)
		}
		rc.Close()
	}
	return nil
}
